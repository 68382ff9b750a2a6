package report

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the latest round of a run as prometheus gauges, labelled by run id.
type Metrics struct {
	round      *prometheus.GaugeVec
	ggi        *prometheus.GaugeVec
	thetaError *prometheus.GaugeVec
	pulls      *prometheus.CounterVec
	finalGGI   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		round: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mocb_round",
			Help: "Last completed round.",
		}, []string{"run"}),
		ggi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mocb_ggi",
			Help: "GGI of the average reward so far.",
		}, []string{"run"}),
		thetaError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mocb_estimation_error",
			Help: "Frobenius distance between estimated and true reward weights.",
		}, []string{"run"}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mocb_arm_pulls_total",
			Help: "Number of times each arm was played.",
		}, []string{"run", "arm"}),
		finalGGI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mocb_final_ggi",
			Help: "GGI of the average reward at the end of the run.",
		}, []string{"run"}),
	}

	for _, c := range []prometheus.Collector{m.round, m.ggi, m.thetaError, m.pulls, m.finalGGI} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Report(rec Record) {
	run := rec.RunID.String()
	m.round.WithLabelValues(run).Set(float64(rec.Round))
	m.ggi.WithLabelValues(run).Set(rec.GGI)
	if rec.HasTruth {
		m.thetaError.WithLabelValues(run).Set(rec.EstimationError)
	}
	m.pulls.WithLabelValues(run, strconv.Itoa(rec.Arm)).Inc()
}

func (m *Metrics) Finish(id uuid.UUID, s Series) {
	m.finalGGI.WithLabelValues(id.String()).Set(s.Last())
}
