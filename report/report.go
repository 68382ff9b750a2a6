package report

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// Record is what a loop reports after each round. Round is 1-based. EstimationError is
// meaningful only when HasTruth is set.
type Record struct {
	RunID           uuid.UUID
	Round           int
	GGI             float64
	EstimationError float64
	HasTruth        bool
	Arm             int
	Alpha           []float64
}

type Reporter interface {
	Report(Record)
	Finish(uuid.UUID, Series)
}

type Nop struct{}

func (Nop) Report(Record)            {}
func (Nop) Finish(uuid.UUID, Series) {}

type multi []Reporter

func Multi(rs ...Reporter) Reporter {
	return multi(rs)
}

func (m multi) Report(rec Record) {
	for _, r := range m {
		r.Report(rec)
	}
}

func (m multi) Finish(id uuid.UUID, s Series) {
	for _, r := range m {
		r.Finish(id, s)
	}
}

// Series is the GGI learning curve, one value per round.
type Series []float64

func (s Series) Len() int {
	return len(s)
}

func (s Series) At(i int) float64 {
	return s[i]
}

func (s Series) Last() float64 {
	if len(s) == 0 {
		return 0.0
	}
	return s[len(s)-1]
}

func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0.0
	}
	return floats.Sum(s) / float64(len(s))
}

func (s Series) Clone() Series {
	return slices.Clone(s)
}

// WriteCSV writes "round,ggi" rows with 1-based rounds.
func (s Series) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"round", "ggi"}); err != nil {
		return err
	}
	for i, v := range s {
		row := []string{strconv.Itoa(i + 1), strconv.FormatFloat(v, 'g', -1, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MeanSeries averages equally long series pointwise; it is truncated to the shortest one.
func MeanSeries(ss ...Series) Series {
	if len(ss) == 0 {
		return Series{}
	}
	n := len(ss[0])
	for _, s := range ss[1:] {
		n = min(n, len(s))
	}
	mean := make(Series, n)
	for _, s := range ss {
		floats.Add(mean, s[:n])
	}
	floats.Scale(1.0/float64(len(ss)), mean)
	return mean
}

// Recorder keeps every record it receives, mainly for tests and post-run inspection.
type Recorder struct {
	Records  []Record
	Finished Series
}

func (r *Recorder) Report(rec Record) {
	rec.Alpha = slices.Clone(rec.Alpha)
	r.Records = append(r.Records, rec)
}

func (r *Recorder) Finish(_ uuid.UUID, s Series) {
	r.Finished = s.Clone()
}
