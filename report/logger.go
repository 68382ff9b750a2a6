package report

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultEvery = 50

// Logger logs the first round and every Every-th round after it, then a summary at finish.
type Logger struct {
	Log   *zap.Logger
	Every int
}

func NewLogger(log *zap.Logger, every int) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if every <= 0 {
		every = DefaultEvery
	}
	return &Logger{Log: log, Every: every}
}

func (l *Logger) Report(rec Record) {
	if (rec.Round-1)%l.Every != 0 {
		return
	}
	fields := []zap.Field{
		zap.Stringer("run", rec.RunID),
		zap.Int("round", rec.Round),
		zap.Float64("ggi", rec.GGI),
		zap.Int("arm", rec.Arm),
	}
	if rec.HasTruth {
		fields = append(fields, zap.Float64("theta_error", rec.EstimationError))
	}
	l.Log.Info("round", fields...)
}

func (l *Logger) Finish(id uuid.UUID, s Series) {
	l.Log.Info("run finished",
		zap.Stringer("run", id),
		zap.Int("rounds", s.Len()),
		zap.Float64("final_ggi", s.Last()),
		zap.Float64("mean_ggi", s.Mean()),
	)
}
