// Package bandit runs the round-by-round loop of the GGI contextual bandit: estimate the
// reward weights, draw contexts, refine the arm distribution, play the most likely arm,
// observe its reward and update the estimate.
package bandit

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/sw965/mocb"
	"github.com/sw965/mocb/env"
	"github.com/sw965/mocb/ggi"
	"github.com/sw965/mocb/optimizer"
	"github.com/sw965/mocb/report"
	"github.com/sw965/mocb/ridge"
	"github.com/sw965/mocb/simplex"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrTerminal = errors.New("bandit: loop already terminated")

type Option func(*Loop)

func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) {
		l.log = log
	}
}

func WithReporter(r report.Reporter) Option {
	return func(l *Loop) {
		l.reporter = r
	}
}

func WithProjector(p simplex.Projector) Option {
	return func(l *Loop) {
		l.projector = p
	}
}

func WithRunID(id uuid.UUID) Option {
	return func(l *Loop) {
		l.id = id
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(f func(State)) Option {
	return func(l *Loop) {
		l.onState = f
	}
}

type Loop struct {
	cfg       mocb.Config
	id        uuid.UUID
	env       env.Environment
	truth     *mat.Dense
	estimator *ridge.Estimator
	evaluator *ggi.Evaluator
	ascent    optimizer.Ascent
	projector simplex.Projector
	log       *zap.Logger
	reporter  report.Reporter
	onState   func(State)

	state     State
	round     int
	alpha     []float64
	rewardSum []float64
	series    report.Series
	arms      []int
	warnings  int
	err       error
}

type Result struct {
	RunID    uuid.UUID
	Series   report.Series
	Alpha    []float64
	Estimate *mat.Dense
	Arms     []int
	Warnings int
}

func New(cfg mocb.Config, e env.Environment, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: environmentが未初期化(nil)", mocb.ErrConfig)
	}

	l := &Loop{
		cfg:       cfg,
		id:        uuid.New(),
		env:       e,
		projector: simplex.Default(),
		log:       zap.NewNop(),
		reporter:  report.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.reporter == nil {
		l.reporter = report.Nop{}
	}
	l.enter(Initializing)

	if tr, ok := e.(env.Truth); ok {
		if theta := tr.Theta(); theta != nil {
			if r, c := theta.Dims(); r != cfg.M || c != cfg.D {
				return nil, fmt.Errorf("%w: 環境の theta=%dx%d != M×D=%dx%d", mocb.ErrConfig, r, c, cfg.M, cfg.D)
			}
			l.truth = theta
		}
	}

	var err error
	l.estimator, err = ridge.New(cfg.M, cfg.D, cfg.Lambda)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mocb.ErrConfig, err)
	}
	l.evaluator, err = ggi.New(cfg.D)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mocb.ErrConfig, err)
	}
	l.ascent, err = optimizer.New(cfg.Scheme, l.evaluator, cfg.Eta, cfg.Iterations,
		optimizer.WithProjector(l.projector),
		optimizer.WithNonConvergenceHook(l.onNonConvergence),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mocb.ErrConfig, err)
	}

	l.alpha = optimizer.Uniform(cfg.K)
	l.rewardSum = make([]float64, cfg.D)
	l.series = make(report.Series, 0, cfg.T)
	l.arms = make([]int, 0, cfg.T)
	l.log = l.log.With(zap.Stringer("run", l.id))
	return l, nil
}

func (l *Loop) enter(s State) {
	l.state = s
	if l.onState != nil {
		l.onState(s)
	}
}

func (l *Loop) onNonConvergence(iteration int, p simplex.Projection) {
	l.warnings++
	l.log.Warn("simplex projection did not converge",
		zap.Int("round", l.round+1),
		zap.Int("iteration", iteration),
		zap.Int("bisections", p.Iterations),
		zap.Float64("residual", p.Residual),
	)
}

func (l *Loop) fail(err error) error {
	l.err = fmt.Errorf("round=%d %s: %w", l.round+1, l.state, err)
	l.log.Error("run aborted", zap.Error(l.err))
	l.enter(Terminal)
	return l.err
}

func (l *Loop) drawFeatures(t int) (*mat.Dense, error) {
	xs := mat.NewDense(l.cfg.K, l.cfg.M, nil)
	for k := 0; k < l.cfg.K; k++ {
		x, err := l.env.Features(t, k)
		if err != nil {
			return nil, err
		}
		if len(x) != l.cfg.M {
			return nil, fmt.Errorf("%w: arm=%d の特徴量の長さ=%d != M=%d", env.ErrShape, k, len(x), l.cfg.M)
		}
		xs.SetRow(k, x)
	}
	return xs, nil
}

// Step plays one round. After T rounds, or after a fatal error, the loop is Terminal.
func (l *Loop) Step() error {
	if l.err != nil {
		return l.err
	}
	if l.state == Terminal {
		return ErrTerminal
	}
	t := l.round
	l.enter(RoundStart)

	l.enter(Estimating)
	thetaHat, err := l.estimator.Estimate()
	if err != nil {
		return l.fail(err)
	}

	l.enter(FeatureDraw)
	xs, err := l.drawFeatures(t)
	if err != nil {
		return l.fail(err)
	}

	l.enter(Selecting)
	alpha, err := l.ascent.Refine(l.alpha, thetaHat, xs)
	if err != nil {
		return l.fail(err)
	}
	l.alpha = alpha

	l.enter(Acting)
	arm := optimizer.Argmax(alpha)

	l.enter(Observing)
	x := slices.Clone(xs.RawRowView(arm))
	r, err := l.env.Reward(t, arm, x)
	if err != nil {
		return l.fail(err)
	}

	l.enter(Updating)
	if err := l.estimator.Update(x, r); err != nil {
		return l.fail(err)
	}
	floats.Add(l.rewardSum, r)
	l.arms = append(l.arms, arm)
	l.round++

	l.enter(Reporting)
	avg := slices.Clone(l.rewardSum)
	floats.Scale(1.0/float64(l.round), avg)
	value, err := l.evaluator.Of(avg)
	if err != nil {
		return l.fail(err)
	}
	l.series = append(l.series, value)

	rec := report.Record{
		RunID: l.id,
		Round: l.round,
		GGI:   value,
		Arm:   arm,
		Alpha: alpha,
	}
	if l.truth != nil {
		rec.EstimationError = ridge.Distance(thetaHat, l.truth)
		rec.HasTruth = true
	}
	l.reporter.Report(rec)

	if l.round == l.cfg.T {
		l.enter(Terminal)
	}
	return nil
}

// Run plays the remaining rounds and hands the series to the reporter. On a fatal error the
// partial result is returned with the error.
func (l *Loop) Run() (Result, error) {
	for l.state != Terminal {
		if err := l.Step(); err != nil {
			return l.result(), err
		}
	}
	if l.err != nil {
		return l.result(), l.err
	}
	l.reporter.Finish(l.id, l.series.Clone())
	if l.warnings > 0 {
		l.log.Warn("imprecise projections used", zap.Int("count", l.warnings))
	}
	return l.result(), nil
}

func (l *Loop) result() Result {
	res := Result{
		RunID:    l.id,
		Series:   l.series.Clone(),
		Alpha:    slices.Clone(l.alpha),
		Arms:     slices.Clone(l.arms),
		Warnings: l.warnings,
	}
	if theta, err := l.estimator.Estimate(); err == nil {
		res.Estimate = theta
	}
	return res
}

func (l *Loop) ID() uuid.UUID {
	return l.id
}

func (l *Loop) State() State {
	return l.state
}

// Round is the number of completed rounds.
func (l *Loop) Round() int {
	return l.round
}

func (l *Loop) Alpha() []float64 {
	return slices.Clone(l.alpha)
}

func (l *Loop) Series() report.Series {
	return l.series.Clone()
}

func (l *Loop) Estimator() *ridge.Estimator {
	return l.estimator
}

func (l *Loop) Warnings() int {
	return l.warnings
}
