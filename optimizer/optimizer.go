package optimizer

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/sw965/mocb/ggi"
	"github.com/sw965/mocb/simplex"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrScheme     = errors.New("optimizer: unknown ascent scheme")
	ErrDegenerate = errors.New("optimizer: degenerate update")
)

type Scheme string

const (
	ProjectedGradient     Scheme = "projected-gradient"
	MultiplicativeWeights Scheme = "multiplicative-weights"
)

var Schemes = []Scheme{ProjectedGradient, MultiplicativeWeights}

func (s Scheme) Valid() bool {
	return slices.Contains(Schemes, s)
}

// Ascent refines a distribution over arms toward a higher GGI. alpha must lie on the simplex
// and is not modified.
type Ascent interface {
	Refine(alpha []float64, thetaHat, xs mat.Matrix) ([]float64, error)
}

type Option func(*options)

type options struct {
	projector        simplex.Projector
	onNonConvergence func(int, simplex.Projection)
}

func WithProjector(p simplex.Projector) Option {
	return func(o *options) {
		o.projector = p
	}
}

// WithNonConvergenceHook is called with the iteration index whenever a simplex projection
// exhausts its budget. The imprecise projection is used regardless.
func WithNonConvergenceHook(f func(int, simplex.Projection)) Option {
	return func(o *options) {
		o.onNonConvergence = f
	}
}

func New(scheme Scheme, evaluator *ggi.Evaluator, eta float64, iterations int, opts ...Option) (Ascent, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluatorが未初期化(nil)")
	}
	if eta <= 0 || math.IsNaN(eta) || math.IsInf(eta, 0) {
		return nil, fmt.Errorf("etaが不正(<=0/NaN/Inf): eta=%.6g", eta)
	}
	if iterations < 1 {
		return nil, fmt.Errorf("iterationsが不正(<1): iterations=%d", iterations)
	}

	o := options{projector: simplex.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	switch scheme {
	case ProjectedGradient:
		return &Gradient{
			Evaluator:        evaluator,
			Projector:        o.projector,
			Eta:              eta,
			Iterations:       iterations,
			OnNonConvergence: o.onNonConvergence,
		}, nil
	case MultiplicativeWeights:
		return &Multiplicative{
			Evaluator:  evaluator,
			Eta:        eta,
			Iterations: iterations,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrScheme, scheme)
}

// Gradient is projected gradient ascent: alpha <- Project(alpha + Eta*grad).
type Gradient struct {
	Evaluator        *ggi.Evaluator
	Projector        simplex.Projector
	Eta              float64
	Iterations       int
	OnNonConvergence func(int, simplex.Projection)
}

func (g *Gradient) Step(alpha []float64, thetaHat, xs mat.Matrix) ([]float64, simplex.Projection, error) {
	grad, err := g.Evaluator.Gradient(alpha, thetaHat, xs)
	if err != nil {
		return nil, simplex.Projection{}, err
	}
	v := slices.Clone(alpha)
	floats.AddScaled(v, g.Eta, grad)
	proj := g.Projector.Project(v)
	return proj.P, proj, nil
}

func (g *Gradient) Refine(alpha []float64, thetaHat, xs mat.Matrix) ([]float64, error) {
	for i := 0; i < g.Iterations; i++ {
		next, proj, err := g.Step(alpha, thetaHat, xs)
		if err != nil {
			return nil, err
		}
		if !proj.Converged && g.OnNonConvergence != nil {
			g.OnNonConvergence(i, proj)
		}
		alpha = next
	}
	return alpha, nil
}

// Multiplicative is exponentiated-gradient (mirror) ascent:
// alpha <- alpha*exp(Eta*grad) / sum(alpha*exp(Eta*grad)).
type Multiplicative struct {
	Evaluator  *ggi.Evaluator
	Eta        float64
	Iterations int
}

func (m *Multiplicative) Step(alpha []float64, thetaHat, xs mat.Matrix) ([]float64, error) {
	grad, err := m.Evaluator.Gradient(alpha, thetaHat, xs)
	if err != nil {
		return nil, err
	}

	// 支持集合 alpha_i > 0 上の log-sum-exp。alpha_i = 0 の腕は 0 のまま。
	logits := make([]float64, len(alpha))
	shift := math.Inf(-1)
	for i, a := range alpha {
		if a > 0 {
			logits[i] = math.Log(a) + m.Eta*grad[i]
			shift = math.Max(shift, logits[i])
		}
	}
	if math.IsInf(shift, 0) || math.IsNaN(shift) {
		return nil, fmt.Errorf("%w: alphaの支持集合が空、または勾配が不正: alpha=%v grad=%v", ErrDegenerate, alpha, grad)
	}
	next := make([]float64, len(alpha))
	for i, a := range alpha {
		if a > 0 {
			next[i] = math.Exp(logits[i] - shift)
		}
	}

	sum := floats.Sum(next)
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: 正規化定数が不正(<=0/NaN/Inf): sum=%.6g", ErrDegenerate, sum)
	}
	floats.Scale(1.0/sum, next)
	return next, nil
}

func (m *Multiplicative) Refine(alpha []float64, thetaHat, xs mat.Matrix) ([]float64, error) {
	for i := 0; i < m.Iterations; i++ {
		next, err := m.Step(alpha, thetaHat, xs)
		if err != nil {
			return nil, err
		}
		alpha = next
	}
	return alpha, nil
}

// Uniform returns the uniform distribution over k arms.
func Uniform(k int) []float64 {
	alpha := make([]float64, k)
	for i := range alpha {
		alpha[i] = 1.0 / float64(k)
	}
	return alpha
}

// Argmax returns the index of the largest weight; the lowest index wins ties.
func Argmax(alpha []float64) int {
	best := 0
	for i, a := range alpha {
		if a > alpha[best] {
			best = i
		}
	}
	return best
}
