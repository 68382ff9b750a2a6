// Package env provides the environments a bandit loop interacts with. An environment supplies
// the per-arm context features of every round and the reward of the single arm played.
package env

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sw965/mocb/mathx"
	"github.com/sw965/mocb/mathx/randx"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrShape     = errors.New("env: shape mismatch")
	ErrExhausted = errors.New("env: replay exhausted")
)

type Environment interface {
	// Features returns the M-dimensional context of arm in round.
	Features(round, arm int) ([]float64, error)
	// Reward returns the D-dimensional reward observed for playing arm with context x.
	Reward(round, arm int, x []float64) ([]float64, error)
}

// Truth is implemented by environments whose reward weights are known, so that estimation
// error can be reported.
type Truth interface {
	Theta() *mat.Dense
}

// MeanReward returns x^T·theta.
func MeanReward(theta mat.Matrix, x []float64) ([]float64, error) {
	m, d := theta.Dims()
	if len(x) != m {
		return nil, fmt.Errorf("%w: len(x)=%d != m=%d", ErrShape, len(x), m)
	}
	mu := mat.NewVecDense(d, nil)
	mu.MulVec(theta.T(), mat.NewVecDense(m, x))
	return mu.RawVector().Data, nil
}

const DefaultNoiseRatio = 0.1

// SyntheticGaussian draws every feature coordinate i.i.d. from N(FeatureMean, FeatureStd^2)
// and rewards as x^T·theta plus independent noise with std NoiseRatio*|mean_d|.
type SyntheticGaussian struct {
	theta       *mat.Dense
	FeatureMean float64
	FeatureStd  float64
	NoiseRatio  float64
	rng         *rand.Rand
}

type GaussianOption func(*SyntheticGaussian)

func WithTheta(theta *mat.Dense) GaussianOption {
	return func(g *SyntheticGaussian) {
		g.theta = theta
	}
}

func WithFeatureDistribution(mean, std float64) GaussianOption {
	return func(g *SyntheticGaussian) {
		g.FeatureMean = mean
		g.FeatureStd = std
	}
}

func WithNoiseRatio(ratio float64) GaussianOption {
	return func(g *SyntheticGaussian) {
		g.NoiseRatio = ratio
	}
}

// NewSyntheticGaussian defaults to features N(1/m, (1/m)^2), a noise ratio of 0.1 and a true
// theta drawn from U(0, 1) with rng.
func NewSyntheticGaussian(m, d int, rng *rand.Rand, opts ...GaussianOption) (*SyntheticGaussian, error) {
	if m <= 0 || d <= 0 {
		return nil, fmt.Errorf("%w: 次元が不正(<=0): m=%d d=%d", ErrShape, m, d)
	}
	if rng == nil {
		return nil, fmt.Errorf("rngが未初期化(nil)")
	}

	g := &SyntheticGaussian{
		FeatureMean: 1.0 / float64(m),
		FeatureStd:  1.0 / float64(m),
		NoiseRatio:  DefaultNoiseRatio,
		rng:         rng,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.theta == nil {
		g.theta = mat.NewDense(m, d, randx.Uniforms(m*d, 0.0, 1.0, rng))
	}
	if r, c := g.theta.Dims(); r != m || c != d {
		return nil, fmt.Errorf("%w: theta=%dx%d, want %dx%d", ErrShape, r, c, m, d)
	}
	if !mathx.AllFinite([]float64{g.FeatureMean, g.FeatureStd, g.NoiseRatio}) {
		return nil, fmt.Errorf("分布のパラメータが不正(NaN/Inf): featureMean=%.6g featureStd=%.6g noiseRatio=%.6g",
			g.FeatureMean, g.FeatureStd, g.NoiseRatio)
	}
	if g.FeatureStd < 0 || g.NoiseRatio < 0 {
		return nil, fmt.Errorf("標準偏差が不正(<0): featureStd=%.6g noiseRatio=%.6g", g.FeatureStd, g.NoiseRatio)
	}
	if !mathx.AllFinite(g.theta.RawMatrix().Data) {
		return nil, fmt.Errorf("thetaが不正(NaN/Inf)")
	}
	return g, nil
}

func (g *SyntheticGaussian) Theta() *mat.Dense {
	return g.theta
}

func (g *SyntheticGaussian) Features(round, arm int) ([]float64, error) {
	m, _ := g.theta.Dims()
	return randx.Normals(m, g.FeatureMean, g.FeatureStd, g.rng), nil
}

func (g *SyntheticGaussian) Reward(round, arm int, x []float64) ([]float64, error) {
	mu, err := MeanReward(g.theta, x)
	if err != nil {
		return nil, err
	}
	r := make([]float64, len(mu))
	for d, m := range mu {
		r[d] = m + g.NoiseRatio*math.Abs(m)*g.rng.NormFloat64()
	}
	return r, nil
}

// Replay plays back recorded rounds of per-arm features. Rewards are either recorded per
// (round, arm) or computed noise-free from a known theta. When Cycle is set, rounds past the
// record wrap around.
type Replay struct {
	rounds  [][][]float64
	rewards [][][]float64
	theta   *mat.Dense
	Cycle   bool
}

func validateRounds(rounds [][][]float64, width int) (int, error) {
	if len(rounds) == 0 {
		return 0, fmt.Errorf("%w: 記録が空", ErrShape)
	}
	k := len(rounds[0])
	for t, arms := range rounds {
		if len(arms) != k || k == 0 {
			return 0, fmt.Errorf("%w: round=%d の腕数=%d != %d", ErrShape, t, len(arms), k)
		}
		for a, x := range arms {
			if width >= 0 && len(x) != width {
				return 0, fmt.Errorf("%w: round=%d arm=%d の長さ=%d != %d", ErrShape, t, a, len(x), width)
			}
		}
	}
	return k, nil
}

func NewReplay(rounds [][][]float64, theta *mat.Dense) (*Replay, error) {
	if theta == nil {
		return nil, fmt.Errorf("thetaが未初期化(nil)")
	}
	m, _ := theta.Dims()
	if _, err := validateRounds(rounds, m); err != nil {
		return nil, err
	}
	return &Replay{rounds: rounds, theta: theta, Cycle: true}, nil
}

// NewRecordedReplay replays logged features together with logged rewards. The true theta is
// unknown, so Theta returns nil.
func NewRecordedReplay(rounds, rewards [][][]float64) (*Replay, error) {
	k, err := validateRounds(rounds, -1)
	if err != nil {
		return nil, err
	}
	if len(rewards) != len(rounds) {
		return nil, fmt.Errorf("%w: rewards=%d rounds != %d", ErrShape, len(rewards), len(rounds))
	}
	if rk, err := validateRounds(rewards, -1); err != nil {
		return nil, err
	} else if rk != k {
		return nil, fmt.Errorf("%w: rewards の腕数=%d != %d", ErrShape, rk, k)
	}
	return &Replay{rounds: rounds, rewards: rewards, Cycle: true}, nil
}

// Fixed replays the same feature vectors every round.
func Fixed(xs [][]float64, theta *mat.Dense) (*Replay, error) {
	return NewReplay([][][]float64{xs}, theta)
}

func (r *Replay) Theta() *mat.Dense {
	return r.theta
}

func (r *Replay) Len() int {
	return len(r.rounds)
}

func (r *Replay) index(round, arm int) (int, error) {
	if round < 0 {
		return 0, fmt.Errorf("%w: roundが不正(<0): round=%d", ErrShape, round)
	}
	t := round
	if t >= len(r.rounds) {
		if !r.Cycle {
			return 0, fmt.Errorf("%w: round=%d >= %d", ErrExhausted, round, len(r.rounds))
		}
		t %= len(r.rounds)
	}
	if arm < 0 || arm >= len(r.rounds[t]) {
		return 0, fmt.Errorf("%w: armが不正: arm=%d k=%d", ErrShape, arm, len(r.rounds[t]))
	}
	return t, nil
}

func (r *Replay) Features(round, arm int) ([]float64, error) {
	t, err := r.index(round, arm)
	if err != nil {
		return nil, err
	}
	x := r.rounds[t][arm]
	return append([]float64(nil), x...), nil
}

func (r *Replay) Reward(round, arm int, x []float64) ([]float64, error) {
	t, err := r.index(round, arm)
	if err != nil {
		return nil, err
	}
	if r.rewards != nil {
		return append([]float64(nil), r.rewards[t][arm]...), nil
	}
	return MeanReward(r.theta, x)
}

// Adversary chooses the context of arm in round.
type Adversary func(round, arm int) []float64

// Rotating puts arm on the unit basis direction (arm + round) mod m, so the arm that favours
// each feature changes every round.
func Rotating(m int) Adversary {
	return func(round, arm int) []float64 {
		x := make([]float64, m)
		x[(arm+round)%m] = 1.0
		return x
	}
}

// Adversarial presents externally chosen contexts and noise-free rewards x^T·theta.
type Adversarial struct {
	theta     *mat.Dense
	adversary Adversary
}

func NewAdversarial(theta *mat.Dense, adversary Adversary) (*Adversarial, error) {
	if theta == nil {
		return nil, fmt.Errorf("thetaが未初期化(nil)")
	}
	if adversary == nil {
		m, _ := theta.Dims()
		adversary = Rotating(m)
	}
	return &Adversarial{theta: theta, adversary: adversary}, nil
}

func (a *Adversarial) Theta() *mat.Dense {
	return a.theta
}

func (a *Adversarial) Features(round, arm int) ([]float64, error) {
	x := a.adversary(round, arm)
	if m, _ := a.theta.Dims(); len(x) != m {
		return nil, fmt.Errorf("%w: adversary の長さ=%d != m=%d", ErrShape, len(x), m)
	}
	return x, nil
}

func (a *Adversarial) Reward(round, arm int, x []float64) ([]float64, error) {
	return MeanReward(a.theta, x)
}
