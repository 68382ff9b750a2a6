package bandit_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/sw965/mocb"
	"github.com/sw965/mocb/bandit"
	"github.com/sw965/mocb/env"
	"github.com/sw965/mocb/mathx/randx"
	"github.com/sw965/mocb/optimizer"
	"github.com/sw965/mocb/report"
	"github.com/sw965/mocb/simplex"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

func smallConfig(scheme optimizer.Scheme) mocb.Config {
	return mocb.Config{
		K:          2,
		D:          1,
		M:          1,
		T:          100,
		Lambda:     1.0,
		Eta:        0.5,
		Iterations: 5,
		Scheme:     scheme,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	e, _ := env.Fixed([][]float64{{1.0}, {1.0}}, mat.NewDense(1, 1, []float64{1.0}))

	cfg := smallConfig(optimizer.MultiplicativeWeights)
	cfg.Lambda = 0
	if _, err := bandit.New(cfg, e); !errors.Is(err, mocb.ErrConfig) {
		t.Errorf("lam=0: err = %v", err)
	}

	cfg = smallConfig(optimizer.MultiplicativeWeights)
	if _, err := bandit.New(cfg, nil); !errors.Is(err, mocb.ErrConfig) {
		t.Errorf("nil env: err = %v", err)
	}

	cfg.M = 2
	if _, err := bandit.New(cfg, e); !errors.Is(err, mocb.ErrConfig) {
		t.Errorf("theta の形が M×D と不一致: err = %v", err)
	}
}

// 同一の2本の腕、D=1、ノイズなし。
func TestIdenticalArms(t *testing.T) {
	for _, scheme := range optimizer.Schemes {
		e, err := env.Fixed([][]float64{{1.0}, {1.0}}, mat.NewDense(1, 1, []float64{1.0}))
		if err != nil {
			t.Fatal(err)
		}
		loop, err := bandit.New(smallConfig(scheme), e)
		if err != nil {
			t.Fatal(err)
		}
		res, err := loop.Run()
		if err != nil {
			t.Fatal(err)
		}

		if res.Series.Len() != 100 {
			t.Fatalf("%s: len(series) = %d", scheme, res.Series.Len())
		}
		for i, v := range res.Series {
			if math.Abs(v-1.0) > 1e-12 {
				t.Errorf("%s: series[%d] = %v, want 1", scheme, i, v)
			}
		}

		// A = 1 + 100, B = 100
		if got := res.Estimate.At(0, 0); math.Abs(got-100.0/101.0) > 1e-9 || math.Abs(got-1.0) > 0.02 {
			t.Errorf("%s: theta_hat = %v", scheme, got)
		}

		for i, arm := range res.Arms {
			if arm != 0 {
				t.Fatalf("%s: round %d で arm=%d, 同率なら最小の添字", scheme, i+1, arm)
			}
		}
		if math.Abs(res.Alpha[0]-0.5) > 1e-6 || math.Abs(res.Alpha[1]-0.5) > 1e-6 {
			t.Errorf("%s: alpha = %v, want [0.5 0.5]", scheme, res.Alpha)
		}
	}
}

func TestSingleRound(t *testing.T) {
	const lam = 0.5
	xs := [][]float64{{1.0, 2.0}, {3.0, 4.0}, {5.0, 6.0}}
	theta := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4})
	e, _ := env.Fixed(xs, theta)

	var states []bandit.State
	cfg := mocb.Config{K: 3, D: 2, M: 2, T: 1, Lambda: lam, Eta: 1.0, Iterations: 3, Scheme: optimizer.ProjectedGradient}
	loop, err := bandit.New(cfg, e, bandit.WithStateHook(func(s bandit.State) {
		states = append(states, s)
	}))
	if err != nil {
		t.Fatal(err)
	}

	res, err := loop.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Series.Len() != 1 || math.IsNaN(res.Series.At(0)) || math.IsInf(res.Series.At(0), 0) {
		t.Fatalf("series = %v", res.Series)
	}

	// 推定値0のとき勾配は0なので一様分布のまま、最小添字の腕0が選ばれる。
	if res.Arms[0] != 0 {
		t.Fatalf("arm = %d, want 0", res.Arms[0])
	}
	wantA := mat.NewSymDense(2, []float64{
		lam + 1.0, 2.0,
		2.0, lam + 4.0,
	})
	if !mat.EqualApprox(loop.Estimator().A(), wantA, 1e-12) {
		t.Errorf("A = %v", mat.Formatted(loop.Estimator().A()))
	}

	want := []bandit.State{
		bandit.Initializing, bandit.RoundStart, bandit.Estimating, bandit.FeatureDraw,
		bandit.Selecting, bandit.Acting, bandit.Observing, bandit.Updating,
		bandit.Reporting, bandit.Terminal,
	}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}

	if err := loop.Step(); !errors.Is(err, bandit.ErrTerminal) {
		t.Errorf("err = %v, want ErrTerminal", err)
	}
}

func TestSingleArmAlwaysOne(t *testing.T) {
	for _, scheme := range optimizer.Schemes {
		e, _ := env.NewSyntheticGaussian(3, 2, randx.NewMt19937(4))
		cfg := mocb.Config{K: 1, D: 2, M: 3, T: 30, Lambda: 0.1, Eta: 1.0, Iterations: 4, Scheme: scheme}
		rec := &report.Recorder{}
		loop, _ := bandit.New(cfg, e, bandit.WithReporter(rec))
		if _, err := loop.Run(); err != nil {
			t.Fatal(err)
		}
		for _, r := range rec.Records {
			if len(r.Alpha) != 1 || math.Abs(r.Alpha[0]-1.0) > 1e-6 || r.Arm != 0 {
				t.Fatalf("%s: round %d: alpha=%v arm=%d", scheme, r.Round, r.Alpha, r.Arm)
			}
		}
	}
}

func TestGaussianRunLearns(t *testing.T) {
	for _, scheme := range optimizer.Schemes {
		e, _ := env.NewSyntheticGaussian(4, 3, randx.NewMt19937(17))
		cfg := mocb.Config{K: 10, D: 3, M: 4, T: 500, Lambda: 0.1, Eta: 1.0, Iterations: 10, Scheme: scheme}
		rec := &report.Recorder{}
		loop, err := bandit.New(cfg, e, bandit.WithReporter(rec))
		if err != nil {
			t.Fatal(err)
		}
		res, err := loop.Run()
		if err != nil {
			t.Fatal(err)
		}

		if len(rec.Records) != cfg.T {
			t.Fatalf("records = %d, want %d", len(rec.Records), cfg.T)
		}
		for i, r := range rec.Records {
			if r.Round != i+1 || !r.HasTruth || r.RunID != res.RunID {
				t.Fatalf("record[%d] = %+v", i, r)
			}
			if !simplex.OnSimplex(r.Alpha, 1.0, 1e-6) {
				t.Fatalf("round %d: alpha が単体上にない: %v", r.Round, r.Alpha)
			}
		}
		first := rec.Records[0].EstimationError
		last := rec.Records[len(rec.Records)-1].EstimationError
		if !(last < 0.5*first) {
			t.Errorf("%s: 推定誤差が十分に減っていない: first=%v last=%v", scheme, first, last)
		}
		if !slices.Equal(rec.Finished, res.Series) {
			t.Errorf("Finish に渡された系列が結果と異なる")
		}
	}
}

func TestDeterministicGivenSeed(t *testing.T) {
	run := func() []float64 {
		e, _ := env.NewSyntheticGaussian(3, 2, randx.NewMt19937(99))
		cfg := mocb.Config{K: 5, D: 2, M: 3, T: 50, Lambda: 0.1, Eta: 1.0, Iterations: 5, Scheme: optimizer.MultiplicativeWeights}
		loop, _ := bandit.New(cfg, e)
		res, err := loop.Run()
		if err != nil {
			t.Fatal(err)
		}
		return res.Series
	}
	if a, b := run(), run(); !slices.Equal(a, b) {
		t.Errorf("同じseedで結果が異なる")
	}
}

func TestRecordedReplayHasNoTruth(t *testing.T) {
	e, _ := env.NewRecordedReplay(
		[][][]float64{{{1.0}, {0.5}}},
		[][][]float64{{{1.0}, {0.5}}},
	)
	rec := &report.Recorder{}
	cfg := smallConfig(optimizer.MultiplicativeWeights)
	cfg.T = 3
	loop, err := bandit.New(cfg, e, bandit.WithReporter(rec))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	for _, r := range rec.Records {
		if r.HasTruth {
			t.Errorf("theta が未知の環境で HasTruth が立った")
		}
	}
}

type failingEnv struct {
	env.Environment
	failAt int
}

var errBroken = errors.New("broken sensor")

func (f failingEnv) Reward(round, arm int, x []float64) ([]float64, error) {
	if round == f.failAt {
		return nil, errBroken
	}
	return f.Environment.Reward(round, arm, x)
}

func TestFatalErrorStopsRun(t *testing.T) {
	base, _ := env.Fixed([][]float64{{1.0}, {1.0}}, mat.NewDense(1, 1, []float64{1.0}))
	loop, _ := bandit.New(smallConfig(optimizer.ProjectedGradient), failingEnv{Environment: base, failAt: 3})

	res, err := loop.Run()
	if !errors.Is(err, errBroken) {
		t.Fatalf("err = %v, want errBroken", err)
	}
	if res.Series.Len() != 3 || loop.Round() != 3 {
		t.Errorf("series = %d rounds, Round() = %d, want 3", res.Series.Len(), loop.Round())
	}
	if loop.State() != bandit.Terminal {
		t.Errorf("state = %v", loop.State())
	}
	if err2 := loop.Step(); !errors.Is(err2, errBroken) {
		t.Errorf("失敗後の Step は同じエラーを返すべき: %v", err2)
	}
}

func TestFeatureShapeIsChecked(t *testing.T) {
	theta := mat.NewDense(2, 1, []float64{1.0, 1.0})
	e, _ := env.NewAdversarial(theta, func(int, int) []float64 { return []float64{1.0, 0.0} })
	cfg := mocb.Config{K: 2, D: 1, M: 2, T: 2, Lambda: 1.0, Eta: 1.0, Iterations: 1, Scheme: optimizer.MultiplicativeWeights}
	loop, err := bandit.New(cfg, e)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	short := failingFeatures{Adversarial: e}
	loop, _ = bandit.New(cfg, short)
	if _, err := loop.Run(); !errors.Is(err, env.ErrShape) {
		t.Errorf("err = %v, want env.ErrShape", err)
	}
}

type failingFeatures struct {
	*env.Adversarial
}

func (failingFeatures) Features(int, int) ([]float64, error) {
	return []float64{1.0}, nil
}

func TestProjectionWarningsAreNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, _ := env.NewSyntheticGaussian(3, 2, randx.NewMt19937(6))
	cfg := mocb.Config{K: 4, D: 2, M: 3, T: 20, Lambda: 0.1, Eta: 1.0, Iterations: 3, Scheme: optimizer.ProjectedGradient}
	loop, err := bandit.New(cfg, e,
		bandit.WithLogger(zap.New(core)),
		bandit.WithProjector(simplex.Projector{Z: 1.0, Tolerance: 1e-300, MaxIterations: 1}),
	)
	if err != nil {
		t.Fatal(err)
	}
	res, err := loop.Run()
	if err != nil {
		t.Fatalf("射影の非収束で中断した: %v", err)
	}
	if res.Series.Len() != cfg.T {
		t.Errorf("len(series) = %d", res.Series.Len())
	}
	if res.Warnings == 0 || logs.FilterMessage("simplex projection did not converge").Len() != res.Warnings {
		t.Errorf("warnings = %d, logged = %d", res.Warnings, logs.FilterMessage("simplex projection did not converge").Len())
	}
}

func TestStateString(t *testing.T) {
	if bandit.Selecting.String() != "Selecting" || bandit.Terminal.String() != "Terminal" {
		t.Errorf("String() が不正")
	}
	if bandit.State(42).String() != "State(?)" {
		t.Errorf("範囲外の State")
	}
}
