// Package simplex projects vectors onto the probability simplex {p : sum(p) = z, p >= 0}.
//
// Package simplex はベクトルを確率単体へ射影する。二分法による近似射影と、
// ソートによる厳密射影 (Duchi et al. 2008) を提供する。
//
// https://stanford.edu/~jduchi/projects/DuchiShSiCh08.pdf
package simplex

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var ErrNonConvergence = errors.New("simplex: projection did not converge")

const (
	DefaultZ             = 1.0
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 1000
)

type Projector struct {
	Z             float64
	Tolerance     float64
	MaxIterations int
}

func Default() Projector {
	return Projector{
		Z:             DefaultZ,
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
	}
}

// Projection is the outcome of a bisection projection. Residual is sum(P) - Z at the final
// threshold Tau.
type Projection struct {
	P          []float64
	Tau        float64
	Residual   float64
	Iterations int
	Converged  bool
}

func (p Projection) Err() error {
	if p.Converged {
		return nil
	}
	return fmt.Errorf("%w: iterations=%d residual=%.6g", ErrNonConvergence, p.Iterations, p.Residual)
}

func (pr *Projector) withDefaults() Projector {
	d := *pr
	if d.Z <= 0 || math.IsNaN(d.Z) || math.IsInf(d.Z, 0) {
		d.Z = DefaultZ
	}
	if d.Tolerance <= 0 || math.IsNaN(d.Tolerance) {
		d.Tolerance = DefaultTolerance
	}
	if d.MaxIterations <= 0 {
		d.MaxIterations = DefaultMaxIterations
	}
	return d
}

func excess(v []float64, tau, z float64) float64 {
	sum := 0.0
	for _, e := range v {
		if d := e - tau; d > 0 {
			sum += d
		}
	}
	return sum - z
}

// Project searches the threshold tau with sum(max(v - tau, 0)) = Z by bisection on
// [min(v) - Z/n, max(v)]. An exhausted iteration budget still yields a valid
// non-negative vector, with Converged reporting false.
func (pr *Projector) Project(v []float64) Projection {
	cfg := pr.withDefaults()
	n := len(v)
	if n == 0 {
		return Projection{P: []float64{}, Converged: true}
	}

	z := cfg.Z
	lower := slices.Min(v) - z/float64(n)
	upper := slices.Max(v)

	var mid, value float64
	iterations := 0
	converged := false
	for iterations < cfg.MaxIterations {
		mid = (upper + lower) / 2.0
		value = excess(v, mid, z)
		iterations++

		if math.Abs(value) <= cfg.Tolerance {
			converged = true
			break
		}

		if value <= 0 {
			upper = mid
		} else {
			lower = mid
		}
	}

	p := make([]float64, n)
	for i, e := range v {
		p[i] = math.Max(e-mid, 0)
	}

	return Projection{
		P:          p,
		Tau:        mid,
		Residual:   value,
		Iterations: iterations,
		Converged:  converged,
	}
}

// Project は既定値 (z=1, tolerance=1e-6, maxIterations=1000) で射影する。
func Project(v []float64) Projection {
	pr := Default()
	return pr.Project(v)
}

// Exact returns the exact Euclidean projection of v onto the simplex of total z.
func Exact(v []float64, z float64) []float64 {
	n := len(v)
	if n == 0 {
		return []float64{}
	}

	u := slices.Clone(v)
	slices.Sort(u)
	slices.Reverse(u)

	cumsum := 0.0
	theta := 0.0
	for j, uj := range u {
		cumsum += uj
		t := (cumsum - z) / float64(j+1)
		if uj-t > 0 {
			theta = t
		}
	}

	p := make([]float64, n)
	for i, e := range v {
		p[i] = math.Max(e-theta, 0)
	}
	return p
}

func OnSimplex(p []float64, z, tol float64) bool {
	sum := 0.0
	for _, e := range p {
		if e < -tol || math.IsNaN(e) {
			return false
		}
		sum += e
	}
	return math.Abs(sum-z) <= tol
}
