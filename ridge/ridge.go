// Package ridge accumulates ridge-regression sufficient statistics for a linear model with
// matrix-valued weights and solves for the current estimate.
//
//	A = lam*I + sum x x^T   (M×M)
//	B =         sum x r^T   (M×D)
//	Theta_hat = A^-1 B
package ridge

import (
	"errors"
	"fmt"
	"math"

	"github.com/sw965/mocb/mathx"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrConfig               = errors.New("ridge: invalid configuration")
	ErrShape                = errors.New("ridge: shape mismatch")
	ErrNumericalInstability = errors.New("ridge: numerical instability")
)

type Estimator struct {
	lam   float64
	a     *mat.SymDense
	b     *mat.Dense
	count int
}

func New(m, d int, lam float64) (*Estimator, error) {
	if m <= 0 || d <= 0 {
		return nil, fmt.Errorf("%w: 次元が不正(<=0): m=%d d=%d", ErrConfig, m, d)
	}
	if !(lam > 0) || math.IsInf(lam, 0) {
		return nil, fmt.Errorf("%w: lamが不正(<=0/NaN/Inf): lam=%.6g", ErrConfig, lam)
	}

	a := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		a.SetSym(i, i, lam)
	}
	return &Estimator{
		lam: lam,
		a:   a,
		b:   mat.NewDense(m, d, nil),
	}, nil
}

func (e *Estimator) Dims() (m, d int) {
	return e.b.Dims()
}

func (e *Estimator) Lambda() float64 {
	return e.lam
}

func (e *Estimator) Count() int {
	return e.count
}

func (e *Estimator) A() *mat.SymDense {
	a := mat.NewSymDense(e.a.SymmetricDim(), nil)
	a.CopySym(e.a)
	return a
}

func (e *Estimator) B() *mat.Dense {
	return mat.DenseCopyOf(e.b)
}

// Estimate solves A·Theta = B through a Cholesky factorisation of A. It is recomputed on
// every call.
func (e *Estimator) Estimate() (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(e.a); !ok {
		return nil, fmt.Errorf("%w: Aが正定値でない (count=%d)", ErrNumericalInstability, e.count)
	}

	var theta mat.Dense
	if err := chol.SolveTo(&theta, e.b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumericalInstability, err)
	}
	if !mathx.AllFinite(theta.RawMatrix().Data) {
		return nil, fmt.Errorf("%w: 推定値に NaN/Inf が含まれる (count=%d)", ErrNumericalInstability, e.count)
	}
	return &theta, nil
}

// Update adds one observation: A += x x^T, B += x r^T.
func (e *Estimator) Update(x, r []float64) error {
	m, d := e.Dims()
	if len(x) != m {
		return fmt.Errorf("%w: len(x)=%d != m=%d", ErrShape, len(x), m)
	}
	if len(r) != d {
		return fmt.Errorf("%w: len(r)=%d != d=%d", ErrShape, len(r), d)
	}
	if !mathx.AllFinite(x) || !mathx.AllFinite(r) {
		return fmt.Errorf("%w: 観測に NaN/Inf が含まれる: x=%v r=%v", ErrNumericalInstability, x, r)
	}

	xv := mat.NewVecDense(m, x)
	e.a.SymRankOne(e.a, 1.0, xv)
	e.b.RankOne(e.b, 1.0, xv, mat.NewVecDense(d, r))
	e.count++
	return nil
}

// Distance is the Frobenius norm of a - b.
func Distance(a, b mat.Matrix) float64 {
	var diff mat.Dense
	diff.Sub(a, b)
	return mat.Norm(&diff, 2)
}
