// Package ggi implements the Generalized Gini Index scalarisation of vector rewards and its
// subgradient with respect to arm-selection weights.
//
// GGI(x) = sum_d w_d * sort(x)_d with sort ascending and w strictly decreasing, so the worst
// objective receives the largest weight.
package ggi

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

var ErrShape = errors.New("ggi: shape mismatch")

// Weights returns w_d = 2^-(d-1) for d = 1..n.
func Weights(n int) []float64 {
	w := make([]float64, n)
	for d := range w {
		w[d] = math.Pow(2.0, -float64(d))
	}
	return w
}

type Evaluator struct {
	w []float64
}

func New(d int) (*Evaluator, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: dが不正(<=0): d=%d", ErrShape, d)
	}
	return &Evaluator{w: Weights(d)}, nil
}

func NewWithWeights(w []float64) (*Evaluator, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: wが空", ErrShape)
	}
	for d := 1; d < len(w); d++ {
		if !(w[d] < w[d-1]) || w[d] < 0 {
			return nil, fmt.Errorf("%w: wが狭義単調減少でない: w=%v", ErrShape, w)
		}
	}
	return &Evaluator{w: slices.Clone(w)}, nil
}

func (e *Evaluator) D() int {
	return len(e.w)
}

func (e *Evaluator) W() []float64 {
	return slices.Clone(e.w)
}

// Order returns the stable ascending argsort of x. Equal coordinates keep index order.
func Order(x []float64) []int {
	idxs := make([]int, len(x))
	for i := range idxs {
		idxs[i] = i
	}
	slices.SortStableFunc(idxs, func(a, b int) int {
		return cmp.Compare(x[a], x[b])
	})
	return idxs
}

// Of returns the GGI of an objective vector.
func (e *Evaluator) Of(x []float64) (float64, error) {
	if len(x) != len(e.w) {
		return 0.0, fmt.Errorf("%w: len(x)=%d != d=%d", ErrShape, len(x), len(e.w))
	}
	return e.sortedDot(x, Order(x)), nil
}

func (e *Evaluator) sortedDot(x []float64, order []int) float64 {
	sum := 0.0
	for d, i := range order {
		sum += e.w[d] * x[i]
	}
	return sum
}

// armRewards returns the K×D matrix whose row k is x_k^T·theta.
func (e *Evaluator) armRewards(alpha []float64, theta, xs mat.Matrix) (*mat.Dense, error) {
	k, m := xs.Dims()
	tm, d := theta.Dims()
	if len(alpha) != k {
		return nil, fmt.Errorf("%w: len(alpha)=%d != K=%d", ErrShape, len(alpha), k)
	}
	if tm != m {
		return nil, fmt.Errorf("%w: theta rows=%d != M=%d", ErrShape, tm, m)
	}
	if d != len(e.w) {
		return nil, fmt.Errorf("%w: theta cols=%d != D=%d", ErrShape, d, len(e.w))
	}
	var rewards mat.Dense
	rewards.Mul(xs, theta)
	return &rewards, nil
}

func aggregate(alpha []float64, rewards *mat.Dense) []float64 {
	_, d := rewards.Dims()
	x := mat.NewVecDense(d, nil)
	x.MulVec(rewards.T(), mat.NewVecDense(len(alpha), alpha))
	return x.RawVector().Data
}

// Aggregate returns sum_k alpha[k] * (x_k^T·theta). xs holds one feature vector per row.
func (e *Evaluator) Aggregate(alpha []float64, theta, xs mat.Matrix) ([]float64, error) {
	rewards, err := e.armRewards(alpha, theta, xs)
	if err != nil {
		return nil, err
	}
	return aggregate(alpha, rewards), nil
}

func (e *Evaluator) Value(alpha []float64, theta, xs mat.Matrix) (float64, error) {
	x, err := e.Aggregate(alpha, theta, xs)
	if err != nil {
		return 0.0, err
	}
	return e.sortedDot(x, Order(x)), nil
}

// Gradient returns the subgradient of Value with respect to alpha, holding the sort order of
// the aggregate reward fixed.
func (e *Evaluator) Gradient(alpha []float64, thetaHat, xs mat.Matrix) ([]float64, error) {
	rewards, err := e.armRewards(alpha, thetaHat, xs)
	if err != nil {
		return nil, err
	}
	order := Order(aggregate(alpha, rewards))

	grad := make([]float64, len(alpha))
	for k := range grad {
		grad[k] = e.sortedDot(rewards.RawRowView(k), order)
	}
	return grad, nil
}
