package mathx

import (
	"math"
)

func CentralDifference(plusY, minusY, h float64) float64 {
	return (plusY - minusY) / (2.0 * h)
}

// NumericalGradient は f の xs における中心差分勾配を返す。xs は呼び出し後に元の値へ戻る。
func NumericalGradient(xs []float64, h float64, f func([]float64) float64) []float64 {
	grad := make([]float64, len(xs))
	for i := range xs {
		tmp := xs[i]
		xs[i] = tmp + h
		plusY := f(xs)

		xs[i] = tmp - h
		minusY := f(xs)

		grad[i] = CentralDifference(plusY, minusY, h)
		xs[i] = tmp
	}
	return grad
}

func AllFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
