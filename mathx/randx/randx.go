package randx

import (
	"math/rand/v2"

	"github.com/seehuhn/mt19937"
)

// NewMt19937 は seed で初期化したメルセンヌ・ツイスタを返す。
func NewMt19937(seed uint64) *rand.Rand {
	mt := mt19937.New()
	mt.Seed(int64(seed))
	return rand.New(mt)
}

func Normals(n int, mu, sigma float64, rng *rand.Rand) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = mu + sigma*rng.NormFloat64()
	}
	return xs
}

func Uniforms(n int, min, max float64, rng *rand.Rand) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = min + (max-min)*rng.Float64()
	}
	return xs
}
