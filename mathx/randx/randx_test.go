package randx_test

import (
	"testing"

	"github.com/sw965/mocb/mathx/randx"
)

func TestNewMt19937Deterministic(t *testing.T) {
	a := randx.NewMt19937(42)
	b := randx.NewMt19937(42)
	for i := 0; i < 16; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("同じseedで系列が一致しない: i=%d %v != %v", i, x, y)
		}
	}
}

func TestUniforms(t *testing.T) {
	xs := randx.Uniforms(100, -2.0, 3.0, randx.NewMt19937(7))
	for i, x := range xs {
		if x < -2.0 || x >= 3.0 {
			t.Errorf("xs[%d] = %v, out of [-2, 3)", i, x)
		}
	}
}

func TestNormalsZeroSigma(t *testing.T) {
	xs := randx.Normals(5, 0.25, 0.0, randx.NewMt19937(7))
	for i, x := range xs {
		if x != 0.25 {
			t.Errorf("xs[%d] = %v, want 0.25", i, x)
		}
	}
}
