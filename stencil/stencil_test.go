package stencil

import (
	"math"
	"testing"

	"github.com/fennwald/polyphase/grid"
)

func weightSum(st Laplacian) float64 {
	s := 0.0
	for _, p := range st {
		s += p.Weight
	}
	return s
}

func TestLaplacianWeightsSumToZero(t *testing.T) {
	tests := []struct {
		name       string
		nx, ny, nz int
		variant    Variant
		wantPoints int
	}{
		{"1d simple", 32, 1, 1, Simple, 3},
		{"2d simple", 32, 32, 1, Simple, 5},
		{"3d simple", 8, 8, 8, Simple, 7},
		{"2d isotropic", 32, 32, 1, Isotropic, 9},
		{"3d isotropic", 8, 8, 8, Isotropic, 27},
		{"1d isotropic falls back", 32, 1, 1, Isotropic, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := grid.New(tt.nx, tt.ny, tt.nz, 0.5, 4, 1, grid.Single)
			st := NewLaplacian(p, tt.variant)
			if len(st) != tt.wantPoints {
				t.Fatalf("got %d points, want %d", len(st), tt.wantPoints)
			}
			if s := weightSum(st); math.Abs(s) > 1e-12 {
				t.Errorf("weights sum to %v, want 0", s)
			}
		})
	}
}

// Applying the stencil to the quadratic x^2+y^2+z^2 must reproduce the
// constant Laplacian 2*dim everywhere.
func TestLaplacianOnQuadratic(t *testing.T) {
	for _, variant := range []Variant{Simple, Isotropic} {
		p := grid.New(8, 8, 8, 1.0, 4, 1, grid.Single)
		st := NewLaplacian(p, variant)

		f := func(i, j, k int) float64 {
			return float64(i*i + j*j + k*k)
		}
		got := 0.0
		for _, pt := range st {
			got += pt.Weight * f(3+pt.DI, 3+pt.DJ, 3+pt.DK)
		}
		if math.Abs(got-6.0) > 1e-10 {
			t.Errorf("variant %d: laplacian of r^2 = %v, want 6", variant, got)
		}
	}
}

func TestGradientAntisymmetry(t *testing.T) {
	p := grid.New(16, 16, 1, 2.0, 4, 1, grid.Single)
	st := NewGradient(p)

	if len(st) != 4 {
		t.Fatalf("got %d points, want 4 for two active axes", len(st))
	}
	var sx, sy, sz float64
	for _, pt := range st {
		sx += pt.WX
		sy += pt.WY
		sz += pt.WZ
	}
	if sx != 0 || sy != 0 || sz != 0 {
		t.Errorf("gradient weights do not cancel: %v %v %v", sx, sy, sz)
	}
}

func TestGradientOnLinearField(t *testing.T) {
	p := grid.New(8, 8, 8, 0.5, 4, 1, grid.Single)
	st := NewGradient(p)

	// f = 2x + 3y - z in cell units; physical slope divides by dx
	f := func(i, j, k int) float64 { return float64(2*i + 3*j - k) }
	var gx, gy, gz float64
	for _, pt := range st {
		v := f(4+pt.DI, 4+pt.DJ, 4+pt.DK)
		gx += pt.WX * v
		gy += pt.WY * v
		gz += pt.WZ * v
	}
	if math.Abs(gx-4.0) > 1e-12 || math.Abs(gy-6.0) > 1e-12 || math.Abs(gz+2.0) > 1e-12 {
		t.Errorf("gradient = (%v,%v,%v), want (4,6,-2)", gx, gy, gz)
	}
}
