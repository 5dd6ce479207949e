package grid

import (
	"math"
	"testing"
)

func TestNewActiveAxes(t *testing.T) {
	tests := []struct {
		name       string
		nx, ny, nz int
		wantDims   int
		wantDN     [3]int
	}{
		{"3d", 32, 32, 32, 3, [3]int{1, 1, 1}},
		{"2d", 64, 64, 1, 2, [3]int{1, 1, 0}},
		{"1d", 128, 1, 1, 1, [3]int{1, 0, 0}},
		{"2d yz", 1, 16, 16, 2, [3]int{0, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.nx, tt.ny, tt.nz, 1e-6, 5, 1, Single)
			if p.Dimensions != tt.wantDims {
				t.Errorf("Dimensions = %d, want %d", p.Dimensions, tt.wantDims)
			}
			got := [3]int{p.DNx, p.DNy, p.DNz}
			if got != tt.wantDN {
				t.Errorf("active flags = %v, want %v", got, tt.wantDN)
			}
		})
	}
}

func TestDerivedQuantities(t *testing.T) {
	p := New(64, 64, 1, 0.5e-6, 4, 1, Single)

	if p.TotalCells != 64*64 {
		t.Errorf("TotalCells = %d, want %d", p.TotalCells, 64*64)
	}
	if math.Abs(p.Eta-2e-6) > 1e-18 {
		t.Errorf("Eta = %v, want 2e-6", p.Eta)
	}
	if math.Abs(p.CellVolume-0.25e-12) > 1e-26 {
		t.Errorf("CellVolume = %v, want 2.5e-13", p.CellVolume)
	}
	if p.Halo() != 3 {
		t.Errorf("Halo = %d, want iwidth-1 = 3", p.Halo())
	}
}

func TestHaloRespectsBcells(t *testing.T) {
	p := New(16, 16, 16, 1.0, 2, 4, Single)
	if p.Halo() != 4 {
		t.Errorf("Halo = %d, want requested minimum 4", p.Halo())
	}
}

func TestDoubled(t *testing.T) {
	p := New(32, 32, 1, 1.0, 4, 1, Dual)
	d := p.Doubled()

	if d.Nx != 64 || d.Ny != 64 || d.Nz != 1 {
		t.Errorf("doubled dims = %dx%dx%d, want 64x64x1", d.Nx, d.Ny, d.Nz)
	}
	if d.Dx != 0.5 {
		t.Errorf("doubled Dx = %v, want 0.5", d.Dx)
	}
	if math.Abs(d.Eta-p.Eta) > 1e-15 {
		t.Errorf("doubled Eta = %v, want unchanged %v", d.Eta, p.Eta)
	}
	if d.Dimensions != 2 {
		t.Errorf("doubled Dimensions = %d, want 2", d.Dimensions)
	}
}
