// Package stencil precomputes the finite-difference stencils applied by the
// derivative pass. A stencil is a flat list of neighbor offsets with
// weights; building it once per grid keeps the hot loop free of dimension
// switches.
package stencil

import "github.com/fennwald/polyphase/grid"

// Variant selects the Laplacian discretization.
type Variant int

const (
	// Simple uses the nearest-neighbor cross stencil.
	Simple Variant = iota
	// Isotropic uses the compact stencil with reduced directional bias:
	// 9-point in two dimensions, 27-point in three.
	Isotropic
)

// LaplacianPoint is one neighbor contribution to the Laplacian.
type LaplacianPoint struct {
	DI, DJ, DK int
	Weight     float64
}

// GradientPoint is one neighbor contribution to the gradient.
type GradientPoint struct {
	DI, DJ, DK int
	WX, WY, WZ float64
}

// Laplacian is the full finite-difference molecule including the center.
type Laplacian []LaplacianPoint

// Gradient is the central-difference molecule for all active axes.
type Gradient []GradientPoint

// NewLaplacian builds the Laplacian stencil for the grid's active axes,
// weights scaled by 1/dx^2.
func NewLaplacian(p grid.Parameters, v Variant) Laplacian {
	idx2 := 1.0 / (p.Dx * p.Dx)

	if v == Isotropic && p.Dimensions == 2 {
		return isotropic2D(p, idx2)
	}
	if v == Isotropic && p.Dimensions == 3 {
		return isotropic3D(idx2)
	}
	return cross(p, idx2)
}

// cross is the 3/5/7-point stencil depending on the active axes.
func cross(p grid.Parameters, idx2 float64) Laplacian {
	st := Laplacian{{0, 0, 0, -2.0 * float64(p.Dimensions) * idx2}}
	if p.DNx == 1 {
		st = append(st, LaplacianPoint{-1, 0, 0, idx2}, LaplacianPoint{1, 0, 0, idx2})
	}
	if p.DNy == 1 {
		st = append(st, LaplacianPoint{0, -1, 0, idx2}, LaplacianPoint{0, 1, 0, idx2})
	}
	if p.DNz == 1 {
		st = append(st, LaplacianPoint{0, 0, -1, idx2}, LaplacianPoint{0, 0, 1, idx2})
	}
	return st
}

// isotropic2D is the 9-point stencil with weights (1/6)[1 4 1; 4 -20 4; 1 4 1]
// laid out on whichever two axes are active.
func isotropic2D(p grid.Parameters, idx2 float64) Laplacian {
	var st Laplacian
	for a := -1; a <= 1; a++ {
		for b := -1; b <= 1; b++ {
			w := 0.0
			switch {
			case a == 0 && b == 0:
				w = -20.0 / 6.0
			case a == 0 || b == 0:
				w = 4.0 / 6.0
			default:
				w = 1.0 / 6.0
			}
			st = append(st, place2D(p, a, b, w*idx2))
		}
	}
	return st
}

func place2D(p grid.Parameters, a, b int, w float64) LaplacianPoint {
	switch {
	case p.DNx == 0:
		return LaplacianPoint{0, a, b, w}
	case p.DNy == 0:
		return LaplacianPoint{a, 0, b, w}
	default:
		return LaplacianPoint{a, b, 0, w}
	}
}

// isotropic3D is the 27-point stencil with weights (1/30)(face 14, edge 3,
// corner 1, center -128).
func isotropic3D(idx2 float64) Laplacian {
	var st Laplacian
	for a := -1; a <= 1; a++ {
		for b := -1; b <= 1; b++ {
			for c := -1; c <= 1; c++ {
				nz := 0
				if a != 0 {
					nz++
				}
				if b != 0 {
					nz++
				}
				if c != 0 {
					nz++
				}
				var w float64
				switch nz {
				case 0:
					w = -128.0 / 30.0
				case 1:
					w = 14.0 / 30.0
				case 2:
					w = 3.0 / 30.0
				case 3:
					w = 1.0 / 30.0
				}
				st = append(st, LaplacianPoint{a, b, c, w * idx2})
			}
		}
	}
	return st
}

// NewGradient builds the central-difference gradient stencil for the active
// axes, weights scaled by 1/(2 dx).
func NewGradient(p grid.Parameters) Gradient {
	w := 1.0 / (2.0 * p.Dx)
	var st Gradient
	if p.DNx == 1 {
		st = append(st,
			GradientPoint{-1, 0, 0, -w, 0, 0},
			GradientPoint{1, 0, 0, w, 0, 0})
	}
	if p.DNy == 1 {
		st = append(st,
			GradientPoint{0, -1, 0, 0, -w, 0},
			GradientPoint{0, 1, 0, 0, w, 0})
	}
	if p.DNz == 1 {
		st = append(st,
			GradientPoint{0, 0, -1, 0, 0, -w},
			GradientPoint{0, 0, 1, 0, 0, w})
	}
	return st
}
