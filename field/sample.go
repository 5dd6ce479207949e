package field

import "math"

// Sample gathers a trilinearly interpolated node at the fractional position
// (x,y,z). The contributing corner nodes form a convex combination, so a set
// of valid nodes samples to a valid node: values stay in [0,1] and the
// per-cell sum of one is preserved. Inactive axes are sampled at their only
// plane. Derivatives and flags are not interpolated; callers finalize the
// result.
func (s *Storage) Sample(x, y, z float64) Node {
	i0, fi := split(x, s.nx)
	j0, fj := split(y, s.ny)
	k0, fk := split(z, s.nz)

	var out Node
	for _, ci := range corners(i0, fi, s.nx) {
		for _, cj := range corners(j0, fj, s.ny) {
			for _, ck := range corners(k0, fk, s.nz) {
				w := ci.w * cj.w * ck.w
				if w == 0 {
					continue
				}
				src := s.At(ci.at, cj.at, ck.at)
				for e := range src.Entries {
					out.AddValue(src.Entries[e].Index, w*src.Entries[e].Value)
				}
			}
		}
	}
	return out
}

type corner struct {
	at int
	w  float64
}

func split(x float64, n int) (int, float64) {
	if n <= 1 {
		return 0, 0
	}
	f := math.Floor(x)
	return int(f), x - f
}

func corners(i0 int, f float64, n int) [2]corner {
	if n <= 1 {
		return [2]corner{{0, 1}, {0, 0}}
	}
	return [2]corner{{i0, 1 - f}, {i0 + 1, f}}
}
