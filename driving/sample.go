package driving

import "math"

// Sample gathers a trilinearly interpolated force node at the fractional
// position (x,y,z) into out, interpolating the raw and averaged forces.
// Inactive axes are sampled at their only plane.
func (s *Storage) Sample(x, y, z float64, out *Node) {
	out.Clear()

	i0, fi := split(x, s.SizeX())
	j0, fj := split(y, s.SizeY())
	k0, fk := split(z, s.SizeZ())

	for _, ci := range corners(i0, fi, s.SizeX()) {
		for _, cj := range corners(j0, fj, s.SizeY()) {
			for _, ck := range corners(k0, fk, s.SizeZ()) {
				w := ci.w * cj.w * ck.w
				if w == 0 {
					continue
				}
				out.addScaled(s.At(ci.at, cj.at, ck.at), w)
			}
		}
	}
}

// addScaled accumulates w times the raw and averaged forces of src.
func (n *Node) addScaled(src *Node, w float64) {
	for p := range src.Pairs {
		rec := &src.Pairs[p]
		if pos, sign, ok := n.locate(rec.A, rec.B); ok {
			n.Pairs[pos].Raw += sign * w * rec.Raw
			n.Pairs[pos].Average += sign * w * rec.Average
			continue
		}
		n.Pairs = append(n.Pairs, PairForce{
			A: rec.A, B: rec.B,
			Raw:     w * rec.Raw,
			Average: w * rec.Average,
		})
	}
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
