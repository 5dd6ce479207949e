package phasefield

import (
	"fmt"
	"math"

	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grid"
)

// NormalizeIncrements rescales the pairwise increments of every
// wide-interface cell so that applying them over dt cannot push any
// occupancy outside [0,1]. The per-cell sum of one is untouched because
// every record stays antisymmetric. Recoverable conditions accumulate in
// k.Report; the returned error is non-nil only in debug mode when a cell's
// occupancy total has already broken, which means an upstream producer
// corrupted the field and continuing would silently lose conservation.
func (k *Kernel) NormalizeIncrements(dt float64) error {
	k.Report.reset()

	if k.Grid.Resolution == grid.Dual {
		k.normalizeCells(k.FieldsDR, k.FieldsDotDR, dt, true)
		k.CoarsenRates()
		k.BC.Apply(k.FieldsDot)
	} else {
		k.normalizeCells(k.Fields, k.FieldsDot, dt, false)
		k.BC.Apply(k.FieldsDot)
	}

	if k.Debug {
		return k.checkConservation(dt)
	}
	return nil
}

func (k *Kernel) normalizeCells(s *field.Storage, rs *field.RateStorage, dt float64, fine bool) {
	reports := make([]StepReport, k.pool.Chunks())

	k.pool.Run(s.ExtLen(), func(chunk, start, end int) {
		var nc normalizeScratch
		for c := start; c < end; c++ {
			node := s.AtLinear(c)
			if !node.WideInterface() {
				continue
			}
			store := rs.AtLinear(c)
			switch store.Len() {
			case 0:
			case 1:
				normalizeSinglePair(node, store, dt)
			default:
				i, j, m := s.Cell(c)
				nc.normalizeGeneral(node, store, dt, fine, k.IterationCap, &reports[chunk], i, j, m)
			}
		}
	})

	for c := range reports {
		k.Report.merge(reports[c])
	}
}

// normalizeSinglePair handles the common two-region interface with one
// closed-form scale factor instead of the iterative loop.
func normalizeSinglePair(node *field.Node, store *field.RateNode, dt float64) {
	rec := store.Front()
	rate := (rec.Value1 + rec.Value2) * dt
	old := node.Value(rec.A)

	// A donating end already at its bound cannot move further.
	if (old == 0.0 && rate < 0.0) || (old == 1.0 && rate > 0.0) {
		store.Clear()
		return
	}

	norm := 1.0
	if next := old + rate; next < 0.0 {
		norm *= -old / rate
	} else if next > 1.0 {
		norm *= (1.0 - old) / rate
	}

	if norm > field.Eps {
		store.Scale(norm)
	} else {
		store.Clear()
	}
}

// normalizeScratch reuses the per-region accumulators of the general case
// across cells within one chunk.
type normalizeScratch struct {
	pos, neg       map[int]float64
	limUp, limDown map[int]float64
	scratch        field.Node
}

func (nc *normalizeScratch) init() {
	if nc.pos == nil {
		nc.pos = map[int]float64{}
		nc.neg = map[int]float64{}
		nc.limUp = map[int]float64{}
		nc.limDown = map[int]float64{}
	}
}

// normalizeGeneral resolves three or more mutually constraining regions.
// Pinned regions (at a bound and pushed further out) first lose every
// record touching them; the survivors then shrink under the iterative
// fixed-point clamp until no endpoint would leave [0,1] or the iteration
// cap is hit.
func (nc *normalizeScratch) normalizeGeneral(node *field.Node, store *field.RateNode, dt float64, fine bool, iterCap int, rep *StepReport, ci, cj, ck int) {
	nc.init()

	for a := range node.Entries {
		alpha := &node.Entries[a]
		dPsi := 0.0
		for b := range node.Entries {
			if a == b {
				continue
			}
			beta := &node.Entries[b]
			dPsi += store.Get1(alpha.Index, beta.Index)
			dPsi += store.Get2(alpha.Index, beta.Index)
		}
		if (alpha.Value == 0.0 && dPsi < 0.0) || (alpha.Value == 1.0 && dPsi > 0.0) {
			for b := range node.Entries {
				if a != b {
					store.ZeroPair(alpha.Index, node.Entries[b].Index)
				}
			}
		}
	}

	store.Filter(func(r *field.PairRate) bool {
		return r.Value1 != 0.0 || r.Value2 != 0.0
	})
	if store.Len() == 0 {
		return
	}

	iterations := 0
	limitingNeeded := true
	for limitingNeeded {
		iterations++
		limitingNeeded = false

		clear(nc.pos)
		clear(nc.neg)
		for r := range store.Rates {
			rec := &store.Rates[r]
			if rec.Value1 < 0.0 {
				nc.neg[rec.A] += rec.Value1
				nc.pos[rec.B] -= rec.Value1
			}
			if rec.Value1 > 0.0 {
				nc.pos[rec.A] += rec.Value1
				nc.neg[rec.B] -= rec.Value1
			}
		}

		clear(nc.limUp)
		clear(nc.limDown)
		for a := range node.Entries {
			alpha := &node.Entries[a]
			pos := nc.pos[alpha.Index]
			neg := nc.neg[alpha.Index]
			next := alpha.Value + (pos+neg)*dt
			nc.limUp[alpha.Index] = 1.0
			nc.limDown[alpha.Index] = 1.0
			if next < 0.0 {
				nc.limDown[alpha.Index] = math.Min(1.0, -(alpha.Value+pos*dt)/(neg*dt))
			}
			if next > 1.0 {
				nc.limUp[alpha.Index] = math.Min(1.0, (1.0-(alpha.Value+neg*dt))/(pos*dt))
			}
		}

		for r := range store.Rates {
			rec := &store.Rates[r]
			if rec.Value1 < 0.0 {
				lim := math.Min(limit(nc.limDown, rec.A), limit(nc.limUp, rec.B))
				rec.Value1 *= lim
				if lim < 1.0 {
					limitingNeeded = true
				}
			}
			if rec.Value1 > 0.0 {
				lim := math.Min(limit(nc.limUp, rec.A), limit(nc.limDown, rec.B))
				rec.Value1 *= lim
				if lim < 1.0 {
					limitingNeeded = true
				}
			}
		}

		if iterations > iterCap {
			if limitingNeeded {
				rep.noteNonConverged(ci, cj, ck)
			}
			limitingNeeded = false
		}
	}

	// Clean up increments too small to matter. The fine grid compares the
	// bare rate, the coarse grid the applied increment.
	store.Filter(func(r *field.PairRate) bool {
		if fine {
			return math.Abs(r.Value1) >= field.Eps
		}
		return math.Abs(r.Value1*dt) >= field.Eps
	})

	// Plausibility check: apply the survivors to a scratch copy and verify
	// every resulting value is within tolerance of [0,1]. A violation is
	// reported but the increments are used as-is; a local correction here
	// could silently break conservation elsewhere.
	nc.scratch.CopyFrom(node)
	for r := range store.Rates {
		rec := &store.Rates[r]
		if rec.Value1 != 0.0 {
			nc.scratch.AddValue(rec.A, rec.Value1*dt)
			nc.scratch.AddValue(rec.B, -rec.Value1*dt)
		}
	}
	for e := range nc.scratch.Entries {
		v := nc.scratch.Entries[e].Value
		if v < -field.Eps32 || v > 1.0+field.Eps32 {
			dev := math.Max(-v, v-1.0)
			rep.notePlausibility(ci, cj, ck, dev)
		}
	}
}

// limit reads a per-region scale factor. The limit pass fills the maps for
// every node entry, so a miss means the record references a region with no
// entry in the cell; such a record cannot represent a valid exchange and
// the zero default erases it.
func limit(m map[int]float64, idx int) float64 {
	if l, ok := m[idx]; ok {
		return l
	}
	return 0.0
}

// checkConservation verifies, per wide-interface cell and phase, that the
// stored fraction and the fraction after applying the increments both lie
// within tolerance of [0,1], and that the stored fractions sum to one. The
// sum check failing means the invariant broke upstream; the returned error
// is fatal by contract.
func (k *Kernel) checkConservation(dt float64) error {
	s := k.Fields
	for c := 0; c < s.ExtLen(); c++ {
		i, j, m := s.Cell(c)
		if !s.InRange(i, j, m, 0) || !s.AtLinear(c).WideInterface() {
			continue
		}
		store := k.FieldsDot.AtLinear(c)
		frac := k.Fractions.At(i, j, m)

		total := 1.0
		for p := range frac {
			total -= frac[p]

			next := frac[p]
			for r := range store.Rates {
				rec := &store.Rates[r]
				pa, pb := k.Reg.Phase(rec.A), k.Reg.Phase(rec.B)
				if pa == p && pb != p {
					next += rec.Value1 * dt
				} else if pa != p && pb == p {
					next -= rec.Value1 * dt
				}
			}
			if next < -field.Eps32 || next > 1.0+field.Eps32 ||
				frac[p] < -field.Eps32 || frac[p] > 1.0+field.Eps32 {
				return fmt.Errorf("phase fraction out of bounds in cell (%d,%d,%d) phase %d: old %g new %g",
					i, j, m, p, frac[p], next)
			}
		}
		if total < -field.Eps32 || total > field.Eps32 {
			return fmt.Errorf("phase fractions do not sum to unity in cell (%d,%d,%d): deviation %g",
				i, j, m, total)
		}
	}
	return nil
}
