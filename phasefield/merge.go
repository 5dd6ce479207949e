package phasefield

import (
	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
)

// MergeIncrements applies the normalized pairwise increments to the active
// sets, clears the increment stores and runs the finalize pipeline:
// compaction, halo synchronization, flag spreading, derivative recompute,
// phase fractions and grain volumes.
func (k *Kernel) MergeIncrements(dt float64) {
	k.mergeIncrements(dt, true, true)
}

// mergeIncrements exposes the finalize/clear switches for callers that
// need to inspect the increments after the merge.
func (k *Kernel) mergeIncrements(dt float64, finalize, clear bool) {
	if k.Grid.Resolution == grid.Dual {
		k.mergeCells(k.FieldsDR, k.FieldsDotDR, dt, clear)
	} else {
		k.mergeCells(k.Fields, k.FieldsDot, dt, clear)
	}
	k.Finalize(finalize)
}

func (k *Kernel) mergeCells(s *field.Storage, rs *field.RateStorage, dt float64, clear bool) {
	k.pool.Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			node := s.AtLinear(c)
			if !node.WideInterface() {
				continue
			}
			store := rs.AtLinear(c)
			for r := range store.Rates {
				rec := &store.Rates[r]

				factor := 1.0
				if k.Reg.At(rec.A).Violation != grains.NoViolation &&
					k.Reg.At(rec.B).Violation != grains.NoViolation {
					factor *= k.Reg.PairFactor(rec.A, rec.B)
				}

				v := factor * (rec.Value1 + rec.Value2) * dt
				if v >= field.Eps || v <= -field.Eps {
					node.AddValue(rec.A, v)
					node.AddValue(rec.B, -v)
				}
			}
			if clear {
				store.Clear()
			}
		}
	})
}

// Finalize restores the storage invariants after the active sets changed:
// grain combination, per-cell compaction, halo sync, flag spreading,
// derivatives, phase fractions and grain volumes with lifecycle updates.
func (k *Kernel) Finalize(compact bool) {
	k.CombinePhaseFields()

	if k.Grid.Resolution == grid.Dual {
		k.finalizeDR(compact)
		return
	}
	k.finalizeSR(compact)
}

func (k *Kernel) finalizeSR(compact bool) {
	if compact {
		k.compact(k.Fields, 0)
	}
	k.BC.Apply(k.Fields)
	k.setFlags(k.Fields, k.Grid.Halo()-1)
	k.BC.Apply(k.Fields)
	k.calculateDerivativesSR()
	k.BC.Apply(k.Fields)
	k.CalculateFractions()
	k.CalculateGrainsVolume()
}

func (k *Kernel) finalizeDR(compact bool) {
	if compact {
		k.compact(k.FieldsDR, 0)
	}
	k.BC.Apply(k.FieldsDR)
	k.setFlags(k.FieldsDR, 2*k.Grid.Halo()-1)
	k.calculateDerivativesDR()
	k.BC.Apply(k.FieldsDR)

	k.Coarsen()

	k.BC.Apply(k.Fields)
	k.setFlags(k.Fields, k.Grid.Halo()-1)
	k.BC.Apply(k.Fields)
	k.calculateDerivativesSR()
	k.CalculateFractions()
	k.CalculateGrainsVolume()
}

// FinalizeInitialization runs the full pipeline after an initializer has
// written the coarse field, refining into the fine grid in dual mode.
func (k *Kernel) FinalizeInitialization() {
	k.finalizeSR(true)
	if k.Grid.Resolution == grid.Dual {
		k.Refine()
		k.finalizeDR(true)
	}
}

// compact prunes near-zero entries of wide-interface cells down to the
// given halo depth.
func (k *Kernel) compact(s *field.Storage, depth int) {
	k.pool.Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, depth) {
				continue
			}
			node := s.AtLinear(c)
			if node.WideInterface() {
				node.Finalize()
			}
		}
	})
}

// CalculateFractions recomputes the per-cell occupancy sum of each
// thermodynamic phase, including the halo.
func (k *Kernel) CalculateFractions() {
	s := k.Fields
	k.pool.Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			node := s.AtLinear(c)
			frac := k.Fractions.At(s.Cell(c))
			for p := range frac {
				frac[p] = 0
			}
			for e := range node.Entries {
				frac[k.Reg.Phase(node.Entries[e].Index)] += node.Entries[e].Value
			}
		}
	})
}

// CalculateGrainsVolume reduces per-region volumes over the interior,
// combines them across domains and walks the registry lifecycle. Per-chunk
// partials merge in chunk order so the totals are bit-identical for any
// worker count.
func (k *Kernel) CalculateGrainsVolume() {
	s := k.Fields
	size := k.Reg.Len()

	partials := make([][]float64, k.pool.Chunks())
	k.pool.Run(s.ExtLen(), func(chunk, start, end int) {
		vols := make([]float64, size)
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			node := s.AtLinear(c)
			for e := range node.Entries {
				vols[node.Entries[e].Index] += node.Entries[e].Value
			}
		}
		partials[chunk] = vols
	})

	volumes := make([]float64, size)
	for _, vols := range partials {
		for idx := range vols {
			volumes[idx] += vols[idx]
		}
	}

	k.Reg.ApplyVolumes(volumes, k.Red)

	for p := range k.FractionsTotal {
		k.FractionsTotal[p] = 0
	}
	for idx := range k.Reg.Grains {
		g := &k.Reg.Grains[idx]
		if g.Exist {
			k.FractionsTotal[g.Phase] += g.Volume
		}
	}
	for p := range k.FractionsTotal {
		k.FractionsTotal[p] /= float64(k.Grid.TotalCells)
	}
}
