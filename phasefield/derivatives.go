package phasefield

import (
	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grid"
)

// CalculateDerivatives accumulates gradients and Laplacians into every
// wide-interface cell's active set. Bulk cells have zero derivatives by
// construction and are skipped.
func (k *Kernel) CalculateDerivatives() {
	if k.Grid.Resolution == grid.Dual {
		k.calculateDerivativesDR()
		return
	}
	k.calculateDerivativesSR()
}

func (k *Kernel) calculateDerivativesSR() {
	// Fine spacing is the grid spacing itself; no stencil rescale.
	k.derivativePass(k.Fields, k.Grid.Halo()-1, 1.0, 1.0)
}

// calculateDerivativesDR runs the fine grid. The stencils carry coarse-grid
// spacing, so fine weights scale by 4 (Laplacian, 1/dx^2) and 2 (gradient,
// 1/2dx).
func (k *Kernel) calculateDerivativesDR() {
	k.derivativePass(k.FieldsDR, 2*k.Grid.Halo()-1, 4.0, 2.0)
}

// derivativePass is double buffered: the accumulate stage reads only live
// neighbor entries and writes only the cell's staging area, the commit
// stage swaps staged entries in after a pool barrier.
func (k *Kernel) derivativePass(s *field.Storage, depth int, lapScale, gradScale float64) {
	n := s.ExtLen()

	k.pool.Run(n, func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, depth) {
				continue
			}
			node := s.AtLinear(c)
			if !node.WideInterface() {
				continue
			}
			node.BeginDerivatives()

			for _, ls := range k.lap {
				nb := s.At(i+ls.DI, j+ls.DJ, m+ls.DK)
				for e := range nb.Entries {
					if nb.Entries[e].Value != 0.0 {
						node.AddLaplacianTmp(nb.Entries[e].Index, lapScale*ls.Weight*nb.Entries[e].Value)
					}
				}
			}
			for _, gs := range k.grad {
				nb := s.At(i+gs.DI, j+gs.DJ, m+gs.DK)
				for e := range nb.Entries {
					if nb.Entries[e].Value != 0.0 {
						node.AddGradientTmp(nb.Entries[e].Index, [3]float64{
							gradScale * gs.WX * nb.Entries[e].Value,
							gradScale * gs.WY * nb.Entries[e].Value,
							gradScale * gs.WZ * nb.Entries[e].Value,
						})
					}
				}
			}
		}
	})

	k.pool.Run(n, func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, depth) {
				continue
			}
			node := s.AtLinear(c)
			if node.WideInterface() {
				node.CommitDerivatives()
			}
		}
	})
}

// setFlags spreads the interface flag one cell outward along the active
// axes. Two stages like the derivative pass: the mark stage reads only
// pre-pass flags and records candidate cells per chunk, the commit applies
// the marks in chunk order after the pool barrier.
func (k *Kernel) setFlags(s *field.Storage, depth int) {
	marks := make([][]int, k.pool.Chunks())
	k.pool.Run(s.ExtLen(), func(chunk, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, depth) {
				continue
			}
			if s.AtLinear(c).Flag != field.FlagBulk {
				continue
			}
			if k.interfaceNearby(s, i, j, m) {
				marks[chunk] = append(marks[chunk], c)
			}
		}
	})

	for _, cells := range marks {
		for _, c := range cells {
			s.AtLinear(c).Flag = field.FlagNeighbor
		}
	}
}

func (k *Kernel) interfaceNearby(s *field.Storage, i, j, m int) bool {
	for di := -k.Grid.DNx; di <= k.Grid.DNx; di++ {
		for dj := -k.Grid.DNy; dj <= k.Grid.DNy; dj++ {
			for dk := -k.Grid.DNz; dk <= k.Grid.DNz; dk++ {
				if s.At(i+di, j+dj, m+dk).Flag == field.FlagInterface {
					return true
				}
			}
		}
	}
	return false
}
