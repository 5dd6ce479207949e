package phasefield

import "github.com/fennwald/polyphase/grid"

// PlantNucleus registers a seed grain of the given phase centered at the
// cell (x,y,z) and stakes out zero-value entries there, so the derivative
// and driving-force passes see the new region before it carries any
// occupancy. The seed starts growing once the driving force moves
// occupancy into it; the lifecycle pass promotes it on the first positive
// volume.
func (k *Kernel) PlantNucleus(phase, variant, x, y, z int) int {
	radius := float64(k.Grid.IWidth)
	idx := k.Reg.AddSeed(phase, variant,
		[3]float64{float64(x), float64(y), float64(z)},
		k.Reg.ReferenceVolume(k.Grid, radius))
	k.Reg.NucleationPresent = true

	if x >= 0 && x < k.Grid.Nx &&
		y >= 0 && y < k.Grid.Ny &&
		z >= 0 && z < k.Grid.Nz {
		k.Fields.At(x, y, z).SetValue(idx, 0.0)

		if k.Grid.Resolution == grid.Dual {
			k.fineChildren(x, y, z, func(fi, fj, fk int) {
				k.FieldsDR.At(fi, fj, fk).SetValue(idx, 0.0)
			})
		}
	}
	return idx
}
