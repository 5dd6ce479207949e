package driving

import (
	"math"

	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/phasefield"
)

// Average smooths the raw forces over the interface neighborhood so every
// cell of one interface segment moves it with the same force. Runs the
// weight, collect and distribute passes with halo syncs in between; with
// averaging disabled the raw forces pass through unchanged.
func (f *Force) Average(k *phasefield.Kernel) {
	if !f.Config.Averaging {
		f.skipAverage(k)
		return
	}
	f.setWeights(k)
	f.BC.Apply(f.Store)
	f.collectAverage(k)
	f.BC.Apply(f.Store)
	f.distributeAverage(k)
}

// skipAverage installs the raw force as the average and still computes the
// weights the merge pass normalizes with.
func (f *Force) skipAverage(k *phasefield.Kernel) {
	f.eachInterfacePair(k, func(node *field.Node, p *PairForce) {
		p.Weight = math.Sqrt(node.Value(p.A) * node.Value(p.B))
		p.Average = p.Raw
	})
}

func (f *Force) setWeights(k *phasefield.Kernel) {
	f.eachInterfacePair(k, func(node *field.Node, p *PairForce) {
		p.Weight = math.Sqrt(node.Value(p.A) * node.Value(p.B))
	})
}

// eachInterfacePair applies fn to every force record of every interior
// interface cell.
func (f *Force) eachInterfacePair(k *phasefield.Kernel, fn func(node *field.Node, p *PairForce)) {
	s := k.Fields
	k.Pool().Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			node := s.AtLinear(c)
			if !node.Interface() {
				continue
			}
			force := f.Store.At(i, j, m)
			for p := range force.Pairs {
				fn(node, &force.Pairs[p])
			}
		}
	})
}

// windowRanges clips the averaging window to the domain along the active
// axes.
func (f *Force) windowRanges() (int, int, int) {
	xr := min(f.Config.Range, f.Grid.Nx-1) * f.Grid.DNx
	yr := min(f.Config.Range, f.Grid.Ny-1) * f.Grid.DNy
	zr := min(f.Config.Range, f.Grid.Nz-1) * f.Grid.DNz
	return xr, yr, zr
}

// collectAverage computes, for every record near the interface center (its
// weight above the threshold), the weighted mean of the raw forces over the
// spherical window into the tmp slot.
func (f *Force) collectAverage(k *phasefield.Kernel) {
	xr, yr, zr := f.windowRanges()
	threshold := math.Sqrt(f.Config.PhiThreshold * (1.0 - f.Config.PhiThreshold))

	s := k.Fields
	k.Pool().Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			if !s.AtLinear(c).Interface() {
				continue
			}
			force := f.Store.At(i, j, m)
			for p := range force.Pairs {
				rec := &force.Pairs[p]

				// Shrunken or growing regions carry a narrowed profile;
				// scale the band accordingly.
				scale := f.Reg.At(rec.A).VolumeRatio * f.Reg.At(rec.B).VolumeRatio
				if rec.Weight <= threshold*scale {
					continue
				}

				value := 0.0
				sumWeights := 0.0
				counter := 0
				for ii := -xr; ii <= xr; ii++ {
					for jj := -yr; jj <= yr; jj++ {
						for kk := -zr; kk <= zr; kk++ {
							dist := float64(f.Config.Range) - math.Sqrt(float64(ii*ii+jj*jj+kk*kk))
							nb := f.Store.At(i+ii, j+jj, m+kk)
							wPhi := nb.Weight(rec.A, rec.B)
							if dist <= 0.0 || wPhi <= 0.0 {
								continue
							}
							w := 0.0
							switch f.Config.WeightsMode {
							case WeightsRange:
								w = dist
								sumWeights += w
							case WeightsPhaseFields:
								w = wPhi
								sumWeights += w
							case WeightsCounter:
								counter++
								w = 1.0
							}
							value += w * nb.Raw(rec.A, rec.B)
						}
					}
				}
				rec.Tmp = weighted(value, sumWeights, counter, f.Config.WeightsMode, rec.Raw)
			}
		}
	})
}

// distributeAverage spreads the collected centerline values back over the
// whole interface width into the average slot. Records no neighbor
// contributes to fall back to the raw force; pairs touching a seed always
// do, their interface has no center yet.
func (f *Force) distributeAverage(k *phasefield.Kernel) {
	xr, yr, zr := f.windowRanges()
	threshold := math.Sqrt(f.Config.PhiThreshold * (1.0 - f.Config.PhiThreshold))

	s := k.Fields
	k.Pool().Run(s.ExtLen(), func(_, start, end int) {
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			if !s.AtLinear(c).Interface() {
				continue
			}
			force := f.Store.At(i, j, m)
			for p := range force.Pairs {
				rec := &force.Pairs[p]
				if rec.Weight <= 0.0 {
					if f.Reg.At(rec.A).Stage == grains.Seed ||
						f.Reg.At(rec.B).Stage == grains.Seed {
						rec.Average = rec.Raw
					}
					continue
				}

				scale := f.Reg.At(rec.A).VolumeRatio * f.Reg.At(rec.B).VolumeRatio

				value := 0.0
				sumWeights := 0.0
				counter := 0
				for ii := -xr; ii <= xr; ii++ {
					for jj := -yr; jj <= yr; jj++ {
						for kk := -zr; kk <= zr; kk++ {
							dist := float64(f.Config.Range) - math.Sqrt(float64(ii*ii+jj*jj+kk*kk))
							nb := f.Store.At(i+ii, j+jj, m+kk)
							wPhi := nb.Weight(rec.A, rec.B)
							if dist <= 0.0 || wPhi <= threshold*scale {
								continue
							}
							w := 0.0
							switch f.Config.WeightsMode {
							case WeightsRange:
								w = dist
								sumWeights += w
							case WeightsPhaseFields:
								w = wPhi
								sumWeights += w
							case WeightsCounter:
								counter++
								w = 1.0
							}
							value += w * nb.Tmp(rec.A, rec.B)
						}
					}
				}
				rec.Average = weighted(value, sumWeights, counter, f.Config.WeightsMode, rec.Tmp)
			}
		}
	})
}

// weighted resolves the accumulated window sum into a mean, falling back
// when nothing contributed.
func weighted(value, sumWeights float64, counter int, mode WeightsMode, fallback float64) float64 {
	if mode == WeightsCounter {
		if counter != 0 {
			return value / float64(counter)
		}
		return fallback
	}
	if sumWeights > 0.0 {
		return value / sumWeights
	}
	return fallback
}
