// Package initial writes starting microstructures into the phase field:
// single grains, diffuse spherical inclusions and Voronoi tessellations.
// Every initializer finishes with the kernel's initialization pipeline so
// flags, derivatives, fractions and the fine grid are consistent before the
// first step.
package initial

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/phasefield"
)

// Single fills the whole domain with one established grain of the given
// phase and returns its registry index.
func Single(k *phasefield.Kernel, phase int) int {
	idx := k.Reg.AddEstablished(phase, 0)
	p := k.Grid
	for i := 0; i < p.Nx; i++ {
		for j := 0; j < p.Ny; j++ {
			for m := 0; m < p.Nz; m++ {
				node := k.Fields.At(i, j, m)
				node.Clear()
				node.SetValue(idx, 1.0)
			}
		}
	}
	k.FinalizeInitialization()
	return idx
}

// Sphere plants a spherical grain of the given phase centered at (cx,cy,cz)
// in cell coordinates, with the equilibrium cosine profile across the
// diffuse interface. The matrix grain takes the remaining occupancy.
// Returns the new grain's registry index.
func Sphere(k *phasefield.Kernel, phase int, radius, cx, cy, cz float64, matrix int) int {
	idx := k.Reg.AddEstablished(phase, 0)
	g := k.Reg.At(idx)
	g.Center = [3]float64{cx, cy, cz}

	p := k.Grid
	iw := float64(p.IWidth)
	for i := 0; i < p.Nx; i++ {
		for j := 0; j < p.Ny; j++ {
			for m := 0; m < p.Nz; m++ {
				dx := (float64(i) - cx) * float64(p.DNx)
				dy := (float64(j) - cy) * float64(p.DNy)
				dz := (float64(m) - cz) * float64(p.DNz)
				rad := math.Sqrt(dx*dx + dy*dy + dz*dz)

				v := profile(rad, radius, iw)
				if v <= 0.0 {
					continue
				}
				node := k.Fields.At(i, j, m)
				node.SetValue(idx, v)
				node.SetValue(matrix, 1.0-v)
			}
		}
	}
	k.FinalizeInitialization()
	return idx
}

// profile is the equilibrium interface shape: one inside, zero outside,
// the half-cosine across the interface width.
func profile(rad, radius, iw float64) float64 {
	switch {
	case rad < radius-iw/2.0:
		return 1.0
	case rad < radius+iw/2.0:
		return 0.5 - 0.5*math.Sin(math.Pi*(rad-radius)/iw)
	}
	return 0.0
}

// Voronoi tessellates the domain into count grains of one phase around
// uniformly drawn sites, respecting periodic axes. Returns the registry
// indices of the new grains.
func Voronoi(k *phasefield.Kernel, phase, count int, rng *rand.Rand) []int {
	return tessellate(k, phase, count, rng, nil)
}

// NoisyVoronoi is Voronoi with the site distances displaced by smooth
// gradient noise, producing curved grain boundaries. amplitude is in cells,
// frequency in inverse cells.
func NoisyVoronoi(k *phasefield.Kernel, phase, count int, amplitude, frequency float64, rng *rand.Rand) []int {
	noise := opensimplex.New(rng.Int63())
	displace := func(site, i, j, m int) float64 {
		return amplitude * noise.Eval3(
			frequency*float64(i),
			frequency*float64(j),
			frequency*float64(m)+17.0*float64(site),
		)
	}
	return tessellate(k, phase, count, rng, displace)
}

func tessellate(k *phasefield.Kernel, phase, count int, rng *rand.Rand, displace func(site, i, j, m int) float64) []int {
	p := k.Grid

	sites := make([][3]float64, count)
	indices := make([]int, count)
	for s := range sites {
		sites[s] = [3]float64{
			rng.Float64() * float64(p.Nx),
			rng.Float64() * float64(p.Ny),
			rng.Float64() * float64(p.Nz),
		}
		indices[s] = k.Reg.AddEstablished(phase, s)
		k.Reg.At(indices[s]).Center = sites[s]
	}

	px, py, pz := periodicAxes(k.BC)

	for i := 0; i < p.Nx; i++ {
		for j := 0; j < p.Ny; j++ {
			for m := 0; m < p.Nz; m++ {
				best := 0
				bestDist := math.Inf(1)
				for s := range sites {
					dx := axisDist(float64(i)-sites[s][0], p.Nx, px) * float64(p.DNx)
					dy := axisDist(float64(j)-sites[s][1], p.Ny, py) * float64(p.DNy)
					dz := axisDist(float64(m)-sites[s][2], p.Nz, pz) * float64(p.DNz)
					d := math.Sqrt(dx*dx + dy*dy + dz*dz)
					if displace != nil {
						d += displace(s, i, j, m)
					}
					if d < bestDist {
						bestDist = d
						best = s
					}
				}
				node := k.Fields.At(i, j, m)
				node.Clear()
				node.SetValue(indices[best], 1.0)
			}
		}
	}
	k.FinalizeInitialization()
	return indices
}

// axisDist applies the minimum-image convention on periodic axes.
func axisDist(d float64, n int, periodic bool) float64 {
	if !periodic {
		return d
	}
	size := float64(n)
	d = math.Mod(d, size)
	if d > size/2.0 {
		d -= size
	} else if d < -size/2.0 {
		d += size
	}
	return d
}

func periodicAxes(bc boundary.Conditions) (x, y, z bool) {
	x = bc.X0 == boundary.Periodic && bc.XN == boundary.Periodic
	y = bc.Y0 == boundary.Periodic && bc.YN == boundary.Periodic
	z = bc.Z0 == boundary.Periodic && bc.ZN == boundary.Periodic
	return
}
