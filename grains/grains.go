// Package grains keeps the process-wide region registry: one record per
// phase-field region, identified by a stable index that is never reused
// within a run. The kernel reads phases and stages everywhere; volumes and
// lifecycle stages are rewritten once per step by the merge pipeline.
package grains

import (
	"math"

	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/grid"
)

// Stage is the growth lifecycle of a region.
type Stage uint8

const (
	// Seed marks a freshly planted region that has not grown yet.
	Seed Stage = iota
	// Nucleus marks a region with positive volume still below its
	// reference size.
	Nucleus
	// Stable marks a fully established region.
	Stable
)

func (s Stage) String() string {
	switch s {
	case Seed:
		return "seed"
	case Nucleus:
		return "nucleus"
	default:
		return "stable"
	}
}

// Violation flags a growth constraint the region ran into. Pairs where both
// ends carry a violation have their merge increments damped.
type Violation uint8

const (
	// NoViolation is the normal state.
	NoViolation Violation = iota
	// VolumeConstrained marks a region whose growth is volume-limited.
	VolumeConstrained
)

// Grain is one registry record.
type Grain struct {
	Phase     int
	Variant   int
	Exist     bool
	Stage     Stage
	Violation Violation

	Volume      float64 // cell units, recomputed every step
	MaxVolume   float64
	RefVolume   float64
	VolumeRatio float64

	Center      [3]float64
	Orientation float64
}

type pairKey [2]int

func keyOf(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Registry is the append-only grain table.
type Registry struct {
	Grains []Grain

	// NucleationPresent reports whether any existing region is still
	// growing toward its reference volume. Refreshed by ApplyVolumes.
	NucleationPresent bool

	// NucleusVolumeFactor scales the reference volume of planted seeds.
	NucleusVolumeFactor float64

	pairFactors map[pairKey]float64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{NucleusVolumeFactor: 1.0, pairFactors: map[pairKey]float64{}}
}

// Len returns the number of registered regions.
func (r *Registry) Len() int { return len(r.Grains) }

// At returns the record of region idx.
func (r *Registry) At(idx int) *Grain { return &r.Grains[idx] }

// Phase returns the thermodynamic phase of region idx.
func (r *Registry) Phase(idx int) int { return r.Grains[idx].Phase }

// AddEstablished appends a fully grown region (tessellation grains) and
// returns its index.
func (r *Registry) AddEstablished(phase, variant int) int {
	r.Grains = append(r.Grains, Grain{
		Phase:       phase,
		Variant:     variant,
		Exist:       true,
		Stage:       Stable,
		VolumeRatio: 1.0,
	})
	return len(r.Grains) - 1
}

// AddSeed appends a planted region. Seeds do not exist until their volume
// turns positive; until then the lifecycle pass leaves them alone and the
// driving-force normalization grants them their startup allowance.
func (r *Registry) AddSeed(phase, variant int, center [3]float64, refVolume float64) int {
	r.Grains = append(r.Grains, Grain{
		Phase:     phase,
		Variant:   variant,
		Stage:     Seed,
		Center:    center,
		RefVolume: refVolume,
	})
	return len(r.Grains) - 1
}

// SetViolation marks region idx with a growth-constraint violation.
func (r *Registry) SetViolation(idx int, v Violation) {
	r.Grains[idx].Violation = v
}

// SetPairFactor stores the merge damping factor of the unordered pair {a,b}.
func (r *Registry) SetPairFactor(a, b int, f float64) {
	r.pairFactors[keyOf(a, b)] = f
}

// PairFactor returns the merge damping factor of {a,b}, 1 when unset.
func (r *Registry) PairFactor(a, b int) float64 {
	if f, ok := r.pairFactors[keyOf(a, b)]; ok {
		return f
	}
	return 1.0
}

// ReferenceVolume converts a seed radius in cells into the cell-unit
// measure a grain must reach to count as established: 2r in one dimension,
// pi r^2 in two, 4/3 pi r^3 in three, scaled by the nucleus volume factor.
func (r *Registry) ReferenceVolume(p grid.Parameters, radiusCells float64) float64 {
	var v float64
	switch p.Dimensions {
	case 1:
		v = 2.0 * radiusCells
	case 2:
		v = math.Pi * radiusCells * radiusCells
	default:
		v = 4.0 / 3.0 * math.Pi * radiusCells * radiusCells * radiusCells
	}
	return v * r.NucleusVolumeFactor
}

// ApplyVolumes installs freshly reduced per-region volumes and walks the
// lifecycle transitions. volumes must hold one entry per region of this
// domain; the reducer combines it with the other domains (sums for
// volumes, maxima for registry metadata) before the transitions run.
func (r *Registry) ApplyVolumes(volumes []float64, red comms.Reducer) {
	// A remote domain may know regions this one has not seen yet.
	n := red.MaxInt(len(r.Grains))
	for len(r.Grains) < n {
		r.Grains = append(r.Grains, Grain{})
	}
	for len(volumes) < n {
		volumes = append(volumes, 0)
	}

	red.SumFloat64s(volumes)

	stages := make([]int, n)
	phases := make([]int, n)
	variants := make([]int, n)
	maxVols := make([]float64, n)
	refVols := make([]float64, n)
	for i := range r.Grains {
		stages[i] = int(r.Grains[i].Stage)
		phases[i] = r.Grains[i].Phase
		variants[i] = r.Grains[i].Variant
		maxVols[i] = r.Grains[i].MaxVolume
		refVols[i] = r.Grains[i].RefVolume
	}
	red.MaxInts(stages)
	red.MaxInts(phases)
	red.MaxInts(variants)
	red.MaxFloat64s(maxVols)
	red.MaxFloat64s(refVols)

	growing := 0
	for i := range r.Grains {
		g := &r.Grains[i]
		g.Stage = Stage(stages[i])
		g.Phase = phases[i]
		g.Variant = variants[i]
		g.Volume = volumes[i]
		g.MaxVolume = math.Max(maxVols[i], g.Volume)
		g.RefVolume = refVols[i]
		if g.RefVolume > 0 {
			g.VolumeRatio = g.MaxVolume / g.RefVolume
		}

		if g.Exist && g.Volume <= 0 {
			g.Exist = false
			g.Stage = Stable
			g.Volume = 0
			g.MaxVolume = 0
			g.VolumeRatio = 1
		} else if g.Volume > 0 {
			g.Exist = true
			if g.Stage == Seed {
				g.Stage = Nucleus
			}
			if g.VolumeRatio > 1 {
				g.Stage = Stable
				g.VolumeRatio = 1
			}
		}
		if g.Exist && g.Stage != Stable {
			growing++
		}
	}
	r.NucleationPresent = growing > 0
}
