package driving

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/phasefield"
)

// seedAllowance is added to the normalization weight of pairs touching a
// freshly planted region, so a seed with zero occupancy can start growing.
const seedAllowance = 1.0e-6

// Config tunes the averaging and limiting behavior. Zero values select the
// grid-dependent defaults.
type Config struct {
	Averaging    bool
	Limiting     bool
	Range        int     // averaging window radius in cells
	PhiThreshold float64 // occupancy band that seeds the averaging
	WeightsMode  WeightsMode
}

// DefaultConfig returns averaging and limiting enabled with the window and
// threshold derived from the interface width.
func DefaultConfig(p grid.Parameters) Config {
	c := Config{
		Averaging:   true,
		Limiting:    true,
		WeightsMode: WeightsPhaseFields,
	}
	switch p.Resolution {
	case grid.Dual:
		c.Range = p.IWidth / 2
		if p.IWidth < 5 {
			c.PhiThreshold = float64(p.IWidth) / 30.0
		} else {
			c.PhiThreshold = 1.0 / 6.0
		}
	default:
		c.Range = p.IWidth
		if p.IWidth < 5 {
			c.PhiThreshold = float64(p.IWidth) / 15.0
		} else {
			c.PhiThreshold = 1.0 / 3.0
		}
	}
	return c
}

// Force produces and post-processes the pairwise driving forces of one
// subdomain. The storage always lives on the coarse grid; in dual
// resolution the merge pass samples it at fine-cell positions.
type Force struct {
	Grid  grid.Parameters
	Props *Properties
	Reg   *grains.Registry
	BC    boundary.Conditions
	Red   comms.Reducer
	Store *Storage

	Config Config

	// MaxPsi is the largest increment rate produced by the last merge,
	// before cross-domain reduction.
	MaxPsi float64

	overshoots                       int
	maxOvershootPos, maxOvershootNeg *mat.Dense
	maxForcePos, maxForceNeg         *mat.Dense
}

// NewForce allocates the force storage with a halo wide enough for the
// averaging window.
func NewForce(p grid.Parameters, props *Properties, reg *grains.Registry, bc boundary.Conditions, red comms.Reducer, cfg Config) *Force {
	halo := p.Halo()
	if cfg.Range > halo {
		halo = cfg.Range
	}
	n := props.Phases
	return &Force{
		Grid:            p,
		Props:           props,
		Reg:             reg,
		BC:              bc,
		Red:             red,
		Store:           NewStorage(p, halo),
		Config:          cfg,
		maxOvershootPos: mat.NewDense(n, n, nil),
		maxOvershootNeg: mat.NewDense(n, n, nil),
		maxForcePos:     mat.NewDense(n, n, nil),
		maxForceNeg:     mat.NewDense(n, n, nil),
	}
}

// Clear drops the force records of every cell including the halo.
func (f *Force) Clear() { f.Store.Clear() }

// AddCurvature accumulates the curvature driving force of every interface
// cell: for each region pair the difference of the double-obstacle
// interface operators, scaled by the pair interface energy. Requires the
// derivative pass to have run on the coarse field.
func (f *Force) AddCurvature(k *phasefield.Kernel) {
	prefactor2 := math.Pi * math.Pi / (f.Grid.Eta * f.Grid.Eta)

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
			for a := 0; a < node.Len(); a++ {
				alpha := &node.Entries[a]
				for b := a + 1; b < node.Len(); b++ {
					beta := &node.Entries[b]
					sigma := f.Props.Sigma.At(f.Reg.Phase(alpha.Index), f.Reg.Phase(beta.Index))
					dG := sigma * ((alpha.Laplacian - beta.Laplacian) +
						prefactor2*(alpha.Value-beta.Value))
					force.AddRaw(alpha.Index, beta.Index, dG)
				}
			}
		}
	})
}
