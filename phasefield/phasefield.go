// Package phasefield implements the multi-phase-field time-integration
// kernel: sparse per-cell active sets advanced by pairwise increments that
// are normalized so every occupancy stays within [0,1] while the per-cell
// sum of one is conserved exactly.
//
// One time step runs the fixed phase order: derivative pass, external
// driving-force production, increment normalization, increment merge,
// boundary synchronization. Every pass is data-parallel over cells with no
// cross-cell mutation inside a pass; cross-cell reductions combine
// per-chunk partials in chunk order so results do not depend on the worker
// count.
package phasefield

import (
	"log/slog"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/internal/parallel"
	"github.com/fennwald/polyphase/stencil"
)

// DefaultIterationCap bounds the normalization clamp loop. The fixed-point
// relaxation usually converges in a handful of iterations; hitting the cap
// is tolerated and reported, not fatal.
const DefaultIterationCap = 24

// PhaseInfo is the per-thermodynamic-phase metadata the kernel needs.
type PhaseInfo struct {
	Name    string
	Solid   bool
	Combine bool // absorb stable same-phase grains into the majority grain
}

// Options tune kernel construction. The zero value is usable.
type Options struct {
	LaplacianStencil stencil.Variant
	IterationCap     int // 0 means DefaultIterationCap
	Debug            bool
	Workers          int // 0 means GOMAXPROCS
}

// Kernel owns the phase-field storages of one subdomain and the passes that
// advance them.
type Kernel struct {
	Grid grid.Parameters
	Fine grid.Parameters // doubled geometry, dual resolution only

	Reg *grains.Registry
	BC  boundary.Conditions
	Red comms.Reducer

	Fields    *field.Storage
	FieldsDot *field.RateStorage

	// fine-grid storages, nil in single resolution
	FieldsDR    *field.Storage
	FieldsDotDR *field.RateStorage

	// per-cell occupancy summed by thermodynamic phase, and the global
	// per-phase fractions over the whole domain
	Fractions      *field.ScalarStorage
	FractionsTotal []float64

	Phases []PhaseInfo

	IterationCap int
	Debug        bool

	// Report aggregates per-cell warnings of the current step.
	Report StepReport

	lap  stencil.Laplacian
	grad stencil.Gradient

	pool *parallel.Pool
}

// New allocates the storages and stencils for the given grid. The registry,
// boundary conditions and reducer are shared collaborators; the kernel
// reads the registry everywhere and rewrites volumes and lifecycle stages
// during merge.
func New(p grid.Parameters, reg *grains.Registry, bc boundary.Conditions, red comms.Reducer, phases []PhaseInfo, opts Options) *Kernel {
	h := p.Halo()

	k := &Kernel{
		Grid:           p,
		Reg:            reg,
		BC:             bc,
		Red:            red,
		Fields:         field.NewStorage(p, h),
		FieldsDot:      field.NewRateStorage(p, h),
		Fractions:      field.NewScalarStorage(p, h, len(phases)),
		FractionsTotal: make([]float64, len(phases)),
		Phases:         phases,
		IterationCap:   opts.IterationCap,
		Debug:          opts.Debug,
		lap:            stencil.NewLaplacian(p, opts.LaplacianStencil),
		grad:           stencil.NewGradient(p),
		pool:           parallel.New(opts.Workers),
	}
	if k.IterationCap <= 0 {
		k.IterationCap = DefaultIterationCap
	}
	if p.Resolution == grid.Dual {
		k.Fine = p.Doubled()
		k.FieldsDR = field.NewStorage(k.Fine, 2*h)
		k.FieldsDotDR = field.NewRateStorage(k.Fine, 2*h)
	}
	return k
}

// Close stops the worker pool.
func (k *Kernel) Close() {
	k.pool.Stop()
}

// Pool exposes the kernel's worker pool so collaborating passes (the
// driving-force producer) share its workers instead of spawning their own.
func (k *Kernel) Pool() *parallel.Pool { return k.pool }

// Interfaces estimates the local interface density at a cell: one inside
// bulk, larger inside diffuse interfaces.
func (k *Kernel) Interfaces(i, j, m int) float64 {
	sum := 0.5
	n := k.Fields.At(i, j, m)
	if n.Interface() {
		for a := 0; a < n.Len(); a++ {
			for b := a + 1; b < n.Len(); b++ {
				sum -= n.Entries[a].Value * n.Entries[b].Value
			}
		}
	}
	return 1.0 / (sum * 2.0)
}

// SolidFraction sums the occupancy of all solid phases at a cell.
func (k *Kernel) SolidFraction(i, j, m int) float64 {
	s := 0.0
	n := k.Fields.At(i, j, m)
	for e := range n.Entries {
		if k.Phases[k.Reg.Phase(n.Entries[e].Index)].Solid {
			s += n.Entries[e].Value
		}
	}
	return s
}

// InterfaceCells counts interface and wide-interface cells in the interior.
func (k *Kernel) InterfaceCells() (iface, wide int) {
	for i := 0; i < k.Grid.Nx; i++ {
		for j := 0; j < k.Grid.Ny; j++ {
			for m := 0; m < k.Grid.Nz; m++ {
				n := k.Fields.At(i, j, m)
				if n.Interface() {
					iface++
				}
				if n.WideInterface() {
					wide++
				}
			}
		}
	}
	return iface, wide
}

// LogPointStatistics dumps the active set of one cell, for debugging
// pathological configurations reported by the normalization pass.
func (k *Kernel) LogPointStatistics(i, j, m int) {
	n := k.Fields.At(i, j, m)
	attrs := []any{"cell_i", i, "cell_j", j, "cell_k", m, "fields", n.Len(), "flag", n.Flag}
	for e := range n.Entries {
		g := k.Reg.At(n.Entries[e].Index)
		attrs = append(attrs,
			slog.Group("field",
				"index", n.Entries[e].Index,
				"value", n.Entries[e].Value,
				"phase", g.Phase,
				"stage", g.Stage.String(),
			))
	}
	slog.Info("point statistics", attrs...)
}
