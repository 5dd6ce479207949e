package driving

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/phasefield"
)

// mergeStats collects the limiter statistics of one chunk. Merged in chunk
// order; every combine is a max or an exact integer sum, so the merged
// totals do not depend on the worker count.
type mergeStats struct {
	maxPsi     float64
	overshoots int

	oPos, oNeg *mat.Dense // peak force relative to the allowed force
	fPos, fNeg *mat.Dense // peak force values
}

func newMergeStats(n int) *mergeStats {
	return &mergeStats{
		oPos: mat.NewDense(n, n, nil),
		oNeg: mat.NewDense(n, n, nil),
		fPos: mat.NewDense(n, n, nil),
		fNeg: mat.NewDense(n, n, nil),
	}
}

func (ms *mergeStats) note(pa, pb int, dG, allowed float64) {
	if math.Abs(dG) > 0.4*allowed {
		ms.overshoots++
	}
	ratio := dG / allowed
	if ratio > ms.oPos.At(pa, pb) {
		ms.oPos.Set(pa, pb, ratio)
	}
	if ratio < ms.oNeg.At(pa, pb) {
		ms.oNeg.Set(pa, pb, ratio)
	}
	if dG > ms.fPos.At(pa, pb) {
		ms.fPos.Set(pa, pb, dG)
	}
	if dG < ms.fNeg.At(pa, pb) {
		ms.fNeg.Set(pa, pb, dG)
	}
}

func (ms *mergeStats) merge(o *mergeStats) {
	ms.maxPsi = math.Max(ms.maxPsi, o.maxPsi)
	ms.overshoots += o.overshoots
	maxInPlace(ms.oPos, o.oPos)
	minInPlace(ms.oNeg, o.oNeg)
	maxInPlace(ms.fPos, o.fPos)
	minInPlace(ms.fNeg, o.fNeg)
}

func maxInPlace(dst, src *mat.Dense) {
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := src.At(i, j); v > dst.At(i, j) {
				dst.Set(i, j, v)
			}
		}
	}
}

func minInPlace(dst, src *mat.Dense) {
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := src.At(i, j); v < dst.At(i, j) {
				dst.Set(i, j, v)
			}
		}
	}
}

// MergeIncrements converts the post-processed forces into pairwise
// increment rates on the kernel's increment store. Forces beyond the
// interface stabilizing force are squashed through tanh toward the allowed
// band to prevent interface distortion; every squash is counted for the
// diagnostics.
func (f *Force) MergeIncrements(k *phasefield.Kernel) {
	if k.Grid.Resolution == grid.Dual {
		f.mergeDR(k)
		return
	}
	f.mergeSR(k)
}

func (f *Force) mergeSR(k *phasefield.Kernel) {
	prefactor := math.Pi / f.Grid.Eta

	s := k.Fields
	stats := make([]*mergeStats, k.Pool().Chunks())
	k.Pool().Run(s.ExtLen(), func(chunk, start, end int) {
		ms := newMergeStats(f.Props.Phases)
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			if !s.AtLinear(c).Interface() {
				continue
			}
			force := f.Store.At(i, j, m)
			store := k.FieldsDot.AtLinear(c)
			for p := range force.Pairs {
				rec := &force.Pairs[p]
				dG := rec.Raw
				if f.Config.Averaging {
					dG = rec.Average
				}
				f.mergeOne(store, rec.A, rec.B, dG, rec.Weight, prefactor, ms)
			}
		}
		stats[chunk] = ms
	})
	f.applyStats(stats)
}

// mergeDR runs the fine grid against the coarse force storage: each fine
// cell samples the force field at its own position in coarse coordinates.
func (f *Force) mergeDR(k *phasefield.Kernel) {
	prefactor := math.Pi / f.Grid.Eta

	s := k.FieldsDR
	stats := make([]*mergeStats, k.Pool().Chunks())
	k.Pool().Run(s.ExtLen(), func(chunk, start, end int) {
		ms := newMergeStats(f.Props.Phases)
		var sampled Node
		for c := start; c < end; c++ {
			i, j, m := s.Cell(c)
			if !s.InRange(i, j, m, 0) {
				continue
			}
			node := s.AtLinear(c)
			if !node.Interface() {
				continue
			}
			f.Store.Sample(
				float64(i)/2.0-0.25*float64(f.Grid.DNx),
				float64(j)/2.0-0.25*float64(f.Grid.DNy),
				float64(m)/2.0-0.25*float64(f.Grid.DNz),
				&sampled,
			)
			store := k.FieldsDotDR.AtLinear(c)
			for a := 0; a < node.Len(); a++ {
				alpha := &node.Entries[a]
				for b := a + 1; b < node.Len(); b++ {
					beta := &node.Entries[b]
					dG := sampled.Raw(alpha.Index, beta.Index)
					if f.Config.Averaging {
						dG = sampled.Average(alpha.Index, beta.Index)
					}
					weight := math.Sqrt(alpha.Value * beta.Value)
					f.mergeOne(store, alpha.Index, beta.Index, dG, weight, prefactor, ms)
				}
			}
		}
		stats[chunk] = ms
	})
	f.applyStats(stats)
}

// mergeOne limits one pair force and adds the resulting rate.
func (f *Force) mergeOne(store *field.RateNode, a, b int, dG, weight, prefactor float64, ms *mergeStats) {
	norm := weight
	if f.Reg.At(a).Stage == grains.Seed || f.Reg.At(b).Stage == grains.Seed {
		norm += seedAllowance
	}

	pa, pb := f.Reg.Phase(a), f.Reg.Phase(b)
	if f.Config.Limiting {
		allowed := f.Props.Limit.At(pa, pb) * prefactor * f.Props.Sigma.At(pa, pb) *
			f.Props.RegularizationFactor
		ms.note(pa, pb, dG, allowed)
		dG = allowed * math.Tanh(dG/allowed)
	}

	dPsi := dG * f.Props.Mobility.At(pa, pb) * norm * prefactor
	if abs := math.Abs(dPsi); abs > ms.maxPsi {
		ms.maxPsi = abs
	}
	store.Add1(a, b, dPsi)
}

func (f *Force) applyStats(stats []*mergeStats) {
	total := newMergeStats(f.Props.Phases)
	for _, ms := range stats {
		if ms != nil {
			total.merge(ms)
		}
	}
	f.MaxPsi = total.maxPsi
	f.overshoots += total.overshoots
	maxInPlace(f.maxForcePos, total.fPos)
	minInPlace(f.maxForceNeg, total.fNeg)
	maxInPlace(f.maxOvershootPos, total.oPos)
	minInPlace(f.maxOvershootNeg, total.oNeg)
}

// MaxTimeStep returns the largest stable time step: the Neumann bound of
// the stiffest phase pair scaled by theorLimit, capped so the largest
// increment of the last merge stays below numerLimit.
func (f *Force) MaxTimeStep(theorLimit, numerLimit float64) float64 {
	maxPsi := f.Red.MaxFloat64(f.MaxPsi)

	theor := theorLimit * f.Props.StabilityTimeStep(f.Grid.Dx, f.Grid.Dimensions)
	numer := math.Inf(1)
	if maxPsi > field.Eps {
		numer = numerLimit / maxPsi
	}
	return math.Min(theor, numer)
}

// LogDiagnostics reports how often and how hard the limiter engaged since
// the last call, per phase pair, then resets the counters. Quiet when the
// limiter never fired.
func (f *Force) LogDiagnostics() {
	count := []float64{float64(f.overshoots)}
	f.Red.SumFloat64s(count)
	overshoots := int(count[0])
	if overshoots == 0 {
		return
	}

	f.reduceMatrices()

	attrs := []any{"limited", overshoots}
	for a := 0; a < f.Props.Phases; a++ {
		for b := a; b < f.Props.Phases; b++ {
			oPos := math.Max(f.maxOvershootPos.At(a, b), -f.maxOvershootNeg.At(b, a))
			oNeg := math.Min(f.maxOvershootNeg.At(a, b), -f.maxOvershootPos.At(b, a))
			if oPos <= field.Eps && oNeg >= -field.Eps {
				continue
			}
			attrs = append(attrs, slog.Group("pair",
				"phase_a", a,
				"phase_b", b,
				"max_force", math.Max(f.maxForcePos.At(a, b), -f.maxForceNeg.At(b, a)),
				"min_force", math.Min(f.maxForceNeg.At(a, b), -f.maxForcePos.At(b, a)),
				"max_overshoot", oPos,
				"min_overshoot", oNeg,
			))
		}
	}
	slog.Info("driving force limited to prevent interface distortion", attrs...)

	f.overshoots = 0
	f.maxOvershootPos.Zero()
	f.maxOvershootNeg.Zero()
	f.maxForcePos.Zero()
	f.maxForceNeg.Zero()
}

// reduceMatrices combines the diagnostics matrices across domains: maxima
// of the positive peaks, minima (via negation) of the negative ones.
func (f *Force) reduceMatrices() {
	f.Red.MaxFloat64s(f.maxOvershootPos.RawMatrix().Data)
	f.Red.MaxFloat64s(f.maxForcePos.RawMatrix().Data)
	for _, m := range []*mat.Dense{f.maxOvershootNeg, f.maxForceNeg} {
		data := m.RawMatrix().Data
		for i := range data {
			data[i] = -data[i]
		}
		f.Red.MaxFloat64s(data)
		for i := range data {
			data[i] = -data[i]
		}
	}
}
