package phasefield

import "log/slog"

// StepReport aggregates the recoverable warnings of one time step. Per-cell
// conditions are counted and reported once per step with a single example
// cell, so a persistently misbehaving cell cannot flood the output.
type StepReport struct {
	// NonConverged counts cells whose clamp loop hit the iteration cap.
	NonConverged     int
	NonConvergedCell [3]int

	// Plausibility counts cells where applying the normalized increments
	// would still leave a value outside [-eps32, 1+eps32]. The value is
	// used as-is; correcting it here could break conservation elsewhere.
	Plausibility          int
	PlausibilityCell      [3]int
	PlausibilityDeviation float64
}

func (r *StepReport) reset() { *r = StepReport{} }

// merge folds a per-chunk partial report into r. Chunks merge in id order,
// so the example cell is always the first offender in scan order.
func (r *StepReport) merge(o StepReport) {
	if o.NonConverged > 0 {
		if r.NonConverged == 0 {
			r.NonConvergedCell = o.NonConvergedCell
		}
		r.NonConverged += o.NonConverged
	}
	if o.Plausibility > 0 {
		if r.Plausibility == 0 {
			r.PlausibilityCell = o.PlausibilityCell
		}
		if o.PlausibilityDeviation > r.PlausibilityDeviation {
			r.PlausibilityDeviation = o.PlausibilityDeviation
		}
		r.Plausibility += o.Plausibility
	}
}

func (r *StepReport) noteNonConverged(i, j, k int) {
	if r.NonConverged == 0 {
		r.NonConvergedCell = [3]int{i, j, k}
	}
	r.NonConverged++
}

func (r *StepReport) notePlausibility(i, j, k int, deviation float64) {
	if r.Plausibility == 0 {
		r.PlausibilityCell = [3]int{i, j, k}
	}
	if deviation > r.PlausibilityDeviation {
		r.PlausibilityDeviation = deviation
	}
	r.Plausibility++
}

// Log emits the aggregated warnings for the step, if any.
func (r *StepReport) Log(step int) {
	if r.NonConverged > 0 {
		slog.Warn("increment limiting did not converge within iteration cap",
			"step", step,
			"cells", r.NonConverged,
			"example_cell", r.NonConvergedCell,
		)
	}
	if r.Plausibility > 0 {
		slog.Warn("normalized increments still leave occupancy out of bounds",
			"step", step,
			"cells", r.Plausibility,
			"example_cell", r.PlausibilityCell,
			"worst_deviation", r.PlausibilityDeviation,
		)
	}
}
