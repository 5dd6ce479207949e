package phasefield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
)

// newTestKernel builds a periodic kernel with ten established grains of one
// solid phase, enough indices for any pair a test wants to exercise.
func newTestKernel(t *testing.T, nx, ny, nz int, res grid.Resolution, opts Options) *Kernel {
	t.Helper()
	reg := grains.NewRegistry()
	for i := 0; i < 10; i++ {
		reg.AddEstablished(0, i)
	}
	p := grid.New(nx, ny, nz, 1.0, 5, 1, res)
	k := New(p, reg, boundary.Uniform(boundary.Periodic), comms.Local{},
		[]PhaseInfo{{Name: "solid", Solid: true}}, opts)
	t.Cleanup(k.Close)
	return k
}

// fillBulk writes grain idx as the sole occupant of every interior cell.
func fillBulk(k *Kernel, idx int) {
	for i := 0; i < k.Grid.Nx; i++ {
		for j := 0; j < k.Grid.Ny; j++ {
			for m := 0; m < k.Grid.Nz; m++ {
				n := k.Fields.At(i, j, m)
				n.Clear()
				n.SetValue(idx, 1.0)
				n.Finalize()
			}
		}
	}
}

func TestNormalizeClampsTwoRegionCell(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 5)

	n := k.Fields.At(1, 1, 0)
	n.Clear()
	n.SetValue(5, 0.6)
	n.SetValue(9, 0.4)
	n.Finalize()

	// Raw increment of +1.0 would push region 5 to 1.6.
	k.FieldsDot.At(1, 1, 0).Add1(5, 9, 2.0)

	require.NoError(t, k.NormalizeIncrements(0.5))

	rec := k.FieldsDot.At(1, 1, 0).Front()
	assert.InDelta(t, 0.8, rec.Value1, 1e-12, "rate should scale to just fill region 5")

	k.MergeIncrements(0.5)
	n = k.Fields.At(1, 1, 0)
	assert.InDelta(t, 1.0, n.Value(5), 1e-12)
	assert.InDelta(t, 0.0, n.Value(9), 1e-12)
	assert.InDelta(t, 1.0, n.Sum(), 1e-12)
}

func TestNormalizeThreeRegionCell(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 1)

	n := k.Fields.At(2, 2, 0)
	n.Clear()
	n.SetValue(1, 0.5)
	n.SetValue(2, 0.3)
	n.SetValue(3, 0.2)
	n.Finalize()

	store := k.FieldsDot.At(2, 2, 0)
	store.Add1(1, 2, 2.0)
	store.Add1(1, 3, 1.0)

	require.NoError(t, k.NormalizeIncrements(0.5))
	k.MergeIncrements(0.5)

	n = k.Fields.At(2, 2, 0)
	assert.InDelta(t, 1.0, n.Sum(), 1e-12, "per-cell sum must survive the clamp")
	for _, e := range n.Entries {
		assert.GreaterOrEqual(t, e.Value, -1e-12)
		assert.LessOrEqual(t, e.Value, 1.0+1e-12)
	}
	// Region 2 is the tightest donor and ends up drained.
	assert.InDelta(t, 0.0, n.Value(2), 1e-12)
}

// Three mutually conflicting pair records: clamping any one of them shifts
// the balance of the other two, so the fixed-point loop has to re-limit
// across iterations rather than settle in one sweep.
func TestNormalizeThreeConflictingPairs(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 1)

	n := k.Fields.At(1, 1, 0)
	n.Clear()
	n.SetValue(1, 0.34)
	n.SetValue(2, 0.33)
	n.SetValue(3, 0.33)
	n.Finalize()

	store := k.FieldsDot.At(1, 1, 0)
	store.Add1(1, 2, 3.0)
	store.Add1(1, 3, 2.0)
	store.Add1(2, 3, 1.0)

	require.NoError(t, k.NormalizeIncrements(0.5))

	// Normalization only ever shrinks a record.
	assert.LessOrEqual(t, store.Get1(1, 2), 3.0+1e-12)
	assert.LessOrEqual(t, store.Get1(1, 3), 2.0+1e-12)
	assert.LessOrEqual(t, store.Get1(2, 3), 1.0+1e-12)
	for r := range store.Rates {
		assert.GreaterOrEqual(t, store.Rates[r].Value1, 0.0, "scaling must not flip signs")
	}

	k.MergeIncrements(0.5)
	n = k.Fields.At(1, 1, 0)
	assert.InDelta(t, 1.0, n.Sum(), 1e-12, "proportional scaling keeps the sum")
	for _, e := range n.Entries {
		assert.GreaterOrEqual(t, e.Value, -1e-12)
		assert.LessOrEqual(t, e.Value, 1.0+1e-12)
	}
}

// A record whose endpoint has no entry in the cell cannot represent a valid
// exchange; the clamp zeroes it instead of applying it blind.
func TestNormalizeZeroesRecordsOfAbsentRegions(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 5)

	n := k.Fields.At(1, 1, 0)
	n.Clear()
	n.SetValue(5, 0.6)
	n.SetValue(9, 0.4)
	n.Finalize()

	store := k.FieldsDot.At(1, 1, 0)
	store.Add1(5, 9, 0.1)
	store.Add1(5, 7, 1.0)

	require.NoError(t, k.NormalizeIncrements(0.1))
	assert.InDelta(t, 0.0, store.Get1(5, 7), 1e-15)
	assert.InDelta(t, 0.1, store.Get1(5, 9), 1e-12, "the valid record survives untouched")
	assert.Zero(t, k.Report.Plausibility)
}

func TestNormalizeSkipsBulkCells(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 1)

	// A stray record on a bulk cell must not move anything.
	k.FieldsDot.At(0, 0, 0).Add1(1, 2, 5.0)

	require.NoError(t, k.NormalizeIncrements(0.1))
	k.MergeIncrements(0.1)

	n := k.Fields.At(0, 0, 0)
	assert.Equal(t, 1, n.Len())
	assert.InDelta(t, 1.0, n.Value(1), 1e-15)
}

func TestNormalizeDropsPinnedDonor(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 5)

	// Region 9 sits exactly at zero and is asked to donate further.
	n := k.Fields.At(1, 2, 0)
	n.Clear()
	n.SetValue(5, 1.0)
	n.SetValue(9, 0.0)
	n.Flag = field.FlagInterface

	k.FieldsDot.At(1, 2, 0).Add1(9, 5, -1.0)

	require.NoError(t, k.NormalizeIncrements(0.5))
	assert.Equal(t, 0, k.FieldsDot.At(1, 2, 0).Len())
}

func TestNormalizeIsIdempotent(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	fillBulk(k, 5)

	n := k.Fields.At(1, 1, 0)
	n.Clear()
	n.SetValue(5, 0.6)
	n.SetValue(9, 0.4)
	n.Finalize()
	k.FieldsDot.At(1, 1, 0).Add1(5, 9, 2.0)

	require.NoError(t, k.NormalizeIncrements(0.5))
	first := k.FieldsDot.At(1, 1, 0).Front().Value1

	// A second pass sees increments that already respect the bounds.
	require.NoError(t, k.NormalizeIncrements(0.5))
	second := k.FieldsDot.At(1, 1, 0).Front().Value1
	assert.InDelta(t, first, second, 1e-12)
}

// The closed-form two-region path and the iterative general path must agree
// when the general path is forced onto a two-region cell by a dummy record.
func TestNormalizeFastPathMatchesGeneral(t *testing.T) {
	build := func(k *Kernel, extra bool) {
		fillBulk(k, 5)
		n := k.Fields.At(1, 1, 0)
		n.Clear()
		n.SetValue(5, 0.7)
		n.SetValue(9, 0.3)
		n.Finalize()
		store := k.FieldsDot.At(1, 1, 0)
		store.Add1(5, 9, 1.6)
		if extra {
			// Zero-rate record bumps the store past the fast path.
			store.Add1(5, 7, 0.0)
		}
	}

	fast := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	build(fast, false)
	require.NoError(t, fast.NormalizeIncrements(0.5))

	general := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
	build(general, true)
	require.NoError(t, general.NormalizeIncrements(0.5))

	got := general.FieldsDot.At(1, 1, 0).Get1(5, 9)
	want := fast.FieldsDot.At(1, 1, 0).Get1(5, 9)
	assert.InDelta(t, want, got, 1e-12)
}

func TestNormalizeReportsNonConvergence(t *testing.T) {
	// Region 2 receives from 1 and donates to 3; the donation is clamped
	// much harder than the receipt, so iteration two still limits and an
	// iteration cap of one cannot settle the cell.
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{IterationCap: 1})
	fillBulk(k, 1)

	n := k.Fields.At(1, 1, 0)
	n.Clear()
	n.SetValue(1, 0.1)
	n.SetValue(2, 0.8)
	n.SetValue(3, 0.05)
	n.SetValue(4, 0.05)
	n.Finalize()

	store := k.FieldsDot.At(1, 1, 0)
	store.Add1(2, 1, 3.0)
	store.Add1(3, 2, 5.0)

	require.NoError(t, k.NormalizeIncrements(1.0))
	assert.GreaterOrEqual(t, k.Report.NonConverged, 1)
	assert.Equal(t, [3]int{1, 1, 0}, k.Report.NonConvergedCell)

	// Whatever the cap produced must still be safe to apply.
	k.MergeIncrements(1.0)
	sum := k.Fields.At(1, 1, 0).Sum()
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestDebugConservationCheck(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Single, Options{Debug: true})
	fillBulk(k, 1)
	k.FinalizeInitialization()

	require.NoError(t, k.NormalizeIncrements(0.1), "a consistent field passes")

	// Corrupt one cell so its occupancy sums to 1.2.
	n := k.Fields.At(2, 1, 0)
	n.Clear()
	n.SetValue(1, 0.7)
	n.SetValue(2, 0.5)
	n.Flag = field.FlagInterface
	k.CalculateFractions()

	err := k.NormalizeIncrements(0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestNormalizeSinglePairExactFill(t *testing.T) {
	tests := []struct {
		name     string
		old      float64
		rate     float64
		dt       float64
		wantRate float64
	}{
		{"within bounds", 0.5, 0.4, 1.0, 0.4},
		{"clamp to one", 0.6, 2.0, 0.5, 0.8},
		{"clamp to zero", 0.3, -2.0, 0.5, -0.6},
		{"exactly fills", 0.25, 1.5, 0.5, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newTestKernel(t, 4, 4, 1, grid.Single, Options{})
			fillBulk(k, 5)
			n := k.Fields.At(1, 1, 0)
			n.Clear()
			n.SetValue(5, tt.old)
			n.SetValue(9, 1.0-tt.old)
			n.Finalize()
			k.FieldsDot.At(1, 1, 0).Add1(5, 9, tt.rate)

			require.NoError(t, k.NormalizeIncrements(tt.dt))
			got := k.FieldsDot.At(1, 1, 0).Get1(5, 9)
			assert.InDelta(t, tt.wantRate, got, 1e-12)

			next := tt.old + got*tt.dt
			assert.False(t, next < -1e-12 || next > 1.0+1e-12,
				"normalized increment leaves bounds: %v", next)
		})
	}
}
