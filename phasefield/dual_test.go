package phasefield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwald/polyphase/grid"
)

func TestDualGeometry(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Dual, Options{})
	require.NotNil(t, k.FieldsDR)
	require.NotNil(t, k.FieldsDotDR)
	assert.Equal(t, 8, k.Fine.Nx)
	assert.Equal(t, 8, k.Fine.Ny)
	assert.Equal(t, 1, k.Fine.Nz, "inactive axes are not doubled")
}

func TestRefineIsExactForBulk(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Dual, Options{})
	fillBulk(k, 3)
	k.FinalizeInitialization()

	count := 0
	k.fineChildren(1, 1, 0, func(fi, fj, fk int) {
		count++
		child := k.FieldsDR.At(fi, fj, fk)
		require.Equal(t, 1, child.Len())
		assert.InDelta(t, 1.0, child.Value(3), 1e-15)
	})
	assert.Equal(t, 4, count, "two active axes give four children")
}

func TestRefineCoarsenRoundTrip(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Dual, Options{})
	fillBulk(k, 1)

	n := k.Fields.At(2, 2, 0)
	n.Clear()
	n.SetValue(1, 0.6)
	n.SetValue(2, 0.4)
	n.Finalize()

	k.FinalizeInitialization()

	// Coarsening the refined field keeps every invariant: each coarse cell
	// sums to one and every value stays inside [0,1].
	for i := 0; i < k.Grid.Nx; i++ {
		for j := 0; j < k.Grid.Ny; j++ {
			node := k.Fields.At(i, j, 0)
			assert.InDelta(t, 1.0, node.Sum(), 1e-12, "cell (%d,%d)", i, j)
			for _, e := range node.Entries {
				assert.GreaterOrEqual(t, e.Value, -1e-12)
				assert.LessOrEqual(t, e.Value, 1.0+1e-12)
			}
		}
	}

	// Fine occupancy integrates to the same total as the coarse field.
	fineSum := 0.0
	for i := 0; i < k.Fine.Nx; i++ {
		for j := 0; j < k.Fine.Ny; j++ {
			fineSum += k.FieldsDR.At(i, j, 0).Value(2)
		}
	}
	coarseSum := 0.0
	for i := 0; i < k.Grid.Nx; i++ {
		for j := 0; j < k.Grid.Ny; j++ {
			coarseSum += k.Fields.At(i, j, 0).Value(2)
		}
	}
	assert.InDelta(t, coarseSum, fineSum/4.0, 1e-9,
		"refined occupancy should integrate back to the coarse amount")
}

func TestCoarsenRatesAverages(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Dual, Options{})
	fillBulk(k, 1)

	n := k.Fields.At(2, 2, 0)
	n.Clear()
	n.SetValue(1, 0.5)
	n.SetValue(2, 0.5)
	n.Finalize()

	rates := []float64{1.0, 2.0, 3.0, 4.0}
	idx := 0
	k.fineChildren(2, 2, 0, func(fi, fj, fk int) {
		k.FieldsDotDR.At(fi, fj, fk).Add1(1, 2, rates[idx])
		idx++
	})

	k.CoarsenRates()

	got := k.FieldsDot.At(2, 2, 0).Get1(1, 2)
	assert.InDelta(t, 2.5, got, 1e-12, "coarse rate is the mean of the children")
}

func TestDualMergeAdvancesFineGrid(t *testing.T) {
	k := newTestKernel(t, 4, 4, 1, grid.Dual, Options{})
	fillBulk(k, 5)

	n := k.Fields.At(1, 1, 0)
	n.Clear()
	n.SetValue(5, 0.6)
	n.SetValue(9, 0.4)
	n.Finalize()
	k.FinalizeInitialization()

	// Push the same transfer in every fine child of the interface cell.
	k.fineChildren(1, 1, 0, func(fi, fj, fk int) {
		child := k.FieldsDR.At(fi, fj, fk)
		if child.WideInterface() {
			k.FieldsDotDR.At(fi, fj, fk).Add1(5, 9, 0.2)
		}
	})

	require.NoError(t, k.NormalizeIncrements(0.5))
	k.MergeIncrements(0.5)

	// The coarse cell follows the fine grid through coarsening.
	node := k.Fields.At(1, 1, 0)
	assert.InDelta(t, 1.0, node.Sum(), 1e-12)
	assert.Greater(t, node.Value(5), 0.6, "transfer toward region 5 reached the coarse grid")
}
