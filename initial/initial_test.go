package initial

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/phasefield"
)

func newKernel(t *testing.T, nx, ny, nz int) *phasefield.Kernel {
	t.Helper()
	p := grid.New(nx, ny, nz, 1.0, 5, 1, grid.Single)
	k := phasefield.New(p, grains.NewRegistry(), boundary.Uniform(boundary.Periodic),
		comms.Local{}, []phasefield.PhaseInfo{
			{Name: "matrix", Solid: true},
			{Name: "grain", Solid: true},
		}, phasefield.Options{})
	t.Cleanup(k.Close)
	return k
}

func assertSumToOne(t *testing.T, k *phasefield.Kernel) {
	t.Helper()
	for i := 0; i < k.Grid.Nx; i++ {
		for j := 0; j < k.Grid.Ny; j++ {
			for m := 0; m < k.Grid.Nz; m++ {
				sum := k.Fields.At(i, j, m).Sum()
				require.InDelta(t, 1.0, sum, 1e-12, "cell (%d,%d,%d)", i, j, m)
			}
		}
	}
}

func TestSingleFillsDomain(t *testing.T) {
	k := newKernel(t, 8, 8, 1)
	idx := Single(k, 0)

	assertSumToOne(t, k)
	assert.InDelta(t, float64(k.Grid.TotalCells), k.Reg.At(idx).Volume, 1e-9)
	assert.InDelta(t, 1.0, k.FractionsTotal[0], 1e-12)

	iface, _ := k.InterfaceCells()
	assert.Zero(t, iface, "a single grain has no interfaces")
}

func TestSphereProfile(t *testing.T) {
	k := newKernel(t, 24, 24, 1)
	matrix := Single(k, 0)
	idx := Sphere(k, 1, 6.0, 12, 12, 0, matrix)

	assertSumToOne(t, k)

	assert.InDelta(t, 1.0, k.Fields.At(12, 12, 0).Value(idx), 1e-12, "center is pure inclusion")
	assert.InDelta(t, 1.0, k.Fields.At(0, 0, 0).Value(matrix), 1e-12, "far field is pure matrix")

	// At the nominal radius the cosine profile crosses one half.
	assert.InDelta(t, 0.5, k.Fields.At(18, 12, 0).Value(idx), 1e-12)

	// Monotone decay across the interface band.
	prev := 1.0
	for i := 12; i <= 22; i++ {
		v := k.Fields.At(i, 12, 0).Value(idx)
		assert.LessOrEqual(t, v, prev+1e-12, "profile not monotone at i=%d", i)
		prev = v
	}

	iface, _ := k.InterfaceCells()
	assert.Greater(t, iface, 0)
}

func TestProfileShape(t *testing.T) {
	tests := []struct {
		name string
		rad  float64
		want float64
	}{
		{"deep inside", 1.0, 1.0},
		{"inner edge", 3.5, 1.0},
		{"on the radius", 6.0, 0.5},
		{"outer edge", 8.5, 0.0},
		{"far outside", 20.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, profile(tt.rad, 6.0, 5.0), 1e-12)
		})
	}
}

func TestVoronoiPartition(t *testing.T) {
	k := newKernel(t, 16, 16, 1)
	rng := rand.New(rand.NewSource(7))
	indices := Voronoi(k, 1, 6, rng)

	require.Len(t, indices, 6)
	assertSumToOne(t, k)

	// The tessellation covers the domain: grain volumes add up to every cell.
	total := 0.0
	for _, idx := range indices {
		total += k.Reg.At(idx).Volume
	}
	assert.InDelta(t, float64(k.Grid.TotalCells), total, 1e-9)

	// Each cell belongs entirely to the grain of its nearest site.
	bulk := 0
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			if !k.Fields.At(i, j, 0).Interface() {
				bulk++
			}
		}
	}
	assert.Greater(t, bulk, 0)
}

func TestVoronoiIsDeterministic(t *testing.T) {
	a := newKernel(t, 12, 12, 1)
	b := newKernel(t, 12, 12, 1)
	Voronoi(a, 1, 4, rand.New(rand.NewSource(3)))
	Voronoi(b, 1, 4, rand.New(rand.NewSource(3)))

	for i := 0; i < 12; i++ {
		for j := 0; j < 12; j++ {
			na, nb := a.Fields.At(i, j, 0), b.Fields.At(i, j, 0)
			require.Equal(t, na.Len(), nb.Len())
			for e := range na.Entries {
				require.Equal(t, na.Entries[e].Index, nb.Entries[e].Index)
				require.Equal(t, na.Entries[e].Value, nb.Entries[e].Value)
			}
		}
	}
}

func TestNoisyVoronoiStaysValid(t *testing.T) {
	k := newKernel(t, 16, 16, 1)
	rng := rand.New(rand.NewSource(11))
	indices := NoisyVoronoi(k, 1, 5, 2.0, 0.1, rng)

	require.Len(t, indices, 5)
	assertSumToOne(t, k)

	total := 0.0
	for _, idx := range indices {
		total += k.Reg.At(idx).Volume
	}
	assert.InDelta(t, float64(k.Grid.TotalCells), total, 1e-9)
}

func TestAxisDistMinimumImage(t *testing.T) {
	tests := []struct {
		d        float64
		n        int
		periodic bool
		want     float64
	}{
		{9.0, 10, true, -1.0},
		{-9.0, 10, true, 1.0},
		{4.0, 10, true, 4.0},
		{9.0, 10, false, 9.0},
	}
	for _, tt := range tests {
		got := axisDist(tt.d, tt.n, tt.periodic)
		assert.InDelta(t, tt.want, got, 1e-12, "axisDist(%v,%v,%v)", tt.d, tt.n, tt.periodic)
	}
}
