package grains

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/grid"
)

func TestLifecycleTransitions(t *testing.T) {
	r := NewRegistry()
	established := r.AddEstablished(0, 0)
	seed := r.AddSeed(1, 0, [3]float64{4, 4, 0}, 10.0)

	// A planted seed does not exist until it gains volume.
	assert.False(t, r.At(seed).Exist)
	assert.Equal(t, Seed, r.At(seed).Stage)

	r.ApplyVolumes([]float64{30.0, 2.0}, comms.Local{})
	assert.True(t, r.At(seed).Exist)
	assert.Equal(t, Nucleus, r.At(seed).Stage, "positive volume promotes a seed")
	assert.True(t, r.NucleationPresent)

	// Growing past the reference volume makes it stable.
	r.ApplyVolumes([]float64{20.0, 12.0}, comms.Local{})
	assert.Equal(t, Stable, r.At(seed).Stage)
	assert.InDelta(t, 1.0, r.At(seed).VolumeRatio, 1e-15)
	assert.False(t, r.NucleationPresent)

	// Losing all volume retires a grain.
	r.ApplyVolumes([]float64{0.0, 32.0}, comms.Local{})
	assert.False(t, r.At(established).Exist)
	assert.Zero(t, r.At(established).Volume)
}

func TestVolumeRatioTracksMaxVolume(t *testing.T) {
	r := NewRegistry()
	seed := r.AddSeed(0, 0, [3]float64{}, 20.0)

	r.ApplyVolumes([]float64{5.0}, comms.Local{})
	assert.InDelta(t, 0.25, r.At(seed).VolumeRatio, 1e-15)

	// Shrinking does not lower the ratio; it follows the peak volume.
	r.ApplyVolumes([]float64{4.0}, comms.Local{})
	assert.InDelta(t, 0.25, r.At(seed).VolumeRatio, 1e-15)
	assert.InDelta(t, 5.0, r.At(seed).MaxVolume, 1e-15)
}

func TestPairFactorDefaultsToOne(t *testing.T) {
	r := NewRegistry()
	assert.InDelta(t, 1.0, r.PairFactor(3, 7), 1e-15)

	r.SetPairFactor(7, 3, 0.25)
	assert.InDelta(t, 0.25, r.PairFactor(3, 7), 1e-15, "pair factors are unordered")
	assert.InDelta(t, 0.25, r.PairFactor(7, 3), 1e-15)
}

func TestReferenceVolume(t *testing.T) {
	r := NewRegistry()

	p1 := grid.New(16, 1, 1, 1.0, 5, 1, grid.Single)
	assert.InDelta(t, 6.0, r.ReferenceVolume(p1, 3.0), 1e-12)

	p2 := grid.New(16, 16, 1, 1.0, 5, 1, grid.Single)
	assert.InDelta(t, math.Pi*9.0, r.ReferenceVolume(p2, 3.0), 1e-12)

	p3 := grid.New(16, 16, 16, 1.0, 5, 1, grid.Single)
	assert.InDelta(t, 4.0/3.0*math.Pi*27.0, r.ReferenceVolume(p3, 3.0), 1e-12)

	r.NucleusVolumeFactor = 0.5
	assert.InDelta(t, math.Pi*4.5, r.ReferenceVolume(p2, 3.0), 1e-12)
}
