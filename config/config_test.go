package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Grid.Nx)
	assert.Equal(t, 5, cfg.Grid.InterfaceWidth)
	assert.Equal(t, "periodic", cfg.Boundary.X0)
	assert.Len(t, cfg.Phases, 2)
	assert.Len(t, cfg.Interface.Pairs, 3)
	assert.True(t, cfg.Driving.Averaging)
	assert.Equal(t, "voronoi", cfg.Initial.Type)
	assert.Equal(t, 24, cfg.Normalization.IterationCap)
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grid:\n  nx: 128\n  ny: 128\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Grid.Nx)
	assert.Equal(t, 128, cfg.Grid.Ny)
	assert.Equal(t, 1, cfg.Grid.Nz, "unset fields keep the defaults")
	assert.Equal(t, 5, cfg.Grid.InterfaceWidth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDerivedValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Derived.Dimensions)
	assert.Equal(t, 64*64, cfg.Derived.TotalCells)
	assert.InDelta(t, 5e-6, cfg.Derived.Eta, 1e-18)
	assert.InDelta(t, 1e-12, cfg.Derived.CellVolume, 1e-24)

	// dx^2 / (2*dim*sigma*mu) with sigma 0.24, mu 4e-9.
	want := 1e-12 / (2.0 * 2.0 * 0.24 * 4e-9)
	assert.InDelta(t, want, cfg.Derived.DtStable, want*1e-12)
	assert.Greater(t, cfg.Derived.Workers, 0)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero extent", "grid:\n  nx: 0\n"},
		{"no interface width", "grid:\n  interface_width: 0\n"},
		{"pair out of range", "interface:\n  pairs:\n    - phase_a: 0\n      phase_b: 7\n"},
		{"negative limit", "interface:\n  pairs:\n    - phase_a: 0\n      phase_b: 1\n      limit: -1.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Grid, again.Grid)
	assert.Equal(t, cfg.Phases, again.Phases)
	assert.Equal(t, cfg.Interface, again.Interface)
	assert.Equal(t, cfg.Time, again.Time)
}

func TestInitAndCfg(t *testing.T) {
	require.NoError(t, Init(""))
	cfg := Cfg()
	require.NotNil(t, cfg)
	assert.Equal(t, 64, cfg.Grid.Nx)
}
