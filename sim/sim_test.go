package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/config"
	"github.com/fennwald/polyphase/driving"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/telemetry"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildGrid(t *testing.T) {
	cfg := defaultConfig(t)
	p, err := buildGrid(cfg)
	require.NoError(t, err)
	assert.Equal(t, 64, p.Nx)
	assert.Equal(t, grid.Single, p.Resolution)

	cfg.Grid.Resolution = "dual"
	p, err = buildGrid(cfg)
	require.NoError(t, err)
	assert.Equal(t, grid.Dual, p.Resolution)

	cfg.Grid.Resolution = "triple"
	_, err = buildGrid(cfg)
	assert.Error(t, err)
}

func TestBuildBoundary(t *testing.T) {
	cfg := defaultConfig(t)
	bc, err := buildBoundary(cfg)
	require.NoError(t, err)
	assert.Equal(t, boundary.Periodic, bc.X0)
	assert.Equal(t, boundary.Periodic, bc.ZN)

	cfg.Boundary.Y0 = "noflux"
	bc, err = buildBoundary(cfg)
	require.NoError(t, err)
	assert.Equal(t, boundary.NoFlux, bc.Y0)

	cfg.Boundary.XN = "slanted"
	_, err = buildBoundary(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundary xn")
}

func TestBuildDrivingConfig(t *testing.T) {
	cfg := defaultConfig(t)
	p, err := buildGrid(cfg)
	require.NoError(t, err)

	// Zero range and threshold fall back to the grid-derived defaults.
	dcfg, err := buildDrivingConfig(cfg, p)
	require.NoError(t, err)
	assert.Equal(t, driving.DefaultConfig(p).Range, dcfg.Range)
	assert.InDelta(t, driving.DefaultConfig(p).PhiThreshold, dcfg.PhiThreshold, 1e-15)
	assert.Equal(t, driving.WeightsPhaseFields, dcfg.WeightsMode)

	cfg.Driving.Range = 3
	cfg.Driving.Threshold = 0.25
	cfg.Driving.WeightsMode = "counter"
	dcfg, err = buildDrivingConfig(cfg, p)
	require.NoError(t, err)
	assert.Equal(t, 3, dcfg.Range)
	assert.InDelta(t, 0.25, dcfg.PhiThreshold, 1e-15)
	assert.Equal(t, driving.WeightsCounter, dcfg.WeightsMode)

	cfg.Driving.WeightsMode = "bogus"
	_, err = buildDrivingConfig(cfg, p)
	assert.Error(t, err)
}

func TestRunShortSimulation(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Grid.Nx, cfg.Grid.Ny = 16, 16
	cfg.Derived.TotalCells = 16 * 16
	cfg.Initial.Grains = 4
	cfg.Telemetry.StatsEvery = 1
	cfg.Telemetry.GrainsEvery = 1

	dir := t.TempDir()
	s, err := New(cfg, Options{Steps: 3, OutputDir: dir})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Run())

	for _, name := range []string{"config.yaml", "telemetry.csv", "grains.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing %s", name)
	}
}

func TestRunTimesStatisticsPhase(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Grid.Nx, cfg.Grid.Ny = 16, 16
	cfg.Initial.Grains = 4
	cfg.Telemetry.StatsEvery = 1

	s, err := New(cfg, Options{Steps: 3, OutputDir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Run())

	perf := s.perf.Stats()
	assert.Greater(t, perf.PhaseAvg[telemetry.PhaseStatistics], time.Duration(0),
		"stats collection runs inside the statistics phase")
	assert.Greater(t, perf.PhaseAvg[telemetry.PhaseOutput], time.Duration(0))
}

func TestRunWithArchiveCheckpoints(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig(t)
	cfg.Grid.Nx, cfg.Grid.Ny = 16, 16
	cfg.Derived.TotalCells = 16 * 16
	cfg.Initial.Grains = 4
	cfg.Checkpoint.Every = 2
	cfg.Checkpoint.Archive = true
	cfg.Checkpoint.Path = filepath.Join(dir, "snapshots.db")

	s, err := New(cfg, Options{Steps: 5, OutputDir: dir})
	require.NoError(t, err)
	runID := s.RunID
	require.NoError(t, s.Run())
	require.NoError(t, s.Close())

	// Resume the archived run from its latest snapshot.
	resumed, err := New(cfg, Options{Steps: 6, OutputDir: t.TempDir(), ResumeRun: runID})
	require.NoError(t, err)
	defer resumed.Close()
	assert.Equal(t, runID, resumed.RunID)
	require.NoError(t, resumed.Run())
}

func TestUnknownInitializer(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Initial.Type = "spiral"
	cfg.Run.OutputDir = ""
	_, err := New(cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown initial condition")
}
