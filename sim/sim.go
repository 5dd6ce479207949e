// Package sim wires the configured collaborators into a runnable
// simulation: grid, registry, boundary conditions, kernel, driving force,
// telemetry and persistence, plus the step loop that drives them.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/fennwald/polyphase/boundary"
	"github.com/fennwald/polyphase/checkpoint"
	"github.com/fennwald/polyphase/comms"
	"github.com/fennwald/polyphase/config"
	"github.com/fennwald/polyphase/driving"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/initial"
	"github.com/fennwald/polyphase/phasefield"
	"github.com/fennwald/polyphase/stencil"
	"github.com/fennwald/polyphase/telemetry"
)

// Options carries the CLI overrides on top of the loaded config.
type Options struct {
	Seed            int64
	Steps           int    // 0 = use config
	OutputDir       string // empty = use config
	RestartFrom     string // checkpoint file to restore before stepping
	ResumeRun       string // run id to resume from the archive
	CheckpointEvery int    // 0 = use config
	LogPointStats   bool   // dump offending cells on normalization warnings
}

// Sim is one configured simulation run.
type Sim struct {
	cfg  *config.Config
	opts Options

	RunID string

	kernel *phasefield.Kernel
	force  *driving.Force

	out     *telemetry.OutputManager
	perf    *telemetry.PerfCollector
	archive checkpoint.Store

	dt      float64
	simTime float64
	step    int
}

// New builds the simulation from the effective config.
func New(cfg *config.Config, opts Options) (*Sim, error) {
	p, err := buildGrid(cfg)
	if err != nil {
		return nil, err
	}
	bc, err := buildBoundary(cfg)
	if err != nil {
		return nil, err
	}

	phases := make([]phasefield.PhaseInfo, len(cfg.Phases))
	for i, ph := range cfg.Phases {
		phases[i] = phasefield.PhaseInfo{Name: ph.Name, Solid: ph.Solid, Combine: ph.Combine}
	}

	variant := stencil.Simple
	if cfg.Grid.Stencil == "isotropic" {
		variant = stencil.Isotropic
	}

	reg := grains.NewRegistry()
	kernel := phasefield.New(p, reg, bc, comms.Local{}, phases, phasefield.Options{
		LaplacianStencil: variant,
		IterationCap:     cfg.Normalization.IterationCap,
		Debug:            cfg.Normalization.Debug,
		Workers:          cfg.Derived.Workers,
	})

	props := driving.NewProperties(len(phases))
	props.RegularizationFactor = cfg.Interface.RegularizationFactor
	for _, pair := range cfg.Interface.Pairs {
		props.SetPair(pair.PhaseA, pair.PhaseB, pair.Energy, pair.Mobility)
		if pair.Limit > 0 {
			props.Limit.SetSym(pair.PhaseA, pair.PhaseB, pair.Limit)
		}
	}

	dcfg, err := buildDrivingConfig(cfg, p)
	if err != nil {
		kernel.Close()
		return nil, err
	}
	force := driving.NewForce(p, props, reg, bc, comms.Local{}, dcfg)

	outputDir := cfg.Run.OutputDir
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}
	out, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		kernel.Close()
		return nil, err
	}
	if err := out.WriteConfig(cfg); err != nil {
		kernel.Close()
		out.Close()
		return nil, err
	}

	s := &Sim{
		cfg:    cfg,
		opts:   opts,
		RunID:  uuid.NewString(),
		kernel: kernel,
		force:  force,
		out:    out,
		perf:   telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		dt:     cfg.Time.Dt,
	}

	if cfg.Checkpoint.Archive || opts.ResumeRun != "" {
		s.archive, err = checkpoint.OpenArchive(cfg.Checkpoint.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := s.initState(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// initState restores a checkpoint or runs the configured initializer.
func (s *Sim) initState() error {
	switch {
	case s.opts.ResumeRun != "":
		snap, err := s.archive.LatestSnapshot(s.opts.ResumeRun)
		if err != nil {
			return fmt.Errorf("resuming run %s: %w", s.opts.ResumeRun, err)
		}
		if err := snap.Restore(s.kernel); err != nil {
			return fmt.Errorf("resuming run %s: %w", s.opts.ResumeRun, err)
		}
		s.RunID = snap.RunID
		s.step = snap.Step
		s.simTime = snap.SimTime
		slog.Info("resumed from archive",
			"run_id", snap.RunID, "step", snap.Step, "sim_time", snap.SimTime,
			"size", humanize.Bytes(uint64(len(snap.Blob))))
		return nil

	case s.opts.RestartFrom != "":
		// A bad restart file is not fatal: log and start fresh, like a
		// cold run.
		if err := checkpoint.LoadFile(s.opts.RestartFrom, s.kernel); err != nil {
			slog.Error("restart failed, starting fresh", "path", s.opts.RestartFrom, "error", err)
			return s.runInitializer()
		}
		slog.Info("restored checkpoint", "path", s.opts.RestartFrom)
		return nil
	}
	return s.runInitializer()
}

func (s *Sim) runInitializer() error {
	c := s.cfg.Initial
	seed := c.Seed
	if s.opts.Seed != 0 {
		seed = s.opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	p := s.kernel.Grid
	switch c.Type {
	case "single":
		initial.Single(s.kernel, c.Phase)
	case "sphere":
		matrix := initial.Single(s.kernel, c.Matrix)
		initial.Sphere(s.kernel, c.Phase, c.Radius,
			float64(p.Nx)/2.0, float64(p.Ny)/2.0, float64(p.Nz)/2.0, matrix)
	case "voronoi":
		initial.Voronoi(s.kernel, c.Phase, c.Grains, rng)
	case "noisy_voronoi":
		initial.NoisyVoronoi(s.kernel, c.Phase, c.Grains, c.Amplitude, c.Frequency, rng)
	default:
		return fmt.Errorf("unknown initial condition %q", c.Type)
	}

	slog.Info("initialized microstructure",
		"type", c.Type, "grains", s.kernel.Reg.Len(), "seed", seed)
	return nil
}

// Run executes the step loop until the configured step count.
func (s *Sim) Run() error {
	steps := s.cfg.Time.Steps
	if s.opts.Steps > 0 {
		steps = s.opts.Steps
	}
	checkpointEvery := s.cfg.Checkpoint.Every
	if s.opts.CheckpointEvery > 0 {
		checkpointEvery = s.opts.CheckpointEvery
	}

	if s.cfg.Derived.DtStable > 0 && s.dt > s.cfg.Derived.DtStable {
		slog.Warn("configured dt exceeds the stability estimate",
			"dt", s.dt, "dt_stable", s.cfg.Derived.DtStable)
	}

	slog.Info("starting simulation",
		"run_id", s.RunID,
		"grid", fmt.Sprintf("%dx%dx%d", s.kernel.Grid.Nx, s.kernel.Grid.Ny, s.kernel.Grid.Nz),
		"resolution", s.kernel.Grid.Resolution.String(),
		"steps", steps,
		"dt", s.dt,
		"workers", s.cfg.Derived.Workers,
	)

	for ; s.step < steps; s.step++ {
		stepStart := time.Now()
		s.perf.StartStep()

		s.plantSeeds()

		s.perf.StartPhase(telemetry.PhaseDriving)
		s.force.Clear()
		s.force.AddCurvature(s.kernel)
		s.force.Average(s.kernel)
		s.force.MergeIncrements(s.kernel)

		if s.cfg.Time.Adaptive {
			s.dt = s.cfg.Time.Dt
			if lim := s.force.MaxTimeStep(s.cfg.Time.TheorLimit, s.cfg.Time.NumerLimit); lim > 0 && lim < s.dt {
				s.dt = lim
			}
		}

		s.perf.StartPhase(telemetry.PhaseNormalize)
		if err := s.kernel.NormalizeIncrements(s.dt); err != nil {
			// Conservation broke upstream; state is corrupt by contract.
			return fmt.Errorf("step %d: %w", s.step, err)
		}
		s.logWarnings()

		s.perf.StartPhase(telemetry.PhaseMerge)
		s.kernel.MergeIncrements(s.dt)
		s.simTime += s.dt

		s.perf.StartPhase(telemetry.PhaseStatistics)
		if err := s.writeOutputs(stepStart, checkpointEvery); err != nil {
			return err
		}

		s.perf.EndStep()
	}

	s.force.LogDiagnostics()
	s.perf.Stats().LogStats()
	slog.Info("simulation finished",
		"run_id", s.RunID, "steps", s.step, "sim_time", s.simTime)
	return nil
}

func (s *Sim) plantSeeds() {
	for _, seed := range s.cfg.Nucleation.Seeds {
		if seed.Step != s.step {
			continue
		}
		idx := s.kernel.PlantNucleus(seed.Phase, seed.Variant, seed.X, seed.Y, seed.Z)
		slog.Info("planted nucleus",
			"grain", idx, "phase", seed.Phase,
			"cell_i", seed.X, "cell_j", seed.Y, "cell_k", seed.Z)
	}
}

func (s *Sim) logWarnings() {
	s.kernel.Report.Log(s.step)
	if s.opts.LogPointStats && s.kernel.Report.NonConverged > 0 {
		c := s.kernel.Report.NonConvergedCell
		s.kernel.LogPointStatistics(c[0], c[1], c[2])
	}
}

// writeOutputs collects the step statistics while the statistics phase is
// open, then switches the collector to the output phase for the writes.
func (s *Sim) writeOutputs(stepStart time.Time, checkpointEvery int) error {
	var stats *telemetry.StepStats
	statsEvery := s.cfg.Telemetry.StatsEvery
	if statsEvery > 0 && s.step%statsEvery == 0 {
		st := telemetry.CollectStepStats(s.kernel, s.step, s.simTime, s.dt,
			s.force.MaxPsi, time.Since(stepStart).Seconds())
		st.LogStats()
		stats = &st
	}

	s.perf.StartPhase(telemetry.PhaseOutput)
	if stats != nil {
		if err := s.out.WriteTelemetry(*stats); err != nil {
			return err
		}
		if err := s.out.WritePerf(s.perf.Stats(), s.step); err != nil {
			return err
		}
	}

	grainsEvery := s.cfg.Telemetry.GrainsEvery
	if grainsEvery > 0 && s.step%grainsEvery == 0 {
		if err := s.out.WriteGrains(telemetry.CollectGrainRecords(s.kernel, s.step)); err != nil {
			return err
		}
	}

	if checkpointEvery > 0 && s.step > 0 && s.step%checkpointEvery == 0 {
		if err := s.checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sim) checkpoint() error {
	if s.archive != nil {
		snap, err := checkpoint.Capture(s.kernel, s.RunID, s.step, s.simTime)
		if err != nil {
			return fmt.Errorf("capturing snapshot at step %d: %w", s.step, err)
		}
		if err := s.archive.InsertSnapshot(snap); err != nil {
			return err
		}
		slog.Info("archived snapshot",
			"step", s.step, "size", humanize.Bytes(uint64(len(snap.Blob))))
		return nil
	}
	if s.out.Dir() == "" {
		return nil
	}
	path := fmt.Sprintf("%s/checkpoint_%06d.pf", s.out.Dir(), s.step)
	if err := checkpoint.SaveFile(path, s.kernel); err != nil {
		return err
	}
	slog.Info("wrote checkpoint", "path", path)
	return nil
}

// Close releases the kernel workers and output files.
func (s *Sim) Close() error {
	s.kernel.Close()
	var firstErr error
	if err := s.out.Close(); err != nil {
		firstErr = err
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildGrid(cfg *config.Config) (grid.Parameters, error) {
	res := grid.Single
	switch cfg.Grid.Resolution {
	case "", "single":
	case "dual":
		res = grid.Dual
	default:
		return grid.Parameters{}, fmt.Errorf("unknown grid resolution %q", cfg.Grid.Resolution)
	}
	return grid.New(cfg.Grid.Nx, cfg.Grid.Ny, cfg.Grid.Nz,
		cfg.Grid.Dx, cfg.Grid.InterfaceWidth, cfg.Grid.Bcells, res), nil
}

func buildBoundary(cfg *config.Config) (boundary.Conditions, error) {
	var bc boundary.Conditions
	var err error
	faces := []struct {
		name string
		rule string
		dst  *boundary.Rule
	}{
		{"x0", cfg.Boundary.X0, &bc.X0},
		{"xn", cfg.Boundary.XN, &bc.XN},
		{"y0", cfg.Boundary.Y0, &bc.Y0},
		{"yn", cfg.Boundary.YN, &bc.YN},
		{"z0", cfg.Boundary.Z0, &bc.Z0},
		{"zn", cfg.Boundary.ZN, &bc.ZN},
	}
	for _, f := range faces {
		if *f.dst, err = boundary.ParseRule(f.rule); err != nil {
			return bc, fmt.Errorf("boundary %s: %w", f.name, err)
		}
	}
	return bc, nil
}

func buildDrivingConfig(cfg *config.Config, p grid.Parameters) (driving.Config, error) {
	dcfg := driving.DefaultConfig(p)
	dcfg.Averaging = cfg.Driving.Averaging
	dcfg.Limiting = cfg.Driving.Limiting
	if cfg.Driving.Range > 0 {
		dcfg.Range = cfg.Driving.Range
	}
	if cfg.Driving.Threshold > 0 {
		dcfg.PhiThreshold = cfg.Driving.Threshold
	}
	if cfg.Driving.WeightsMode != "" {
		mode, err := driving.ParseWeightsMode(cfg.Driving.WeightsMode)
		if err != nil {
			return dcfg, err
		}
		dcfg.WeightsMode = mode
	}
	return dcfg, nil
}
