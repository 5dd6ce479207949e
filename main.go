package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fennwald/polyphase/config"
	"github.com/fennwald/polyphase/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	steps := flag.Int("steps", 0, "Stop after N steps (0 = use config)")
	seed := flag.Int64("seed", 0, "RNG seed for the initializer (0 = use config, -1 = time-based)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	restartFrom := flag.String("restart-from", "", "Checkpoint file to restore before stepping")
	resumeRun := flag.String("resume-run", "", "Run id to resume from the snapshot archive")
	checkpointEvery := flag.Int("checkpoint-every", 0, "Steps between checkpoints (0 = use config)")
	statsEvery := flag.Int("stats-every", 0, "Steps between telemetry rows (0 = use config)")
	workers := flag.Int("workers", 0, "Worker goroutines for the cell passes (0 = use config)")
	archive := flag.Bool("archive", false, "Store checkpoints in the sqlite snapshot archive")
	logPointStats := flag.Bool("log-pf", false, "Dump offending cells when normalization does not converge")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *workers > 0 {
		cfg.Run.Workers = *workers
		cfg.Derived.Workers = *workers
	}
	if *statsEvery > 0 {
		cfg.Telemetry.StatsEvery = *statsEvery
	}
	if *archive {
		cfg.Checkpoint.Archive = true
	}

	rngSeed := *seed
	if rngSeed == -1 {
		rngSeed = time.Now().UnixNano()
	}

	s, err := sim.New(cfg, sim.Options{
		Seed:            rngSeed,
		Steps:           *steps,
		OutputDir:       *outputDir,
		RestartFrom:     *restartFrom,
		ResumeRun:       *resumeRun,
		CheckpointEvery: *checkpointEvery,
		LogPointStats:   *logPointStats,
	})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Run(); err != nil {
		slog.Error("simulation failed", "error", err)
		s.Close()
		os.Exit(1)
	}
}
