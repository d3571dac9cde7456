package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/simulation"
	"github.com/pthm-cable/fluid/systems"
	"github.com/pthm-cable/fluid/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	scenarioPath := flag.String("scenarios", "", "Path to scenarios.yaml (empty = built-in table)")
	scenarioName := flag.String("scenario", "Dambreak", "Scenario to run")
	frames := flag.Int("frames", 600, "Number of frames to simulate")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	singleThread := flag.Bool("single-thread", false, "Run every phase on the calling goroutine")
	workers := flag.Int("workers", 0, "Worker goroutines (0 = config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	validate := flag.Bool("validate", false, "Validate particle state after every frame")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	scenarios, err := config.LoadScenarios(*scenarioPath)
	if err != nil {
		slog.Error("failed to load scenarios", "error", err)
		os.Exit(1)
	}
	sc, ok := config.FindScenario(scenarios, *scenarioName)
	if !ok {
		names := make([]string, len(scenarios))
		for i, s := range scenarios {
			names[i] = s.Name
		}
		slog.Error("unknown scenario", "name", *scenarioName, "available", names)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	sim := simulation.New(cfg, simulation.Options{
		Seed:           rngSeed,
		Logger:         logger,
		Workers:        *workers,
		SingleThreaded: *singleThread,
	})
	defer sim.Close()

	if err := sim.LoadScenario(sc); err != nil {
		slog.Error("failed to load scenario", "name", sc.Name, "error", err)
		os.Exit(1)
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		slog.Warn("failed to write config snapshot", "error", err)
	}

	slog.Info("starting headless simulation",
		"scenario", sc.Name,
		"seed", rngSeed,
		"frames", *frames,
		"substeps", cfg.Solver.Substeps,
		"multithreading", sim.IsMultiThreading(),
		"workers", sim.GetWorkerThreadCount(),
	)

	if err := run(sim, out, *frames, *logStats, *validate); err != nil {
		slog.Error("simulation stopped", "error", err)
		os.Exit(1)
	}
}

// run advances sim frame by frame, each frame split into the configured substeps.
// Capacity overflows are logged by the simulation and counted here; only an
// invalid particle state stops the run.
func run(sim *simulation.Simulation, out *telemetry.OutputManager, frames int, logStats, validate bool) error {
	cfg := sim.Config()
	dt := cfg.Derived.SubstepDT
	collector := telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.DT32)

	var simTime float64
	for frame := int32(1); frame <= int32(frames); frame++ {
		spawned := 0
		for step := 0; step < cfg.Solver.Substeps; step++ {
			err := sim.Update(dt)
			spawned += sim.Spawned()
			if err != nil {
				neighbors, cells := 0, 0
				if errors.Is(err, systems.ErrNeighborCapacity) {
					neighbors = 1
				}
				if errors.Is(err, systems.ErrCellCapacity) {
					cells = 1
				}
				collector.RecordOverflow(neighbors, cells)
			}
			simTime += float64(dt)
		}
		collector.RecordSpawned(spawned)

		if validate {
			if err := sim.Validate(); err != nil {
				return err
			}
		}

		stats := sim.GetStats()
		if err := out.WriteFrame(frameRecord(sim, frame, simTime, stats)); err != nil {
			return err
		}

		if collector.ShouldFlush(frame) {
			w := collector.Flush(frame, simTime, sim.Particles(), stats, sim.ActiveEmitters())
			perf := sim.Perf()
			if logStats {
				slog.Info("window", "stats", w, "perf", perf)
			}
			if err := out.WriteWindow(w); err != nil {
				return err
			}
			if err := out.WritePerf(perf, frame); err != nil {
				return err
			}
		}
	}

	slog.Info("simulation finished",
		"frames", frames,
		"sim_time", simTime,
		"particles", sim.GetParticleCount(),
		"stats", sim.GetStats(),
		"perf", sim.Perf(),
	)
	return nil
}

func frameRecord(sim *simulation.Simulation, frame int32, simTime float64, stats telemetry.Statistics) telemetry.FrameRecord {
	var meanY float64
	pos := sim.Positions()
	for _, p := range pos {
		meanY += float64(p[1])
	}
	if len(pos) > 0 {
		meanY /= float64(len(pos))
	}
	return telemetry.FrameRecord{
		Frame:        frame,
		SimTime:      simTime,
		Particles:    len(pos),
		StepMS:       float64(stats.Time.Total().Microseconds()) / 1000,
		MinNeighbors: stats.MinNeighbors,
		MaxNeighbors: stats.MaxNeighbors,
		MinCell:      stats.MinCellParticles,
		MaxCell:      stats.MaxCellParticles,
		MeanY:        meanY,
	}
}
