package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/simulation"
	"github.com/pthm-cable/fluid/telemetry"
)

// Penalties added to the fitness of a run.
const (
	invalidPenalty  = 1e3 // Particle state failed validation
	overflowPenalty = 10  // Per frame with a capacity overflow, scaled by frame count
)

// FitnessEvaluator runs headless simulations and scores how well the fluid settles.
type FitnessEvaluator struct {
	params     *ParamVector
	frames     int
	seeds      []int64
	baseConfig *config.Config
	scenario   config.Scenario
	logger     *slog.Logger

	mu          sync.Mutex
	bestFitness float64
	bestWindows []telemetry.WindowStats
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, frames int, seeds []int64, baseCfg *config.Config, sc config.Scenario) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		frames:      frames,
		seeds:       seeds,
		baseConfig:  baseCfg,
		scenario:    sc,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		bestFitness: math.Inf(1),
	}
}

// BestWindows returns the window stats of the best evaluation.
func (fe *FitnessEvaluator) BestWindows() []telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestWindows
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// runResult holds the results from a single simulation run.
type runResult struct {
	windows        []telemetry.WindowStats
	overflowFrames int
	invalid        bool
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	windows []telemetry.WindowStats
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	sc := fe.scenario
	fe.params.ApplyToScenario(&sc, x)

	// Seeds run in parallel; each simulation stays single-threaded.
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			r := fe.runSimulation(sc, s)
			results[idx] = seedResult{fitness: fe.computeFitness(r), windows: r.windows}
		}(i, seed)
	}
	wg.Wait()

	var total float64
	best := results[0]
	for _, r := range results {
		total += r.fitness
		if r.fitness < best.fitness {
			best = r
		}
	}
	avg := total / float64(len(results))

	fe.mu.Lock()
	fe.lastQuality = 1 / (1 + avg)
	if avg < fe.bestFitness {
		fe.bestFitness = avg
		fe.bestWindows = best.windows
	}
	fe.mu.Unlock()

	return avg
}

// runSimulation runs one scenario for the configured number of frames.
func (fe *FitnessEvaluator) runSimulation(sc config.Scenario, seed int64) runResult {
	cfg := fe.baseConfig
	sim := simulation.New(cfg, simulation.Options{Seed: seed, Logger: fe.logger, SingleThreaded: true})
	defer sim.Close()

	var res runResult
	if err := sim.LoadScenario(sc); err != nil {
		res.invalid = true
		return res
	}

	dt := cfg.Derived.SubstepDT
	collector := telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.DT32)
	var simTime float64
	for frame := int32(1); frame <= int32(fe.frames); frame++ {
		overflow := false
		for step := 0; step < cfg.Solver.Substeps; step++ {
			if err := sim.Update(dt); err != nil {
				overflow = true
			}
			simTime += float64(dt)
		}
		if overflow {
			res.overflowFrames++
		}
		if err := sim.Validate(); err != nil {
			res.invalid = true
			return res
		}
		if collector.ShouldFlush(frame) || frame == int32(fe.frames) {
			res.windows = append(res.windows,
				collector.Flush(frame, simTime, sim.Particles(), sim.GetStats(), sim.ActiveEmitters()))
		}
	}
	return res
}

// computeFitness scores the final window: density spread relative to the mean
// plus the mean residual speed, with penalties for overflows and invalid state.
func (fe *FitnessEvaluator) computeFitness(r runResult) float64 {
	if r.invalid || len(r.windows) == 0 {
		return invalidPenalty
	}
	last := r.windows[len(r.windows)-1]
	fitness := last.SpeedMean
	if last.DensityMean > 0 {
		fitness += last.DensityStd / last.DensityMean
	}
	fitness += overflowPenalty * float64(r.overflowFrames) / float64(fe.frames)
	return fitness
}
