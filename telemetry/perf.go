package telemetry

import (
	"log/slog"
	"time"
)

// Phase identifies one step of the solver pipeline.
type Phase uint8

// Solver phases in pipeline order.
const (
	PhaseEmit Phase = iota
	PhaseIntegrate
	PhaseViscosity
	PhasePredict
	PhaseUpdateGrid
	PhaseNeighborSearch
	PhaseDensityPressure
	PhaseDeltaPositions
	PhaseCollisions
	PhaseReconstructVelocity
	NumPhases
)

var phaseNames = [NumPhases]string{
	"emit",
	"integrate",
	"viscosity",
	"predict",
	"update_grid",
	"neighbor_search",
	"density_pressure",
	"delta_positions",
	"collisions",
	"reconstruct_velocity",
}

func (p Phase) String() string {
	if p < NumPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// PhaseTimes holds one duration per solver phase.
type PhaseTimes [NumPhases]time.Duration

// Total returns the sum over all phases.
func (t PhaseTimes) Total() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

// Millis returns the duration of phase p in milliseconds.
func (t PhaseTimes) Millis(p Phase) float64 {
	return float64(t[p]) / float64(time.Millisecond)
}

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       PhaseTimes
}

// PerfCollector tracks step timings over a rolling window.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int

	current    PhaseTimes
	stepStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
	last       PerfSample
}

// NewPerfCollector creates a collector averaging over windowSize steps.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
	}
}

// StartStep begins timing a solver step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.current = PhaseTimes{}
	p.inPhase = false
}

// StartPhase ends the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	if p.inPhase {
		p.current[p.phase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.phase = phase
	p.inPhase = true
}

// EndStep closes the running phase and records the sample.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	if p.inPhase {
		p.current[p.phase] += now.Sub(p.phaseStart)
		p.inPhase = false
	}

	p.last = PerfSample{StepDuration: now.Sub(p.stepStart), Phases: p.current}
	p.samples[p.writeIndex] = p.last
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// Last returns the most recent sample.
func (p *PerfCollector) Last() PerfSample {
	return p.last
}

// Reset drops all samples.
func (p *PerfCollector) Reset() {
	clear(p.samples)
	p.writeIndex = 0
	p.sampleCount = 0
	p.last = PerfSample{}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	PhaseAvg PhaseTimes
	PhasePct [NumPhases]float64 // Share of the average step

	StepsPerSecond float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{}
	}

	var total time.Duration
	var minStep, maxStep time.Duration
	var phaseSum PhaseTimes
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.StepDuration
		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		maxStep = max(maxStep, s.StepDuration)
		for ph, d := range s.Phases {
			phaseSum[ph] += d
		}
	}

	n := time.Duration(p.sampleCount)
	stats := PerfStats{
		AvgStepDuration: total / n,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
	}
	for ph := range phaseSum {
		stats.PhaseAvg[ph] = phaseSum[ph] / n
		if stats.AvgStepDuration > 0 {
			stats.PhasePct[ph] = float64(stats.PhaseAvg[ph]) / float64(stats.AvgStepDuration) * 100
		}
	}
	if stats.AvgStepDuration > 0 {
		stats.StepsPerSecond = float64(time.Second) / float64(stats.AvgStepDuration)
	}
	return stats
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for ph, pct := range s.PhasePct {
		// Skip noise
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Frame              int32   `csv:"frame"`
	AvgStepUS          int64   `csv:"avg_step_us"`
	MinStepUS          int64   `csv:"min_step_us"`
	MaxStepUS          int64   `csv:"max_step_us"`
	StepsPerSec        float64 `csv:"steps_per_sec"`
	EmitPct            float64 `csv:"emit_pct"`
	IntegratePct       float64 `csv:"integrate_pct"`
	ViscosityPct       float64 `csv:"viscosity_pct"`
	PredictPct         float64 `csv:"predict_pct"`
	UpdateGridPct      float64 `csv:"update_grid_pct"`
	NeighborSearchPct  float64 `csv:"neighbor_search_pct"`
	DensityPressurePct float64 `csv:"density_pressure_pct"`
	DeltaPositionsPct  float64 `csv:"delta_positions_pct"`
	CollisionsPct      float64 `csv:"collisions_pct"`
	ReconstructPct     float64 `csv:"reconstruct_velocity_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(frame int32) PerfStatsCSV {
	return PerfStatsCSV{
		Frame:              frame,
		AvgStepUS:          s.AvgStepDuration.Microseconds(),
		MinStepUS:          s.MinStepDuration.Microseconds(),
		MaxStepUS:          s.MaxStepDuration.Microseconds(),
		StepsPerSec:        s.StepsPerSecond,
		EmitPct:            s.PhasePct[PhaseEmit],
		IntegratePct:       s.PhasePct[PhaseIntegrate],
		ViscosityPct:       s.PhasePct[PhaseViscosity],
		PredictPct:         s.PhasePct[PhasePredict],
		UpdateGridPct:      s.PhasePct[PhaseUpdateGrid],
		NeighborSearchPct:  s.PhasePct[PhaseNeighborSearch],
		DensityPressurePct: s.PhasePct[PhaseDensityPressure],
		DeltaPositionsPct:  s.PhasePct[PhaseDeltaPositions],
		CollisionsPct:      s.PhasePct[PhaseCollisions],
		ReconstructPct:     s.PhasePct[PhaseReconstructVelocity],
	}
}
