package telemetry

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Statistics are the solver counters exposed through GetStats.
// Occupancy extrema accumulate until reset; neighbor extrema and phase times
// describe the most recent step.
type Statistics struct {
	MinNeighbors     int
	MaxNeighbors     int
	MinCellParticles int
	MaxCellParticles int

	NeighborOverflow int // Dropped neighbor candidates since reset
	CellOverflow     int // Spawns refused and regrid passes that hit a full cell since reset

	Time PhaseTimes
}

// LogValue implements slog.LogValuer for structured logging.
func (s Statistics) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("min_neighbors", s.MinNeighbors),
		slog.Int("max_neighbors", s.MaxNeighbors),
		slog.Int("min_cell", s.MinCellParticles),
		slog.Int("max_cell", s.MaxCellParticles),
		slog.Float64("step_ms", float64(s.Time.Total().Microseconds())/1000),
	}
	if s.NeighborOverflow > 0 {
		attrs = append(attrs, slog.Int("neighbor_overflow", s.NeighborOverflow))
	}
	if s.CellOverflow > 0 {
		attrs = append(attrs, slog.Int("cell_overflow", s.CellOverflow))
	}
	return slog.GroupValue(attrs...)
}

// WindowStats summarizes the fluid at the end of a stats window.
type WindowStats struct {
	Frame     int32   `csv:"frame"`
	SimTime   float64 `csv:"sim_time"`
	Duration  float64 `csv:"duration"` // Simulated seconds since the previous window
	Particles int     `csv:"particles"`

	// Events during window
	Spawned        int     `csv:"spawned"`
	SpawnRate      float64 `csv:"spawn_rate"` // Particles per simulated second
	ActiveEmitters int     `csv:"active_emitters"`

	// Density distribution
	DensityMean float64 `csv:"density_mean"`
	DensityStd  float64 `csv:"density_std"`
	DensityP10  float64 `csv:"density_p10"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`

	PressureMean float64 `csv:"pressure_mean"`

	// Speed distribution
	SpeedMean float64 `csv:"speed_mean"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`
	SpeedMax  float64 `csv:"speed_max"`

	MinNeighbors     int `csv:"min_neighbors"`
	MaxNeighbors     int `csv:"max_neighbors"`
	MaxCellParticles int `csv:"max_cell"`
	NeighborOverflow int `csv:"neighbor_overflow"`
	CellOverflow     int `csv:"cell_overflow"`
}

// LogValue implements slog.LogValuer for structured logging.
func (w WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frame", int(w.Frame)),
		slog.Float64("sim_time", w.SimTime),
		slog.Int("particles", w.Particles),
		slog.Int("spawned", w.Spawned),
		slog.Float64("spawn_rate", w.SpawnRate),
		slog.Float64("density_mean", w.DensityMean),
		slog.Float64("density_p50", w.DensityP50),
		slog.Float64("speed_mean", w.SpeedMean),
		slog.Float64("speed_max", w.SpeedMax),
		slog.Int("max_neighbors", w.MaxNeighbors),
	)
}

// Quantiles sorts a copy of values and returns the empirical p-quantile for each p.
// Returns zeros if values is empty.
func Quantiles(values []float64, ps ...float64) []float64 {
	out := make([]float64, len(ps))
	if len(values) == 0 {
		return out
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	for i, p := range ps {
		p = math.Min(math.Max(p, 0), 1)
		out[i] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	return out
}

// Distribution returns mean, population standard deviation and the 10/50/90 percentiles.
func Distribution(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	q := Quantiles(values, 0.10, 0.50, 0.90)
	return mean, math.Sqrt(variance), q[0], q[1], q[2]
}
