package telemetry

import (
	"github.com/pthm-cable/fluid/components"
)

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationFrames int32

	windowStartFrame int32
	windowStartTime  float64 // Simulated seconds at the last flush

	// Event counters for current window
	spawned          int
	neighborOverflow int
	cellOverflow     int

	// Reused sample buffers
	densities []float64
	pressures []float64
	speeds    []float64
}

// NewCollector creates a collector whose windows last windowDurationSec of
// simulated time at dt seconds per frame.
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	frames := int32(windowDurationSec / float64(dt))
	if frames < 1 {
		frames = 1
	}
	return &Collector{windowDurationFrames: frames}
}

// RecordSpawned records particles added by emitters.
func (c *Collector) RecordSpawned(n int) {
	c.spawned += n
}

// RecordOverflow records dropped neighbor candidates and refused regrids.
func (c *Collector) RecordOverflow(neighbors, cells int) {
	c.neighborOverflow += neighbors
	c.cellOverflow += cells
}

// ShouldFlush reports whether frame closes the current window.
func (c *Collector) ShouldFlush(frame int32) bool {
	return frame-c.windowStartFrame >= c.windowDurationFrames
}

// Flush samples the particle store, resets the window counters and returns the window.
func (c *Collector) Flush(frame int32, simTime float64, p *components.Particles, stats Statistics, activeEmitters int) WindowStats {
	n := p.Len()
	c.densities = c.densities[:0]
	c.pressures = c.pressures[:0]
	c.speeds = c.speeds[:0]
	for i := 0; i < n; i++ {
		c.densities = append(c.densities, float64(p.Density[i]))
		c.pressures = append(c.pressures, float64(p.Pressure[i]))
		c.speeds = append(c.speeds, float64(p.Vel[i].Len()))
	}

	w := WindowStats{
		Frame:            frame,
		SimTime:          simTime,
		Duration:         simTime - c.windowStartTime,
		Particles:        n,
		Spawned:          c.spawned,
		ActiveEmitters:   activeEmitters,
		MinNeighbors:     stats.MinNeighbors,
		MaxNeighbors:     stats.MaxNeighbors,
		MaxCellParticles: stats.MaxCellParticles,
		NeighborOverflow: c.neighborOverflow,
		CellOverflow:     c.cellOverflow,
	}
	w.DensityMean, w.DensityStd, w.DensityP10, w.DensityP50, w.DensityP90 = Distribution(c.densities)
	w.PressureMean, _, _, _, _ = Distribution(c.pressures)

	var speedMax float64
	for _, s := range c.speeds {
		speedMax = max(speedMax, s)
	}
	w.SpeedMean, _, _, w.SpeedP50, w.SpeedP90 = Distribution(c.speeds)
	w.SpeedMax = speedMax
	if w.Duration > 0 {
		w.SpawnRate = float64(c.spawned) / w.Duration
	}

	c.windowStartFrame = frame
	c.windowStartTime = simTime
	c.spawned = 0
	c.neighborOverflow = 0
	c.cellOverflow = 0
	return w
}
