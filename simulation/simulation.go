// Package simulation drives the 2D viscoelastic fluid solver: the particle
// store, spatial grid, static bodies, emitters and the worker pool that
// parallelizes the per-particle phases.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/fluid/components"
	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/systems"
	"github.com/pthm-cable/fluid/telemetry"
)

var (
	// ErrParticleCapacity is returned when adding a particle beyond the configured limit.
	ErrParticleCapacity = errors.New("particle capacity exceeded")
	// ErrBodyCapacity is returned when adding a body beyond the configured limit.
	ErrBodyCapacity = errors.New("body capacity exceeded")
	// ErrInvalidParticle is returned by Validate.
	ErrInvalidParticle = errors.New("invalid particle state")
)

// validationApron is how far outside the boundary a particle may stray before Validate reports it.
const validationApron = 1.0

// maxValidSpeed bounds particle speed in Validate.
const maxValidSpeed = 1000.0

// Options configures a Simulation beyond the solver config.
type Options struct {
	Seed           int64        // Seeds spawn jitter
	Logger         *slog.Logger // nil = slog.Default()
	Workers        int          // 0 = config threading.workers, then GOMAXPROCS
	SingleThreaded bool         // Start with multithreading off regardless of config
}

// Simulation owns all solver state. It is not safe for concurrent use; the
// worker pool only runs inside Update.
type Simulation struct {
	cfg    *config.Config
	logger *slog.Logger
	rng    *rand.Rand

	particles *components.Particles
	grid      *systems.Grid
	bodies    []components.Body
	world     *ecs.World
	emitters  *systems.EmitterSystem
	collider  systems.Collider

	params   components.Params
	gravity  mgl32.Vec2
	external mgl32.Vec2

	pool           *Pool
	workers        int
	multiThreading bool
	scratch        accumulators
	overflow       []int // Neighbor overflow per task range

	stats     telemetry.Statistics
	perf      *telemetry.PerfCollector
	spawned   int // Particles added by emitters during the last Update
	stepCount int64
}

// New creates a simulation sized from cfg. Gravity starts at zero and the SPH
// parameters at the configured defaults.
func New(cfg *config.Config, opts Options) *Simulation {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Threading.Workers
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	d := &cfg.Derived
	lim := &cfg.Limits
	rng := rand.New(rand.NewSource(opts.Seed))
	world := ecs.NewWorld()

	s := &Simulation{
		cfg:       cfg,
		logger:    logger,
		rng:       rng,
		particles: components.NewParticles(lim.MaxParticles),
		grid:      systems.NewGrid(d.GridCountX, d.GridCountY, d.CellSize, d.HalfWidth, d.HalfHeight, lim.MaxCellParticles),
		bodies:    make([]components.Body, 0, lim.MaxBodies),
		world:     world,
		emitters:  systems.NewEmitterSystem(world, lim.MaxEmitters, rng),
		collider:  systems.Collider{Radius: d.CollisionRadius, Margin: d.CollisionMargin},
		params:    DefaultParams(cfg),
		workers:   workers,
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
	}
	s.ResetStats()
	s.SetMultiThreading(cfg.Threading.Enabled && !opts.SingleThreaded)
	return s
}

// DefaultParams returns the SPH parameters described by the solver config.
func DefaultParams(cfg *config.Config) components.Params {
	sc := &cfg.Solver
	return components.NewParams(
		cfg.Derived.KernelHeight,
		cfg.Derived.ParticleSpacing,
		float32(sc.RestDensity),
		float32(sc.Stiffness),
		float32(sc.Stiffness*sc.NearStiffnessFactor),
		float32(sc.LinearViscosity),
		float32(sc.QuadraticViscosity),
	)
}

// Close stops the worker pool.
func (s *Simulation) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// addBody appends b after the capacity check.
func (s *Simulation) addBody(b components.Body) error {
	if len(s.bodies) >= s.cfg.Limits.MaxBodies {
		s.logger.Warn("body capacity exceeded", "max", s.cfg.Limits.MaxBodies, "kind", b.Kind.String())
		return fmt.Errorf("%w: limit is %d", ErrBodyCapacity, s.cfg.Limits.MaxBodies)
	}
	s.bodies = append(s.bodies, b)
	return nil
}

// AddPlane registers a plane with the given normal and distance from the origin.
func (s *Simulation) AddPlane(normal mgl32.Vec2, distance float32) error {
	return s.addBody(components.NewPlane(normal, distance))
}

// AddCircle registers a solid circle.
func (s *Simulation) AddCircle(center mgl32.Vec2, radius float32) error {
	return s.addBody(components.NewCircle(center, radius))
}

// AddLineSegment registers a two-sided segment from a to b.
func (s *Simulation) AddLineSegment(a, b mgl32.Vec2) error {
	return s.addBody(components.NewLineSegment(a, b))
}

// AddPolygon registers a convex polygon with counter-clockwise world-space vertices.
func (s *Simulation) AddPolygon(verts []mgl32.Vec2) error {
	if len(verts) > s.cfg.Limits.MaxPolygonVertices {
		return fmt.Errorf("%w: %d vertices, limit is %d", components.ErrPolygonVertexCount, len(verts), s.cfg.Limits.MaxPolygonVertices)
	}
	b, err := components.NewPolygon(verts)
	if err != nil {
		return err
	}
	return s.addBody(b)
}

// ClearBodies removes every body.
func (s *Simulation) ClearBodies() {
	s.bodies = s.bodies[:0]
}

// AddParticle adds a particle at rest with an initial acceleration and grids it.
// The particle is dropped if the store or its grid cell is full.
func (s *Simulation) AddParticle(pos, acc mgl32.Vec2) (int, error) {
	if s.particles.Len() >= s.cfg.Limits.MaxParticles {
		s.logger.Warn("particle capacity exceeded", "max", s.cfg.Limits.MaxParticles)
		return -1, fmt.Errorf("%w: limit is %d", ErrParticleCapacity, s.cfg.Limits.MaxParticles)
	}
	cell := s.grid.CellIndexOf(pos)
	if s.grid.Full(cell) {
		s.logger.Warn("cell capacity exceeded", "cell_x", cell.X, "cell_y", cell.Y, "max", s.cfg.Limits.MaxCellParticles)
		s.stats.CellOverflow++
		return -1, fmt.Errorf("%w: cell (%d,%d) holds %d", systems.ErrCellCapacity, cell.X, cell.Y, s.cfg.Limits.MaxCellParticles)
	}
	idx := s.particles.Add(pos, acc)
	if err := s.grid.Insert(s.particles, idx); err != nil {
		// Unreachable after the Full check.
		return -1, err
	}
	return idx, nil
}

// AddVolume fills a countX by countY block centered on center, spaced by
// spacing and jittered slightly. Every particle starts with acceleration force.
// Returns the number of particles added; filling stops at the first error.
func (s *Simulation) AddVolume(center, force mgl32.Vec2, countX, countY int, spacing float32) (int, error) {
	offset := mgl32.Vec2{float32(countX) * spacing, float32(countY) * spacing}.Mul(0.5)
	origin := center.Sub(offset).Add(mgl32.Vec2{spacing * 0.5, spacing * 0.5})
	jitter := s.jitter()

	added := 0
	for y := 0; y < countY; y++ {
		for x := 0; x < countX; x++ {
			p := origin.Add(mgl32.Vec2{float32(x), float32(y)}.Mul(spacing))
			p = p.Add(systems.RandomDirection(s.rng).Mul(jitter))
			if _, err := s.AddParticle(p, force); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}

// jitter is the random offset applied to spawned particles.
func (s *Simulation) jitter() float32 {
	return s.cfg.Derived.KernelHeight * s.cfg.Derived.JitterScale
}

// ClearParticles removes every particle and empties the grid.
func (s *Simulation) ClearParticles() {
	s.particles.Reset()
	s.grid.Clear()
}

// AddEmitter registers an active emitter. direction is normalized.
func (s *Simulation) AddEmitter(position, direction mgl32.Vec2, radius, speed, rate, duration float32) error {
	err := s.emitters.Add(components.EmitterSource{
		Position:  position,
		Direction: direction,
		Radius:    radius,
		Speed:     speed,
		Rate:      rate,
		Duration:  duration,
	})
	if err != nil {
		s.logger.Warn("emitter capacity exceeded", "max", s.cfg.Limits.MaxEmitters)
	}
	return err
}

// ClearEmitters removes every emitter.
func (s *Simulation) ClearEmitters() {
	s.emitters.Clear()
}

// ResetStats clears counters, occupancy tracking and perf samples.
func (s *Simulation) ResetStats() {
	s.stats = telemetry.Statistics{}
	s.grid.ResetOccupancy()
	s.perf.Reset()
}

// GetParticleCount returns the number of live particles.
func (s *Simulation) GetParticleCount() int {
	return s.particles.Len()
}

// GetStats returns the solver statistics. Neighbor extrema and phase times
// describe the most recent Update; overflow counters and cell occupancy
// extrema accumulate until ResetStats.
func (s *Simulation) GetStats() telemetry.Statistics {
	st := s.stats
	st.MinCellParticles, st.MaxCellParticles = s.grid.Occupancy()
	return st
}

// Perf returns the rolling step timings.
func (s *Simulation) Perf() telemetry.PerfStats {
	return s.perf.Stats()
}

// GetParams returns the SPH parameters in use.
func (s *Simulation) GetParams() components.Params {
	return s.params
}

// SetParams replaces the SPH parameters. A kernel height larger than the grid
// cell would miss neighbors, so it is clamped to the cell size.
func (s *Simulation) SetParams(p components.Params) {
	if cell := s.grid.CellSize(); p.KernelHeight > cell {
		s.logger.Warn("kernel height clamped to cell size", "kernel_height", p.KernelHeight, "cell_size", cell)
		p.KernelHeight = cell
	}
	p.Normalize()
	s.params = p
}

// SetGravity sets the gravity acceleration.
func (s *Simulation) SetGravity(g mgl32.Vec2) {
	s.gravity = g
}

// Gravity returns the gravity acceleration.
func (s *Simulation) Gravity() mgl32.Vec2 {
	return s.gravity
}

// AddExternalForce adds to the acceleration applied to every particle each step.
func (s *Simulation) AddExternalForce(f mgl32.Vec2) {
	s.external = s.external.Add(f)
}

// ClearExternalForce removes the external force.
func (s *Simulation) ClearExternalForce() {
	s.external = mgl32.Vec2{}
}

// ExternalForce returns the accumulated external force.
func (s *Simulation) ExternalForce() mgl32.Vec2 {
	return s.external
}

// IsMultiThreadingSupported reports whether more than one worker is available.
func (s *Simulation) IsMultiThreadingSupported() bool {
	return s.workers > 1
}

// SetMultiThreading switches the parallel phases between the worker pool and
// the inline path. Enabling is ignored when only one worker is available.
func (s *Simulation) SetMultiThreading(on bool) {
	on = on && s.IsMultiThreadingSupported()
	if on && s.pool == nil {
		s.pool = NewPool(s.workers, s.runTask)
	}
	s.multiThreading = on
}

// IsMultiThreading reports whether the parallel phases use the worker pool.
func (s *Simulation) IsMultiThreading() bool {
	return s.multiThreading
}

// GetWorkerThreadCount returns the number of pool workers.
func (s *Simulation) GetWorkerThreadCount() int {
	return s.workers
}

// Positions returns the particle positions. The slice is owned by the
// simulation and valid until the next mutating call.
func (s *Simulation) Positions() []mgl32.Vec2 {
	return s.particles.Cur
}

// Velocities returns the particle velocities.
func (s *Simulation) Velocities() []mgl32.Vec2 {
	return s.particles.Vel
}

// Densities returns the particle densities of the last Update.
func (s *Simulation) Densities() []float32 {
	return s.particles.Density
}

// Pressures returns the particle pressures of the last Update.
func (s *Simulation) Pressures() []float32 {
	return s.particles.Pressure
}

// Particles exposes the particle store for read-only consumers such as telemetry.
func (s *Simulation) Particles() *components.Particles {
	return s.particles
}

// Bodies returns the registered bodies in registration order.
func (s *Simulation) Bodies() []components.Body {
	return s.bodies
}

// Emitters returns a snapshot of every emitter in registration order.
func (s *Simulation) Emitters() []components.Emitter {
	return s.emitters.Snapshot()
}

// ActiveEmitters counts emitters that have not run out.
func (s *Simulation) ActiveEmitters() int {
	n := 0
	for _, e := range s.emitters.Snapshot() {
		if e.Active {
			n++
		}
	}
	return n
}

// Spawned returns the number of particles emitters added during the last Update.
func (s *Simulation) Spawned() int {
	return s.spawned
}

// Steps returns the number of completed Update calls.
func (s *Simulation) Steps() int64 {
	return s.stepCount
}

// Validate checks that every particle is gridded, moves slower than
// maxValidSpeed and stays inside the boundary plus an apron.
func (s *Simulation) Validate() error {
	p := s.particles
	hw := s.cfg.Derived.HalfWidth + validationApron
	hh := s.cfg.Derived.HalfHeight + validationApron
	for i := range p.Cur {
		pos := p.Cur[i]
		if p.IndexInCell[i] < 0 || !s.grid.InBounds(p.Cell[i].X, p.Cell[i].Y) {
			return fmt.Errorf("%w: particle %d is not in the grid", ErrInvalidParticle, i)
		}
		speed := float64(p.Vel[i].Len())
		if math.IsNaN(speed) || speed >= maxValidSpeed {
			return fmt.Errorf("%w: particle %d speed %v", ErrInvalidParticle, i, speed)
		}
		if pos[0] < -hw || pos[0] > hw || pos[1] < -hh || pos[1] > hh {
			return fmt.Errorf("%w: particle %d at %v outside the boundary", ErrInvalidParticle, i, pos)
		}
	}
	return nil
}
