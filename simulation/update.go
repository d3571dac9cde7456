package simulation

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fluid/systems"
	"github.com/pthm-cable/fluid/telemetry"
)

// parallelThreshold is the minimum particle count to use the worker pool.
// Below this, the inline path is faster than dispatching.
const parallelThreshold = 64

// Update advances the simulation by one fixed substep of dt seconds.
//
// Capacity overflows do not stop the step: overflowing particles, neighbors
// or regrids are dropped and the errors are joined and returned at the end.
func (s *Simulation) Update(dt float32) error {
	if dt <= 0 {
		return nil
	}
	p := s.particles
	var errs []error

	s.perf.StartStep()

	s.perf.StartPhase(telemetry.PhaseEmit)
	res, err := s.emitters.Update(dt, s.params.ParticleSpacing, s.jitter(), s.spawn)
	s.spawned = res.Particles
	if err != nil {
		errs = append(errs, err)
	}
	if res.Deactivated > 0 {
		s.logger.Info("emitter finished", "count", res.Deactivated, "particles", p.Len())
	}

	s.perf.StartPhase(telemetry.PhaseIntegrate)
	systems.Integrate(p, s.gravity, s.external, dt)

	s.perf.StartPhase(telemetry.PhaseViscosity)
	if chunks := s.runPhase(phaseViscosity, dt); chunks > 0 {
		systems.ApplyAccumulated(p.Vel, s.scratch.merge(chunks))
	}

	s.perf.StartPhase(telemetry.PhasePredict)
	systems.Predict(p, dt)

	s.perf.StartPhase(telemetry.PhaseUpdateGrid)
	if err := s.grid.Update(p); err != nil {
		s.stats.CellOverflow++
		s.logger.Warn("regrid dropped moves", "err", err)
		errs = append(errs, err)
	}

	s.perf.StartPhase(telemetry.PhaseNeighborSearch)
	if chunks := s.runPhase(phaseNeighborSearch, dt); chunks > 0 {
		dropped := 0
		for _, n := range s.overflow[:chunks] {
			dropped += n
		}
		if dropped > 0 {
			s.stats.NeighborOverflow += dropped
			s.logger.Warn("neighbor capacity exceeded", "dropped", dropped, "max", s.cfg.Limits.MaxNeighbors)
			errs = append(errs, fmt.Errorf("%w: %d candidates dropped", systems.ErrNeighborCapacity, dropped))
		}
	}
	s.stats.MinNeighbors, s.stats.MaxNeighbors = systems.NeighborRange(p, s.cfg.Limits.MaxNeighbors)

	s.perf.StartPhase(telemetry.PhaseDensityPressure)
	s.runPhase(phaseDensityPressure, dt)

	s.perf.StartPhase(telemetry.PhaseDeltaPositions)
	if chunks := s.runPhase(phaseDeltaPositions, dt); chunks > 0 {
		systems.ApplyAccumulated(p.Cur, s.scratch.merge(chunks))
	}

	s.perf.StartPhase(telemetry.PhaseCollisions)
	s.collider.SolveAll(p, s.bodies)

	s.perf.StartPhase(telemetry.PhaseReconstructVelocity)
	systems.ReconstructVelocity(p, dt)

	s.perf.EndStep()
	s.stats.Time = s.perf.Last().Phases
	s.stepCount++

	return errors.Join(errs...)
}

// spawn is the emitter callback.
func (s *Simulation) spawn(pos, acc mgl32.Vec2) error {
	_, err := s.AddParticle(pos, acc)
	return err
}

// runPhase runs one index-range phase over all particles, on the pool when
// multithreading is on and the particle count is worth it, inline otherwise.
// Scratch state is sized before any task starts. Returns the number of ranges.
func (s *Simulation) runPhase(ph phase, dt float32) int {
	n := s.particles.Len()
	if n == 0 {
		return 0
	}
	parallel := s.multiThreading && s.pool != nil && n >= parallelThreshold
	chunks := 1
	if parallel {
		chunks = s.pool.Chunks(n)
	}

	switch ph {
	case phaseViscosity, phaseDeltaPositions:
		s.scratch.reset(chunks, n)
	case phaseNeighborSearch:
		s.overflow = resizeInts(s.overflow, chunks)
	}

	if !parallel {
		s.runTask(task{phase: ph, chunk: 0, start: 0, end: n, dt: dt})
		return 1
	}
	s.pool.Dispatch(n, ph, dt)
	s.pool.Wait()
	return chunks
}

// runTask executes one range. It runs on pool workers, so it only writes
// the fields owned by its range and its own scratch slot.
func (s *Simulation) runTask(t task) {
	p := s.particles
	switch t.phase {
	case phaseViscosity:
		systems.ViscosityImpulses(p, &s.params, t.start, t.end, t.dt, s.scratch.bufs[t.chunk])
	case phaseNeighborSearch:
		s.overflow[t.chunk] = systems.NeighborSearch(s.grid, p, t.start, t.end, s.cfg.Limits.MaxNeighbors)
	case phaseDensityPressure:
		systems.DensityAndPressure(p, &s.params, t.start, t.end)
	case phaseDeltaPositions:
		systems.DeltaPositions(p, &s.params, t.start, t.end, t.dt, s.scratch.bufs[t.chunk])
	}
}

// resizeInts returns buf with length n, zeroed.
func resizeInts(buf []int, n int) []int {
	if cap(buf) < n {
		return make([]int, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
