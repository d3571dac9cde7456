package systems

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/fluid/components"
)

// ErrEmitterCapacity is returned when adding an emitter beyond the configured limit.
var ErrEmitterCapacity = errors.New("emitter capacity exceeded")

// SpawnFunc adds one particle. Emission stops at the first error.
type SpawnFunc func(pos, acc mgl32.Vec2) error

// EmitResult summarizes one emitter update.
type EmitResult struct {
	Rows        int // Rows started this step
	Particles   int // Particles spawned this step
	Deactivated int // Emitters that ran out this step
}

// EmitterSystem owns the emitter entities and spawns their particle rows.
// Emitters update in registration order.
type EmitterSystem struct {
	world    *ecs.World
	mapper   *ecs.Map2[components.EmitterSource, components.EmitterClock]
	filter   *ecs.Filter2[components.EmitterSource, components.EmitterClock]
	entities []ecs.Entity
	capacity int
	rng      *rand.Rand
}

// NewEmitterSystem creates an emitter system storing its emitters in world.
func NewEmitterSystem(world *ecs.World, capacity int, rng *rand.Rand) *EmitterSystem {
	return &EmitterSystem{
		world:    world,
		mapper:   ecs.NewMap2[components.EmitterSource, components.EmitterClock](world),
		filter:   ecs.NewFilter2[components.EmitterSource, components.EmitterClock](world),
		entities: make([]ecs.Entity, 0, capacity),
		capacity: capacity,
		rng:      rng,
	}
}

// Add registers an active emitter. The direction is normalized.
func (s *EmitterSystem) Add(src components.EmitterSource) error {
	if len(s.entities) >= s.capacity {
		return fmt.Errorf("%w: limit is %d", ErrEmitterCapacity, s.capacity)
	}
	src.Direction = components.SafeNormalize(src.Direction)
	clock := components.EmitterClock{Active: true, Order: len(s.entities)}
	e := s.mapper.NewEntity(&src, &clock)
	s.entities = append(s.entities, e)
	return nil
}

// Clear removes every emitter.
func (s *EmitterSystem) Clear() {
	for _, e := range s.entities {
		if s.world.Alive(e) {
			s.world.RemoveEntity(e)
		}
	}
	s.entities = s.entities[:0]
}

// Len returns the number of registered emitters.
func (s *EmitterSystem) Len() int {
	return len(s.entities)
}

// Snapshot returns a copy of every emitter in registration order.
func (s *EmitterSystem) Snapshot() []components.Emitter {
	out := make([]components.Emitter, 0, len(s.entities))
	query := s.filter.Query()
	for query.Next() {
		src, clock := query.Get()
		out = append(out, components.Emitter{EmitterSource: *src, EmitterClock: *clock})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Update advances every active emitter by dt and spawns a row when its interval elapsed.
// The interval remainder carries over so the long-run row rate matches Rate.
// A spawn error ends the current row only; every emitter still advances and the
// errors are joined.
func (s *EmitterSystem) Update(dt, spacing, jitter float32, spawn SpawnFunc) (EmitResult, error) {
	var res EmitResult
	if dt <= 0 {
		return res, nil
	}
	var errs []error
	for _, e := range s.entities {
		src, clock := s.mapper.Get(e)
		if !clock.Active {
			continue
		}

		clock.Elapsed += dt
		clock.TotalElapsed += dt

		interval := 1 / src.Rate
		if clock.Elapsed >= interval {
			clock.Elapsed -= interval
			// A step longer than the interval emits one row; drop the backlog.
			if clock.Elapsed >= interval {
				clock.Elapsed = 0
			}
			n, err := s.emitRow(src, dt, spacing, jitter, spawn)
			res.Particles += n
			res.Rows++
			clock.Rows++
			if err != nil {
				errs = append(errs, err)
			}
		}

		if clock.TotalElapsed >= src.Duration {
			clock.Active = false
			res.Deactivated++
		}
	}
	return res, errors.Join(errs...)
}

// emitRow spawns one row of particles perpendicular to the emitter direction.
func (s *EmitterSystem) emitRow(src *components.EmitterSource, dt, spacing, jitter float32, spawn SpawnFunc) (int, error) {
	if spacing <= 0 {
		return 0, nil
	}
	acc := src.Direction.Mul(src.Speed / dt)
	side := mgl32.Vec2{-src.Direction[1], src.Direction[0]}
	// Absorb float32 rounding in radius/spacing.
	count := int(math.Floor(float64(src.Radius)/float64(spacing) + 1e-4))
	start := src.Position.Sub(side.Mul(float32(count) * spacing * 0.5))

	for i := 0; i < count; i++ {
		p := start.Add(side.Mul((float32(i) + 0.5) * spacing))
		p = p.Add(RandomDirection(s.rng).Mul(jitter))
		if err := spawn(p, acc); err != nil {
			return i, err
		}
	}
	return count, nil
}

// RandomDirection returns a uniformly distributed unit vector.
func RandomDirection(rng *rand.Rand) mgl32.Vec2 {
	angle := rng.Float64() * 2 * math.Pi
	return mgl32.Vec2{float32(math.Cos(angle)), float32(math.Sin(angle))}
}
