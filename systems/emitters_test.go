package systems

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/fluid/components"
)

func newTestEmitters(capacity int) *EmitterSystem {
	return NewEmitterSystem(ecs.NewWorld(), capacity, rand.New(rand.NewSource(1)))
}

func TestEmitterRateAndDuration(t *testing.T) {
	s := newTestEmitters(8)
	err := s.Add(components.EmitterSource{
		Position:  mgl32.Vec2{0, 0},
		Direction: mgl32.Vec2{1, 0},
		Radius:    1,
		Speed:     2.5,
		Rate:      15,
		Duration:  1,
	})
	if err != nil {
		t.Fatal(err)
	}

	dt := float32(1.0 / 60)
	spawnEvents := 0
	rows := 0
	deactivations := 0
	lastRowFrame := -1
	spawn := func(pos, acc mgl32.Vec2) error {
		spawnEvents++
		return nil
	}

	for frame := range 180 {
		res, err := s.Update(dt, 0.25, 0.003, spawn)
		if err != nil {
			t.Fatal(err)
		}
		if res.Rows > 0 {
			lastRowFrame = frame
		}
		rows += res.Rows
		deactivations += res.Deactivated
	}

	if rows < 14 || rows > 16 {
		t.Errorf("rows = %d, want about 15", rows)
	}
	if spawnEvents != rows*4 {
		t.Errorf("spawned %d particles, want %d rows of 4", spawnEvents, rows)
	}
	if deactivations != 1 {
		t.Errorf("deactivated %d times, want exactly once", deactivations)
	}
	if lastRowFrame > 61 {
		t.Errorf("row emitted at frame %d after the duration ended", lastRowFrame)
	}

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Active {
		t.Errorf("snapshot = %+v, want one inactive emitter", snap)
	}
	if snap[0].Rows != rows {
		t.Errorf("snapshot rows = %d, want %d", snap[0].Rows, rows)
	}
}

func TestEmitterRowGeometry(t *testing.T) {
	s := newTestEmitters(8)
	if err := s.Add(components.EmitterSource{
		Position:  mgl32.Vec2{1, 2},
		Direction: mgl32.Vec2{0, 3}, // normalized on add
		Radius:    0.4,
		Speed:     6,
		Rate:      100,
		Duration:  10,
	}); err != nil {
		t.Fatal(err)
	}

	var positions, accels []mgl32.Vec2
	dt := float32(0.02)
	_, err := s.Update(dt, 0.1, 0, func(pos, acc mgl32.Vec2) error {
		positions = append(positions, pos)
		accels = append(accels, acc)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// floor(0.4 / 0.1) = 4 particles along the left perpendicular (-1, 0).
	want := []mgl32.Vec2{{1.15, 2}, {1.05, 2}, {0.95, 2}, {0.85, 2}}
	if len(positions) != len(want) {
		t.Fatalf("spawned %d particles, want %d", len(positions), len(want))
	}
	for i := range want {
		if !vecApprox(positions[i], want[i], 1e-5) {
			t.Errorf("particle %d at %v, want %v", i, positions[i], want[i])
		}
		if !vecApprox(accels[i], mgl32.Vec2{0, 300}, 1e-2) {
			t.Errorf("particle %d acceleration %v, want (0, 300)", i, accels[i])
		}
	}
}

func TestEmitterCapacityAndClear(t *testing.T) {
	s := newTestEmitters(2)
	src := components.EmitterSource{Direction: mgl32.Vec2{1, 0}, Rate: 1, Duration: 1}
	for range 2 {
		if err := s.Add(src); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Add(src); !errors.Is(err, ErrEmitterCapacity) {
		t.Errorf("Add beyond capacity = %v, want ErrEmitterCapacity", err)
	}

	s.Clear()
	if s.Len() != 0 || len(s.Snapshot()) != 0 {
		t.Errorf("after Clear: Len = %d, snapshot = %d", s.Len(), len(s.Snapshot()))
	}
	if err := s.Add(src); err != nil {
		t.Errorf("Add after Clear: %v", err)
	}
	if snap := s.Snapshot(); len(snap) != 1 || snap[0].Order != 0 {
		t.Errorf("snapshot after re-add = %+v", snap)
	}
}

func TestEmitterStopsOnSpawnError(t *testing.T) {
	s := newTestEmitters(8)
	if err := s.Add(components.EmitterSource{
		Direction: mgl32.Vec2{1, 0}, Radius: 1, Speed: 1, Rate: 1000, Duration: 5,
	}); err != nil {
		t.Fatal(err)
	}
	full := errors.New("full")
	calls := 0
	res, err := s.Update(0.01, 0.1, 0, func(pos, acc mgl32.Vec2) error {
		calls++
		if calls == 3 {
			return full
		}
		return nil
	})
	if !errors.Is(err, full) {
		t.Fatalf("Update error = %v, want spawn error", err)
	}
	if res.Particles != 2 {
		t.Errorf("Particles = %d, want 2", res.Particles)
	}
}

func TestEmitterSpawnErrorKeepsOthersRunning(t *testing.T) {
	s := newTestEmitters(8)
	for _, y := range []float32{0, 1} {
		if err := s.Add(components.EmitterSource{
			Position: mgl32.Vec2{0, y}, Direction: mgl32.Vec2{1, 0},
			Radius: 0.3, Speed: 1, Rate: 100, Duration: 0.045,
		}); err != nil {
			t.Fatal(err)
		}
	}

	full := errors.New("full")
	var spawnedAt []mgl32.Vec2
	spawn := func(pos, acc mgl32.Vec2) error {
		// The first emitter sits at y=0 and is always refused.
		if pos[1] < 0.5 {
			return full
		}
		spawnedAt = append(spawnedAt, pos)
		return nil
	}

	steps := 0
	for ; steps < 20; steps++ {
		res, err := s.Update(0.01, 0.1, 0, spawn)
		if !errors.Is(err, full) {
			t.Fatalf("step %d: Update error = %v, want spawn error", steps, err)
		}
		if res.Deactivated == 2 {
			break
		}
	}
	if steps != 4 {
		t.Errorf("both emitters deactivated after %d steps, want 4", steps)
	}

	snap := s.Snapshot()
	for i, e := range snap {
		if e.Active {
			t.Errorf("emitter %d still active", i)
		}
		if e.Rows != 5 {
			t.Errorf("emitter %d rows = %d, want 5", i, e.Rows)
		}
	}
	if len(spawnedAt) != 15 {
		t.Errorf("spawned %d particles from the second emitter, want 15", len(spawnedAt))
	}
}
