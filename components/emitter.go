package components

import "github.com/go-gl/mathgl/mgl32"

// EmitterSource is the fixed description of a particle emitter.
type EmitterSource struct {
	Position  mgl32.Vec2
	Direction mgl32.Vec2 // Unit length
	Radius    float32    // Length of one emitted row
	Speed     float32
	Rate      float32 // Rows per second
	Duration  float32 // Seconds
}

// EmitterClock is the mutable per-frame state of an emitter.
type EmitterClock struct {
	Elapsed      float32 // Since the last row
	TotalElapsed float32
	Active       bool
	Rows         int // Rows emitted so far
	Order        int // Registration order
}

// Emitter is a snapshot of both emitter components.
type Emitter struct {
	EmitterSource
	EmitterClock
}
