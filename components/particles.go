package components

import "github.com/go-gl/mathgl/mgl32"

// CellIndex is a clamped grid cell coordinate.
type CellIndex struct {
	X, Y int
}

// Particles is the particle store as parallel slices indexed by particle handle.
// Handles are dense and stable until Reset.
type Particles struct {
	Cur  []mgl32.Vec2 // Position after the current substep
	Prev []mgl32.Vec2 // Position at the start of the substep
	Vel  []mgl32.Vec2
	Acc  []mgl32.Vec2 // Cleared by integration

	Density      []float32
	NearDensity  []float32
	Pressure     []float32
	NearPressure []float32

	Cell        []CellIndex
	IndexInCell []int // Slot inside the owning cell, -1 when not gridded

	Neighbors [][]int32
}

// NewParticles preallocates room for capacity particles.
func NewParticles(capacity int) *Particles {
	return &Particles{
		Cur:          make([]mgl32.Vec2, 0, capacity),
		Prev:         make([]mgl32.Vec2, 0, capacity),
		Vel:          make([]mgl32.Vec2, 0, capacity),
		Acc:          make([]mgl32.Vec2, 0, capacity),
		Density:      make([]float32, 0, capacity),
		NearDensity:  make([]float32, 0, capacity),
		Pressure:     make([]float32, 0, capacity),
		NearPressure: make([]float32, 0, capacity),
		Cell:         make([]CellIndex, 0, capacity),
		IndexInCell:  make([]int, 0, capacity),
		Neighbors:    make([][]int32, 0, capacity),
	}
}

// Len returns the number of live particles.
func (p *Particles) Len() int {
	return len(p.Cur)
}

// Add appends a particle at rest and returns its handle.
// The caller is responsible for capacity checks and gridding.
func (p *Particles) Add(pos, acc mgl32.Vec2) int {
	idx := len(p.Cur)
	p.Cur = append(p.Cur, pos)
	p.Prev = append(p.Prev, pos)
	p.Vel = append(p.Vel, mgl32.Vec2{})
	p.Acc = append(p.Acc, acc)
	p.Density = append(p.Density, 0)
	p.NearDensity = append(p.NearDensity, 0)
	p.Pressure = append(p.Pressure, 0)
	p.NearPressure = append(p.NearPressure, 0)
	p.Cell = append(p.Cell, CellIndex{})
	p.IndexInCell = append(p.IndexInCell, -1)

	// Reuse a neighbor buffer left behind by a previous Reset.
	if idx < cap(p.Neighbors) {
		p.Neighbors = p.Neighbors[:idx+1]
		p.Neighbors[idx] = p.Neighbors[idx][:0]
	} else {
		p.Neighbors = append(p.Neighbors, make([]int32, 0, 16))
	}
	return idx
}

// Reset drops every particle but keeps the allocations.
func (p *Particles) Reset() {
	p.Cur = p.Cur[:0]
	p.Prev = p.Prev[:0]
	p.Vel = p.Vel[:0]
	p.Acc = p.Acc[:0]
	p.Density = p.Density[:0]
	p.NearDensity = p.NearDensity[:0]
	p.Pressure = p.Pressure[:0]
	p.NearPressure = p.NearPressure[:0]
	p.Cell = p.Cell[:0]
	p.IndexInCell = p.IndexInCell[:0]
	p.Neighbors = p.Neighbors[:0]
}
