// Package systems provides the solver phases that operate on the particle store.
package systems

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fluid/components"
)

// ErrCellCapacity is returned when a grid cell cannot take another particle.
var ErrCellCapacity = errors.New("cell capacity exceeded")

// Grid is a fixed uniform grid of particle buckets covering the boundary box.
// One cell edge equals the kernel height, so a 3x3 scan finds every neighbor.
type Grid struct {
	cellSize float32
	invCell  float32
	cols     int
	rows     int
	half     mgl32.Vec2 // Shifts the centered boundary box to start at zero
	capacity int
	cells    [][]int32 // flat grid, row-major

	minCount int
	maxCount int
}

// NewGrid creates a cols x rows grid centered on the origin.
func NewGrid(cols, rows int, cellSize float32, halfWidth, halfHeight float32, cellCapacity int) *Grid {
	cells := make([][]int32, cols*rows)
	for i := range cells {
		cells[i] = make([]int32, 0, 8) // pre-allocate small capacity
	}

	g := &Grid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		half:     mgl32.Vec2{halfWidth, halfHeight},
		capacity: cellCapacity,
		cells:    cells,
	}
	if cellSize > 0 {
		g.invCell = 1 / cellSize
	}
	g.ResetOccupancy()
	return g
}

// Dims returns the number of columns and rows.
func (g *Grid) Dims() (cols, rows int) {
	return g.cols, g.rows
}

// CellSize returns the edge length of one cell.
func (g *Grid) CellSize() float32 {
	return g.cellSize
}

// CellIndexOf maps a world position to its cell, clamped to the grid.
// Positions outside the boundary land in the nearest edge cell.
func (g *Grid) CellIndexOf(pos mgl32.Vec2) components.CellIndex {
	x := int((pos[0] + g.half[0]) * g.invCell)
	y := int((pos[1] + g.half[1]) * g.invCell)
	return components.CellIndex{
		X: min(max(x, 0), g.cols-1),
		Y: min(max(y, 0), g.rows-1),
	}
}

// InBounds reports whether the cell coordinate lies inside the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.cols && y >= 0 && y < g.rows
}

// Cell returns the particle handles in a cell. The slice is owned by the grid.
func (g *Grid) Cell(c components.CellIndex) []int32 {
	return g.cells[g.offset(c.X, c.Y)]
}

// Full reports whether the cell has reached its capacity.
func (g *Grid) Full(c components.CellIndex) bool {
	return len(g.cells[g.offset(c.X, c.Y)]) >= g.capacity
}

func (g *Grid) offset(x, y int) int {
	return y*g.cols + x
}

// Insert puts particle i into the cell containing its current position.
func (g *Grid) Insert(p *components.Particles, i int) error {
	c := g.CellIndexOf(p.Cur[i])
	off := g.offset(c.X, c.Y)
	cell := g.cells[off]
	if len(cell) >= g.capacity {
		return fmt.Errorf("%w: cell (%d,%d) holds %d", ErrCellCapacity, c.X, c.Y, g.capacity)
	}

	p.IndexInCell[i] = len(cell)
	p.Cell[i] = c
	cell = append(cell, int32(i))
	g.cells[off] = cell

	g.track(len(cell))
	return nil
}

// Remove takes particle i out of its cell by swapping it with the cell's last entry.
func (g *Grid) Remove(p *components.Particles, i int) {
	slot := p.IndexInCell[i]
	if slot < 0 {
		return
	}
	c := p.Cell[i]
	off := g.offset(c.X, c.Y)
	cell := g.cells[off]

	last := len(cell) - 1
	if slot != last {
		moved := cell[last]
		cell[slot] = moved
		p.IndexInCell[moved] = slot
	}
	g.cells[off] = cell[:last]
	p.IndexInCell[i] = -1

	g.track(last)
}

// Update moves every particle whose position left its cell.
// A particle whose target cell is full stays where it is; the first such
// overflow is returned after all particles were processed.
func (g *Grid) Update(p *components.Particles) error {
	var err error
	overflows := 0
	for i := range p.Cur {
		c := g.CellIndexOf(p.Cur[i])
		if c == p.Cell[i] && p.IndexInCell[i] >= 0 {
			continue
		}
		if g.Full(c) {
			overflows++
			if err == nil {
				err = fmt.Errorf("%w: cell (%d,%d) holds %d", ErrCellCapacity, c.X, c.Y, g.capacity)
			}
			continue
		}
		g.Remove(p, i)
		// Cannot fail: capacity was checked above.
		_ = g.Insert(p, i)
	}
	if overflows > 1 {
		err = fmt.Errorf("%w (%d particles kept in their old cell)", err, overflows)
	}
	return err
}

// Clear empties every cell.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Occupancy returns the smallest and largest cell counts seen since the last reset.
func (g *Grid) Occupancy() (minCount, maxCount int) {
	return g.minCount, g.maxCount
}

// ResetOccupancy restarts occupancy tracking.
func (g *Grid) ResetOccupancy() {
	g.minCount = g.capacity
	g.maxCount = 0
}

func (g *Grid) track(count int) {
	g.minCount = min(g.minCount, count)
	g.maxCount = max(g.maxCount, count)
}
