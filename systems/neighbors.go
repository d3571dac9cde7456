package systems

import (
	"errors"

	"github.com/pthm-cable/fluid/components"
)

// ErrNeighborCapacity is returned when a particle finds more candidates than its neighbor list holds.
var ErrNeighborCapacity = errors.New("neighbor capacity exceeded")

// NeighborSearch rebuilds the neighbor lists of particles [start, end) from the
// 3x3 block of cells around each particle's cell. Every particle in those cells is
// collected, including the particle itself; distance checks happen in the SPH phases.
// Candidates beyond maxNeighbors are dropped and counted in the returned overflow.
func NeighborSearch(g *Grid, p *components.Particles, start, end, maxNeighbors int) (overflow int) {
	for i := start; i < end; i++ {
		list := p.Neighbors[i][:0]
		c := p.Cell[i]
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				x, y := c.X+dx, c.Y+dy
				if !g.InBounds(x, y) {
					continue
				}
				cell := g.cells[g.offset(x, y)]
				room := maxNeighbors - len(list)
				if len(cell) > room {
					overflow += len(cell) - room
					cell = cell[:room]
				}
				list = append(list, cell...)
			}
		}
		p.Neighbors[i] = list
	}
	return overflow
}

// NeighborRange returns the smallest and largest neighbor list length.
func NeighborRange(p *components.Particles, maxNeighbors int) (minCount, maxCount int) {
	minCount = maxNeighbors
	for _, list := range p.Neighbors {
		minCount = min(minCount, len(list))
		maxCount = max(maxCount, len(list))
	}
	if len(p.Neighbors) == 0 {
		minCount = 0
	}
	return minCount, maxCount
}
