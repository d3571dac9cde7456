package systems

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fluid/components"
)

func newTestGrid(capacity int) *Grid {
	return NewGrid(33, 18, 0.3, 5, 2.8125, capacity)
}

func TestCellIndexOf(t *testing.T) {
	g := newTestGrid(500)
	tests := []struct {
		name string
		pos  mgl32.Vec2
		want components.CellIndex
	}{
		{"origin", mgl32.Vec2{0, 0}, components.CellIndex{X: 16, Y: 9}},
		{"bottom left corner", mgl32.Vec2{-4.9, -2.8}, components.CellIndex{X: 0, Y: 0}},
		{"top right corner", mgl32.Vec2{4.99, 2.8}, components.CellIndex{X: 32, Y: 17}},
		{"far outside low", mgl32.Vec2{-100, -100}, components.CellIndex{X: 0, Y: 0}},
		{"far outside high", mgl32.Vec2{100, 100}, components.CellIndex{X: 32, Y: 17}},
		{"first cell edge", mgl32.Vec2{-4.65, -2.45}, components.CellIndex{X: 1, Y: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.CellIndexOf(tt.pos)
			if got != tt.want {
				t.Errorf("CellIndexOf(%v) = %v, want %v", tt.pos, got, tt.want)
			}
		})
	}
}

func TestGridInsertRemoveRoundTrip(t *testing.T) {
	g := newTestGrid(500)
	p := components.NewParticles(8)
	for _, pos := range []mgl32.Vec2{{0, 0}, {0.01, 0.01}, {0.02, 0.02}} {
		i := p.Add(pos, mgl32.Vec2{})
		if err := g.Insert(p, i); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	c := g.CellIndexOf(mgl32.Vec2{0, 0})
	before := slices.Clone(g.Cell(c))

	i := p.Add(mgl32.Vec2{0.03, 0.03}, mgl32.Vec2{})
	if err := g.Insert(p, i); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(g.Cell(c)) != len(before)+1 {
		t.Fatalf("cell count = %d, want %d", len(g.Cell(c)), len(before)+1)
	}
	g.Remove(p, i)

	if !slices.Equal(g.Cell(c), before) {
		t.Errorf("cell after round trip = %v, want %v", g.Cell(c), before)
	}
	if p.IndexInCell[i] != -1 {
		t.Errorf("IndexInCell = %d, want -1", p.IndexInCell[i])
	}
}

func TestGridRemoveSwapsLast(t *testing.T) {
	g := newTestGrid(500)
	p := components.NewParticles(4)
	for range 3 {
		i := p.Add(mgl32.Vec2{0, 0}, mgl32.Vec2{})
		if err := g.Insert(p, i); err != nil {
			t.Fatal(err)
		}
	}

	g.Remove(p, 0)
	cell := g.Cell(p.Cell[1])
	if !slices.Equal(cell, []int32{2, 1}) {
		t.Fatalf("cell = %v, want [2 1]", cell)
	}
	for slot, idx := range cell {
		if p.IndexInCell[idx] != slot {
			t.Errorf("particle %d IndexInCell = %d, want %d", idx, p.IndexInCell[idx], slot)
		}
	}
}

func TestGridUpdateKeepsInvariant(t *testing.T) {
	g := newTestGrid(500)
	p := components.NewParticles(64)
	for i := range 50 {
		idx := p.Add(mgl32.Vec2{-4 + float32(i)*0.15, -2 + float32(i%7)*0.5}, mgl32.Vec2{})
		if err := g.Insert(p, idx); err != nil {
			t.Fatal(err)
		}
	}

	// Move everything, some particles leave the boundary.
	for i := range p.Cur {
		p.Cur[i] = p.Cur[i].Add(mgl32.Vec2{0.7, -0.45})
	}
	if err := g.Update(p); err != nil {
		t.Fatalf("Update: %v", err)
	}

	total := 0
	cols, rows := g.Dims()
	for y := range rows {
		for x := range cols {
			total += len(g.Cell(components.CellIndex{X: x, Y: y}))
		}
	}
	if total != p.Len() {
		t.Errorf("grid holds %d particles, want %d", total, p.Len())
	}
	for i := range p.Cur {
		if want := g.CellIndexOf(p.Cur[i]); p.Cell[i] != want {
			t.Errorf("particle %d cell = %v, want %v", i, p.Cell[i], want)
		}
		if g.Cell(p.Cell[i])[p.IndexInCell[i]] != int32(i) {
			t.Errorf("particle %d not at its slot", i)
		}
	}
}

func TestGridCapacity(t *testing.T) {
	g := newTestGrid(2)
	p := components.NewParticles(4)
	for range 2 {
		i := p.Add(mgl32.Vec2{0, 0}, mgl32.Vec2{})
		if err := g.Insert(p, i); err != nil {
			t.Fatal(err)
		}
	}
	i := p.Add(mgl32.Vec2{0, 0}, mgl32.Vec2{})
	if err := g.Insert(p, i); !errors.Is(err, ErrCellCapacity) {
		t.Errorf("Insert into full cell = %v, want ErrCellCapacity", err)
	}

	// A particle moving into the full cell stays where it was.
	j := p.Add(mgl32.Vec2{1, 1}, mgl32.Vec2{})
	if err := g.Insert(p, j); err != nil {
		t.Fatal(err)
	}
	old := p.Cell[j]
	p.Cur[j] = mgl32.Vec2{0, 0}
	if err := g.Update(p); !errors.Is(err, ErrCellCapacity) {
		t.Errorf("Update = %v, want ErrCellCapacity", err)
	}
	if p.Cell[j] != old {
		t.Errorf("overflowing particle moved to %v, want %v", p.Cell[j], old)
	}

	minCount, maxCount := g.Occupancy()
	if maxCount != 2 || minCount != 1 {
		t.Errorf("Occupancy() = %d, %d, want 1, 2", minCount, maxCount)
	}
}
