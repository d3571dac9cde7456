package components

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxPolygonVertices is the fixed vertex storage of a polygon body.
const MaxPolygonVertices = 8

// ErrPolygonVertexCount is returned for polygons outside [3, MaxPolygonVertices] vertices.
var ErrPolygonVertexCount = errors.New("polygon vertex count out of range")

// BodyKind selects the active variant of a Body.
type BodyKind uint8

const (
	KindPlane BodyKind = iota
	KindCircle
	KindLineSegment
	KindPolygon
)

func (k BodyKind) String() string {
	switch k {
	case KindPlane:
		return "plane"
	case KindCircle:
		return "circle"
	case KindLineSegment:
		return "segment"
	case KindPolygon:
		return "polygon"
	}
	return fmt.Sprintf("BodyKind(%d)", uint8(k))
}

// Body is a static collider. Only the fields of the active Kind are meaningful:
//
//	KindPlane:       Normal, Distance (points p with dot(p, Normal) == Distance)
//	KindCircle:      Center, Radius
//	KindLineSegment: A, B
//	KindPolygon:     Verts[:NumVerts], convex, counter-clockwise
type Body struct {
	Kind BodyKind

	Normal   mgl32.Vec2
	Distance float32

	Center mgl32.Vec2
	Radius float32

	A, B mgl32.Vec2

	Verts    [MaxPolygonVertices]mgl32.Vec2
	NumVerts int
}

// NewPlane returns a plane body. The normal is normalized.
func NewPlane(normal mgl32.Vec2, distance float32) Body {
	return Body{Kind: KindPlane, Normal: SafeNormalize(normal), Distance: distance}
}

// NewPlaneThrough returns the plane with the given normal passing through point.
func NewPlaneThrough(point, normal mgl32.Vec2) Body {
	n := SafeNormalize(normal)
	return Body{Kind: KindPlane, Normal: n, Distance: n.Dot(point)}
}

func NewCircle(center mgl32.Vec2, radius float32) Body {
	return Body{Kind: KindCircle, Center: center, Radius: radius}
}

func NewLineSegment(a, b mgl32.Vec2) Body {
	return Body{Kind: KindLineSegment, A: a, B: b}
}

// NewPolygon copies verts into a polygon body.
func NewPolygon(verts []mgl32.Vec2) (Body, error) {
	if len(verts) < 3 || len(verts) > MaxPolygonVertices {
		return Body{}, fmt.Errorf("%w: got %d, want 3..%d", ErrPolygonVertexCount, len(verts), MaxPolygonVertices)
	}
	b := Body{Kind: KindPolygon, NumVerts: len(verts)}
	copy(b.Verts[:], verts)
	return b, nil
}

// NewBox returns a rectangle polygon centered on center, rotated by angle radians.
func NewBox(center, extent mgl32.Vec2, angle float32) Body {
	local := [4]mgl32.Vec2{
		{extent[0], extent[1]},
		{-extent[0], extent[1]},
		{-extent[0], -extent[1]},
		{extent[0], -extent[1]},
	}
	b := Body{Kind: KindPolygon, NumVerts: 4}
	for i, v := range local {
		b.Verts[i] = Transform(v, center, angle)
	}
	return b
}

// Vertices returns the polygon vertices, or nil for other kinds.
func (b *Body) Vertices() []mgl32.Vec2 {
	if b.Kind != KindPolygon {
		return nil
	}
	return b.Verts[:b.NumVerts]
}

// Transform rotates a local point by angle radians and translates it by position.
func Transform(local, position mgl32.Vec2, angle float32) mgl32.Vec2 {
	return mgl32.Rotate2D(angle).Mul2x1(local).Add(position)
}

// SafeNormalize returns v scaled to unit length, or the zero vector if v has no length.
func SafeNormalize(v mgl32.Vec2) mgl32.Vec2 {
	l := v.Len()
	if l == 0 {
		return mgl32.Vec2{}
	}
	return v.Mul(1 / l)
}
