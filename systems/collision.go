package systems

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fluid/components"
)

// collisionEpsilon is the float32 machine epsilon.
const collisionEpsilon = 1.1920929e-7

// upNormal is used when a particle sits exactly on a circle center.
var upNormal = mgl32.Vec2{0, 1}

// Collider resolves particle positions against static bodies.
// Radius is the particle collision radius; Margin widens segments and
// polygons slightly so resting particles do not jitter on their edges.
type Collider struct {
	Radius float32
	Margin float32
}

// Solve returns pos pushed out of body b.
func (c Collider) Solve(pos mgl32.Vec2, b *components.Body) mgl32.Vec2 {
	switch b.Kind {
	case components.KindPlane:
		return c.SolvePlane(pos, b.Normal, b.Distance)
	case components.KindCircle:
		return c.SolveCircle(pos, b.Center, b.Radius)
	case components.KindLineSegment:
		return c.SolveLineSegment(pos, b.A, b.B)
	case components.KindPolygon:
		if mtv, ok := c.PolygonMTV(pos, b.Vertices()); ok {
			return pos.Add(mtv)
		}
	}
	return pos
}

// SolveAll resolves every particle against every body in registration order.
func (c Collider) SolveAll(p *components.Particles, bodies []components.Body) {
	if len(bodies) == 0 {
		return
	}
	for i := range p.Cur {
		pos := p.Cur[i]
		for b := range bodies {
			pos = c.Solve(pos, &bodies[b])
		}
		p.Cur[i] = pos
	}
}

// SolvePlane keeps pos at least Radius on the normal side of the plane.
func (c Collider) SolvePlane(pos, normal mgl32.Vec2, distance float32) mgl32.Vec2 {
	origin := normal.Mul(distance)
	proj := pos.Sub(origin).Dot(normal)
	if proj <= c.Radius {
		pos = pos.Add(normal.Mul(c.Radius - proj))
	}
	return pos
}

// SolveCircle keeps pos outside the circle grown by Radius.
func (c Collider) SolveCircle(pos, center mgl32.Vec2, radius float32) mgl32.Vec2 {
	both := radius + c.Radius
	delta := pos.Sub(center)
	d2 := delta.Dot(delta)
	if d2 > both*both {
		return pos
	}
	if d2 == 0 {
		return pos.Add(upNormal.Mul(both))
	}
	d := float32(math.Sqrt(float64(d2)))
	return pos.Add(delta.Mul((both - d) / d))
}

// SolveLineSegment keeps pos outside the capsule around segment ab.
func (c Collider) SolveLineSegment(pos, a, b mgl32.Vec2) mgl32.Vec2 {
	both := c.Margin + c.Radius
	e := b.Sub(a)
	u := e.Dot(b.Sub(pos))
	v := e.Dot(pos.Sub(a))

	var closest, normal mgl32.Vec2
	switch {
	case v <= 0: // beyond a
		closest = a
		d := pos.Sub(closest)
		if d.Dot(d) > both*both {
			return pos
		}
		normal = components.SafeNormalize(d)
	case u <= 0: // beyond b
		closest = b
		d := pos.Sub(closest)
		if d.Dot(d) > both*both {
			return pos
		}
		normal = components.SafeNormalize(d)
	default:
		den := e.Dot(e)
		closest = a.Mul(u).Add(b.Mul(v)).Mul(1 / den)
		d := pos.Sub(closest)
		if d.Dot(d) > both*both {
			return pos
		}
		normal = mgl32.Vec2{-e[1], e[0]}
		if normal.Dot(pos.Sub(a)) < 0 {
			normal = normal.Mul(-1)
		}
		normal = components.SafeNormalize(normal)
	}

	dist := normal.Dot(pos.Sub(closest))
	return pos.Add(normal.Mul(both - dist))
}

// PolygonMTV returns the translation that moves a particle at pos out of the
// convex counter-clockwise polygon verts, or ok=false if they do not touch.
func (c Collider) PolygonMTV(pos mgl32.Vec2, verts []mgl32.Vec2) (mtv mgl32.Vec2, ok bool) {
	if len(verts) < 3 {
		return mtv, false
	}
	radius := c.Margin + c.Radius

	edge := 0
	var normal mgl32.Vec2
	separation := float32(-math.MaxFloat32)
	for i, a := range verts {
		b := verts[(i+1)%len(verts)]
		e := b.Sub(a)
		n := components.SafeNormalize(mgl32.Vec2{e[1], -e[0]})
		s := n.Dot(pos.Sub(a))
		if s > radius {
			return mtv, false
		}
		if s > separation {
			separation = s
			normal = n
			edge = i
		}
	}

	v1 := verts[edge]
	v2 := verts[(edge+1)%len(verts)]

	// Center inside the polygon.
	if separation < collisionEpsilon {
		return normal.Mul(radius - separation), true
	}

	u1 := pos.Sub(v1).Dot(v2.Sub(v1))
	u2 := pos.Sub(v2).Dot(v1.Sub(v2))
	switch {
	case u1 <= 0:
		return vertexMTV(pos, v1, radius)
	case u2 <= 0:
		return vertexMTV(pos, v2, radius)
	default:
		face := v1.Add(v2).Mul(0.5)
		s := pos.Sub(face).Dot(normal)
		if s > radius {
			return mtv, false
		}
		return normal.Mul(radius - s), true
	}
}

func vertexMTV(pos, v mgl32.Vec2, radius float32) (mgl32.Vec2, bool) {
	d := pos.Sub(v)
	if d.Dot(d) > radius*radius {
		return mgl32.Vec2{}, false
	}
	n := components.SafeNormalize(d)
	return n.Mul(radius - n.Dot(d)), true
}
