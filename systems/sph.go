package systems

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/fluid/components"
)

// The solver uses double-density relaxation with the linear weight
// term = 1 - r/h. Pairs at or beyond the kernel height are skipped.

// Integrate applies acceleration, gravity and the external force to velocity,
// then clears the acceleration accumulator.
func Integrate(p *components.Particles, gravity, external mgl32.Vec2, dt float32) {
	global := gravity.Add(external)
	for i := range p.Vel {
		a := p.Acc[i].Add(global)
		p.Vel[i] = p.Vel[i].Add(a.Mul(dt))
		p.Acc[i] = mgl32.Vec2{}
	}
}

// Predict stores the current position and advances it by velocity.
func Predict(p *components.Particles, dt float32) {
	for i := range p.Cur {
		p.Prev[i] = p.Cur[i]
		p.Cur[i] = p.Cur[i].Add(p.Vel[i].Mul(dt))
	}
}

// ReconstructVelocity derives velocity from the corrected displacement.
func ReconstructVelocity(p *components.Particles, dt float32) {
	if dt == 0 {
		return
	}
	inv := 1 / dt
	for i := range p.Vel {
		p.Vel[i] = p.Cur[i].Sub(p.Prev[i]).Mul(inv)
	}
}

// pairTerm returns the unit separation from a to b and 1 - r/h, or ok=false
// when the pair is outside the kernel.
func pairTerm(a, b mgl32.Vec2, params *components.Params) (n mgl32.Vec2, term float32, ok bool) {
	rij := b.Sub(a)
	r2 := rij.Dot(rij)
	if r2 >= params.KernelHeightSq {
		return n, 0, false
	}
	r := float32(math.Sqrt(float64(r2)))
	if r > 0 {
		n = rij.Mul(1 / r)
	}
	return n, 1 - r*params.InvKernelHeight, true
}

// DensityAndPressure computes density, near density and both pressures for [start, end).
func DensityAndPressure(p *components.Particles, params *components.Params, start, end int) {
	for i := start; i < end; i++ {
		pos := p.Cur[i]
		var density, near float32
		for _, j := range p.Neighbors[i] {
			_, term, ok := pairTerm(pos, p.Cur[j], params)
			if !ok {
				continue
			}
			t2 := term * term
			density += t2
			near += t2 * term
		}
		p.Density[i] = density
		p.NearDensity[i] = near
		p.Pressure[i] = params.Stiffness * (density - params.RestDensity)
		p.NearPressure[i] = params.NearStiffness * near
	}
}

// ViscosityImpulses accumulates the pairwise viscosity velocity change of
// particles [start, end) and their neighbors into acc, laid out as x,y pairs.
// State is read only; the caller adds acc to the velocities.
func ViscosityImpulses(p *components.Particles, params *components.Params, start, end int, dt float32, acc []float32) {
	half := 0.5 * dt
	for i := start; i < end; i++ {
		pos, vel := p.Cur[i], p.Vel[i]
		var self mgl32.Vec2
		for _, j := range p.Neighbors[i] {
			n, term, ok := pairTerm(pos, p.Cur[j], params)
			if !ok {
				continue
			}
			u := vel.Sub(p.Vel[j]).Dot(n)
			if u <= 0 {
				continue
			}
			f := term * (params.LinearViscosity*u + params.QuadraticViscosity*u*u)
			impulse := n.Mul(f * half)
			self = self.Sub(impulse)
			acc[2*j] += impulse[0]
			acc[2*j+1] += impulse[1]
		}
		acc[2*i] += self[0]
		acc[2*i+1] += self[1]
	}
}

// DeltaPositions accumulates the pairwise relaxation displacement of particles
// [start, end) and their neighbors into acc, laid out as x,y pairs.
func DeltaPositions(p *components.Particles, params *components.Params, start, end int, dt float32, acc []float32) {
	dt2 := dt * dt
	for i := start; i < end; i++ {
		pos := p.Cur[i]
		pressure, nearPressure := p.Pressure[i], p.NearPressure[i]
		var self mgl32.Vec2
		for _, j := range p.Neighbors[i] {
			n, term, ok := pairTerm(pos, p.Cur[j], params)
			if !ok {
				continue
			}
			d := dt2 * (pressure*term + nearPressure*term*term) * 0.5
			delta := n.Mul(d)
			self = self.Sub(delta)
			acc[2*j] += delta[0]
			acc[2*j+1] += delta[1]
		}
		acc[2*i] += self[0]
		acc[2*i+1] += self[1]
	}
}

// ApplyAccumulated adds an x,y accumulation buffer to dst.
func ApplyAccumulated(dst []mgl32.Vec2, acc []float32) {
	for i := range dst {
		dst[i][0] += acc[2*i]
		dst[i][1] += acc[2*i+1]
	}
}
