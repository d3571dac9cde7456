package components

// Params are the SPH parameters of the running scenario.
type Params struct {
	KernelHeight       float32
	InvKernelHeight    float32 // 0 when KernelHeight is 0
	KernelHeightSq     float32
	RestDensity        float32
	Stiffness          float32
	NearStiffness      float32
	LinearViscosity    float32
	QuadraticViscosity float32
	ParticleSpacing    float32
}

// NewParams fills the derived kernel terms.
func NewParams(kernelHeight, spacing, restDensity, stiffness, nearStiffness, linearVisc, quadraticVisc float32) Params {
	p := Params{
		KernelHeight:       kernelHeight,
		RestDensity:        restDensity,
		Stiffness:          stiffness,
		NearStiffness:      nearStiffness,
		LinearViscosity:    linearVisc,
		QuadraticViscosity: quadraticVisc,
		ParticleSpacing:    spacing,
	}
	p.Normalize()
	return p
}

// Normalize recomputes the derived kernel terms after KernelHeight changed.
func (p *Params) Normalize() {
	p.KernelHeightSq = p.KernelHeight * p.KernelHeight
	if p.KernelHeight > 0 {
		p.InvKernelHeight = 1 / p.KernelHeight
	} else {
		p.InvKernelHeight = 0
	}
}
