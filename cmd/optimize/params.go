package main

import (
	"github.com/pthm-cable/fluid/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable solver parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "stiffness", Path: "solver.stiffness", Min: 0.1, Max: 2.0, Default: 0.6},
			{Name: "near_stiffness_factor", Path: "solver.near_stiffness_factor", Min: 1.0, Max: 20.0, Default: 10.0},
			{Name: "linear_viscosity", Path: "solver.linear_viscosity", Min: 0.0, Max: 2.0, Default: 0.5},
			{Name: "quadratic_viscosity", Path: "solver.quadratic_viscosity", Min: 0.0, Max: 2.0, Default: 0.3},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into the solver section.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	cfg.Solver.Stiffness = clamped[0]
	cfg.Solver.NearStiffnessFactor = clamped[1]
	cfg.Solver.LinearViscosity = clamped[2]
	cfg.Solver.QuadraticViscosity = clamped[3]
}

// ApplyToScenario writes clamped parameter values into a scenario's parameters.
func (pv *ParamVector) ApplyToScenario(sc *config.Scenario, values []float64) {
	clamped := pv.Clamp(values)
	sc.Params.Stiffness = clamped[0]
	sc.Params.NearStiffness = clamped[0] * clamped[1]
	sc.Params.LinearViscosity = clamped[2]
	sc.Params.QuadraticViscosity = clamped[3]
}
