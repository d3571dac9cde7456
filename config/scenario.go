package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var scenariosYAML []byte

// ErrInvalidScenario is returned when scenario data fails validation.
var ErrInvalidScenario = errors.New("invalid scenario")

// Body types understood by BodySpec.Type.
const (
	BodyPlane   = "plane"
	BodyCircle  = "circle"
	BodySegment = "segment"
	BodyPolygon = "polygon"
	BodyBox     = "box"
)

// Vec2 is a 2D value in scenario files, written as {x: 1, y: 2}.
type Vec2 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Scenario is one named setup: gravity, particle volumes, static bodies, emitters
// and the SPH parameters to run it with.
type Scenario struct {
	Name     string        `yaml:"name"`
	Gravity  Vec2          `yaml:"gravity"`
	Volumes  []VolumeSpec  `yaml:"volumes"`
	Bodies   []BodySpec    `yaml:"bodies"`
	Emitters []EmitterSpec `yaml:"emitters"`
	Params   ParamsSpec    `yaml:"params"`
}

// VolumeSpec is a rectangle filled with particles at the scenario spacing.
type VolumeSpec struct {
	Position Vec2 `yaml:"position"` // Center
	Size     Vec2 `yaml:"size"`
	Force    Vec2 `yaml:"force"` // Initial acceleration
}

// BodySpec describes a static body in local space.
// Planes use Position and Normal; circles Position and Radius; boxes Position,
// Rotation and Extent; segments and polygons Position, Rotation and Vertices.
type BodySpec struct {
	Type     string  `yaml:"type"`
	Position Vec2    `yaml:"position"`
	Rotation float64 `yaml:"rotation"` // Degrees, counter-clockwise
	Normal   Vec2    `yaml:"normal,omitempty"`
	Radius   float64 `yaml:"radius,omitempty"`
	Extent   Vec2    `yaml:"extent,omitempty"` // Box half extents
	Vertices []Vec2  `yaml:"vertices,omitempty"`
}

// EmitterSpec describes a time-limited particle source.
type EmitterSpec struct {
	Position  Vec2    `yaml:"position"`
	Direction Vec2    `yaml:"direction"`
	Radius    float64 `yaml:"radius"`   // Length of one emitted row
	Speed     float64 `yaml:"speed"`    // Initial speed
	Rate      float64 `yaml:"rate"`     // Rows per second
	Duration  float64 `yaml:"duration"` // Seconds
}

// ParamsSpec holds the SPH parameters of a scenario.
type ParamsSpec struct {
	KernelHeight       float64 `yaml:"kernel_height"` // 0 = configured kernel height
	ParticleSpacing    float64 `yaml:"particle_spacing"`
	RestDensity        float64 `yaml:"rest_density"`
	Stiffness          float64 `yaml:"stiffness"`
	NearStiffness      float64 `yaml:"near_stiffness"`
	LinearViscosity    float64 `yaml:"linear_viscosity"`
	QuadraticViscosity float64 `yaml:"quadratic_viscosity"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a scenario table from a YAML file, or the embedded table if path is empty.
func LoadScenarios(path string) ([]Scenario, error) {
	data := scenariosYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading scenario file: %w", err)
		}
	}

	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: scenario file has no scenarios", ErrInvalidScenario)
	}
	return file.Scenarios, nil
}

// FindScenario returns the scenario with the given name.
func FindScenario(scenarios []Scenario, name string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Validate checks the scenario against the configured limits and grid.
func (s *Scenario) Validate(cfg *Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w %q: %s", ErrInvalidScenario, s.Name, fmt.Sprintf(format, args...))
	}

	p := s.Params
	if p.RestDensity <= 0 {
		return invalid("rest density must be positive, got %v", p.RestDensity)
	}
	if p.ParticleSpacing <= 0 {
		return invalid("particle spacing must be positive, got %v", p.ParticleSpacing)
	}
	if p.KernelHeight < 0 {
		return invalid("kernel height must not be negative, got %v", p.KernelHeight)
	}
	// Neighbor search scans one ring of cells, so the kernel must fit in a cell.
	if float32(p.KernelHeight) > cfg.Derived.CellSize {
		return invalid("kernel height %v exceeds grid cell size %v", p.KernelHeight, cfg.Derived.CellSize)
	}

	if len(s.Bodies) > cfg.Limits.MaxBodies {
		return invalid("%d bodies exceed the limit of %d", len(s.Bodies), cfg.Limits.MaxBodies)
	}
	for i, b := range s.Bodies {
		switch b.Type {
		case BodyPlane:
			if b.Normal.X == 0 && b.Normal.Y == 0 {
				return invalid("body %d: plane normal is zero", i)
			}
		case BodyCircle:
			if b.Radius <= 0 {
				return invalid("body %d: circle radius must be positive", i)
			}
		case BodySegment:
			if len(b.Vertices) != 2 {
				return invalid("body %d: segment needs 2 vertices, got %d", i, len(b.Vertices))
			}
		case BodyPolygon:
			if n := len(b.Vertices); n < 3 || n > cfg.Limits.MaxPolygonVertices {
				return invalid("body %d: polygon needs 3..%d vertices, got %d", i, cfg.Limits.MaxPolygonVertices, n)
			}
		case BodyBox:
			if b.Extent.X <= 0 || b.Extent.Y <= 0 {
				return invalid("body %d: box extent must be positive", i)
			}
		default:
			return invalid("body %d: unknown type %q", i, b.Type)
		}
	}

	if len(s.Emitters) > cfg.Limits.MaxEmitters {
		return invalid("%d emitters exceed the limit of %d", len(s.Emitters), cfg.Limits.MaxEmitters)
	}
	for i, e := range s.Emitters {
		if e.Rate <= 0 || e.Duration <= 0 {
			return invalid("emitter %d: rate and duration must be positive", i)
		}
		if e.Direction.X == 0 && e.Direction.Y == 0 {
			return invalid("emitter %d: direction is zero", i)
		}
	}

	for i, v := range s.Volumes {
		if v.Size.X <= 0 || v.Size.Y <= 0 {
			return invalid("volume %d: size must be positive", i)
		}
	}

	return nil
}
