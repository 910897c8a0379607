// Package modelconfig parses and validates the declarative model
// configuration a host hands to a backend at model load time: input and
// output tensor schemas, instance placement, and free-form backend
// parameters. The host delivers the document as JSON; for on-disk model
// repositories the same schema can also be loaded from YAML or TOML files.
package modelconfig

import (
	"fmt"

	"github.com/kevmodo/triton-go/pkg/tensor"
)

// DeviceKind places a model instance on a device class.
type DeviceKind int

const (
	KindCPU DeviceKind = iota
	KindGPU
)

func (k DeviceKind) String() string {
	switch k {
	case KindCPU:
		return "CPU"
	case KindGPU:
		return "GPU"
	default:
		return fmt.Sprintf("devicekind(%d)", int(k))
	}
}

// ParseDeviceKind resolves the config spelling of a device kind.
func ParseDeviceKind(name string) (DeviceKind, error) {
	switch name {
	case "CPU", "cpu", "":
		return KindCPU, nil
	case "GPU", "gpu":
		return KindGPU, nil
	default:
		return KindCPU, fmt.Errorf("unknown device kind %q", name)
	}
}

// TensorSpec declares one named input or output tensor. A dim of -1 is a
// wildcard: the extent is only known per request.
type TensorSpec struct {
	Name     string
	DataType tensor.DataType
	Dims     tensor.Shape
}

// MatchesShape reports whether a concrete tensor shape satisfies the
// declared dims, treating -1 dims as wildcards.
func (s TensorSpec) MatchesShape(shape tensor.Shape) bool {
	if len(shape) != len(s.Dims) {
		return false
	}
	for i, d := range s.Dims {
		if d != -1 && d != shape[i] {
			return false
		}
	}
	return true
}

// InstanceSpec declares how many instances to create and where.
type InstanceSpec struct {
	Kind      DeviceKind
	Count     int
	DeviceIDs []int
}

// Config is the parsed model configuration.
type Config struct {
	Name         string
	MaxBatchSize int
	Inputs       []TensorSpec
	Outputs      []TensorSpec
	Instances    []InstanceSpec
	Parameters   map[string]string

	// ConcurrentExecution declares that the backend tolerates simultaneous
	// execute calls on one instance. When false the host serializes them
	// and instance-local state may go unsynchronized.
	ConcurrentExecution bool

	inputIndex  map[string]int
	outputIndex map[string]int
}

// Input returns the declared spec for an input name.
func (c *Config) Input(name string) (TensorSpec, bool) {
	i, ok := c.inputIndex[name]
	if !ok {
		return TensorSpec{}, false
	}
	return c.Inputs[i], true
}

// Output returns the declared spec for an output name.
func (c *Config) Output(name string) (TensorSpec, bool) {
	i, ok := c.outputIndex[name]
	if !ok {
		return TensorSpec{}, false
	}
	return c.Outputs[i], true
}

// Parameter returns a backend parameter with a default.
func (c *Config) Parameter(name, def string) string {
	if v, ok := c.Parameters[name]; ok {
		return v
	}
	return def
}

// Validate checks structural rules: a model name, at least one input and
// one output, unique tensor names, known datatypes, well-formed dims, and
// sane instance counts. It also (re)builds the name lookup indexes, so it
// must run before Input/Output are used.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("model configuration has no name")
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("model %q: max_batch_size %d is negative", c.Name, c.MaxBatchSize)
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("model %q: no inputs declared", c.Name)
	}
	if len(c.Outputs) == 0 {
		return fmt.Errorf("model %q: no outputs declared", c.Name)
	}
	var err error
	if c.inputIndex, err = indexSpecs(c.Name, "input", c.Inputs); err != nil {
		return err
	}
	if c.outputIndex, err = indexSpecs(c.Name, "output", c.Outputs); err != nil {
		return err
	}
	for _, inst := range c.Instances {
		if inst.Count <= 0 {
			return fmt.Errorf("model %q: instance group of kind %s has count %d", c.Name, inst.Kind, inst.Count)
		}
		if inst.Kind == KindCPU && len(inst.DeviceIDs) > 0 {
			return fmt.Errorf("model %q: CPU instance group declares device ids", c.Name)
		}
	}
	return nil
}

func indexSpecs(model, role string, specs []TensorSpec) (map[string]int, error) {
	idx := make(map[string]int, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("model %q: %s %d has no name", model, role, i)
		}
		if _, dup := idx[s.Name]; dup {
			return nil, fmt.Errorf("model %q: duplicate %s name %q", model, role, s.Name)
		}
		if s.DataType == tensor.Invalid {
			return nil, fmt.Errorf("model %q: %s %q has no datatype", model, role, s.Name)
		}
		for j, d := range s.Dims {
			if d < -1 || d == 0 {
				return nil, fmt.Errorf("model %q: %s %q: dimension %d is %d, want a positive extent or -1", model, role, s.Name, j, d)
			}
		}
		idx[s.Name] = i
	}
	return idx, nil
}
