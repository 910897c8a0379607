package modelconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kevmodo/triton-go/pkg/tensor"
)

// rawConfig is the document schema shared by all three encodings. Decoding
// is strict: an unknown field fails the load instead of surfacing as a
// surprise at first request.
type rawConfig struct {
	Name                string            `json:"name" yaml:"name" toml:"name"`
	MaxBatchSize        int               `json:"max_batch_size,omitempty" yaml:"max_batch_size" toml:"max_batch_size,omitempty"`
	Inputs              []rawTensor       `json:"inputs" yaml:"inputs" toml:"inputs"`
	Outputs             []rawTensor       `json:"outputs" yaml:"outputs" toml:"outputs"`
	Instances           []rawInstance     `json:"instances,omitempty" yaml:"instances" toml:"instances,omitempty"`
	Parameters          map[string]string `json:"parameters,omitempty" yaml:"parameters" toml:"parameters,omitempty"`
	ConcurrentExecution bool              `json:"concurrent_execution,omitempty" yaml:"concurrent_execution" toml:"concurrent_execution,omitempty"`
}

type rawTensor struct {
	Name     string  `json:"name" yaml:"name" toml:"name"`
	DataType string  `json:"datatype" yaml:"datatype" toml:"datatype"`
	Dims     []int64 `json:"dims" yaml:"dims" toml:"dims"`
}

type rawInstance struct {
	Kind      string `json:"kind,omitempty" yaml:"kind" toml:"kind,omitempty"`
	Count     int    `json:"count" yaml:"count" toml:"count"`
	DeviceIDs []int  `json:"device_ids,omitempty" yaml:"device_ids" toml:"device_ids,omitempty"`
}

// Parse decodes the JSON configuration document supplied by the host and
// validates it. Parsing is deterministic: the same bytes always yield the
// same Config.
func Parse(doc []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("model configuration: %w", err)
	}
	return raw.build()
}

// Load reads a configuration file based on its extension. Supports
// .json, .yaml/.yml, and .toml.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw rawConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config extension %q", path, ext)
	}
	cfg, err := raw.build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Document renders the configuration back into the JSON form Parse
// accepts, e.g. for a host handing a file-loaded config to a backend.
// Parse(c.Document()) reproduces c exactly.
func (c *Config) Document() ([]byte, error) {
	raw := rawConfig{
		Name:                c.Name,
		MaxBatchSize:        c.MaxBatchSize,
		Parameters:          c.Parameters,
		ConcurrentExecution: c.ConcurrentExecution,
	}
	for _, s := range c.Inputs {
		raw.Inputs = append(raw.Inputs, rawTensor{Name: s.Name, DataType: s.DataType.String(), Dims: s.Dims})
	}
	for _, s := range c.Outputs {
		raw.Outputs = append(raw.Outputs, rawTensor{Name: s.Name, DataType: s.DataType.String(), Dims: s.Dims})
	}
	for _, i := range c.Instances {
		raw.Instances = append(raw.Instances, rawInstance{Kind: i.Kind.String(), Count: i.Count, DeviceIDs: i.DeviceIDs})
	}
	return json.Marshal(raw)
}

func (raw rawConfig) build() (*Config, error) {
	cfg := &Config{
		Name:                raw.Name,
		MaxBatchSize:        raw.MaxBatchSize,
		Parameters:          raw.Parameters,
		ConcurrentExecution: raw.ConcurrentExecution,
	}
	var err error
	if cfg.Inputs, err = buildSpecs(raw.Inputs); err != nil {
		return nil, fmt.Errorf("model %q: input: %w", raw.Name, err)
	}
	if cfg.Outputs, err = buildSpecs(raw.Outputs); err != nil {
		return nil, fmt.Errorf("model %q: output: %w", raw.Name, err)
	}
	for _, ri := range raw.Instances {
		kind, err := ParseDeviceKind(ri.Kind)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", raw.Name, err)
		}
		cfg.Instances = append(cfg.Instances, InstanceSpec{Kind: kind, Count: ri.Count, DeviceIDs: ri.DeviceIDs})
	}
	// Default placement: one CPU instance.
	if len(cfg.Instances) == 0 {
		cfg.Instances = []InstanceSpec{{Kind: KindCPU, Count: 1}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildSpecs(raws []rawTensor) ([]TensorSpec, error) {
	specs := make([]TensorSpec, 0, len(raws))
	for _, rt := range raws {
		dt, err := tensor.ParseDataType(rt.DataType)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", rt.Name, err)
		}
		specs = append(specs, TensorSpec{Name: rt.Name, DataType: dt, Dims: tensor.Shape(rt.Dims)})
	}
	return specs, nil
}
