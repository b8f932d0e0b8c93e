package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r1"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/paramscan/internal/objective"
	"github.com/dyluth/paramscan/internal/sampling"
	"github.com/dyluth/paramscan/internal/store"
)

// Defaults applied by Validate when a field is omitted.
const (
	DefaultMaxChunkSize = 5000
	DefaultObjective    = "constant"
	DefaultRedisURL     = "redis://localhost:6379"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultWorkerImage  = "paramscan:latest"
	DefaultRedisImage   = "redis:7-alpine"

	BackendLocal = "local"
	BackendRedis = "redis"
)

// ScanConfig represents the top-level scan.yml configuration
type ScanConfig struct {
	Version       string              `yaml:"version"`
	Params        []Param             `yaml:"params"`
	Sampler       *SamplerConfig      `yaml:"sampler,omitempty"`
	Objective     string              `yaml:"objective,omitempty"`
	MaxChunkSize  *int                `yaml:"max_chunk_size,omitempty"` // Points per chunk upper bound (default 5000)
	SyncEachChunk bool                `yaml:"sync_each_chunk,omitempty"`
	Storage       *StorageConfig      `yaml:"storage,omitempty"`
	Coordination  *CoordinationConfig `yaml:"coordination,omitempty"`
	Launch        *LaunchConfig       `yaml:"launch,omitempty"`
}

// Param is one scanned parameter and its sampling interval
type Param struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// SamplerConfig selects the sampling method. Center, Covariance and Sigma are
// only read by the lhs_cov method.
type SamplerConfig struct {
	Method     string      `yaml:"method"` // lhs (default), uniform or lhs_cov
	Center     []float64   `yaml:"center,omitempty"`
	Covariance [][]float64 `yaml:"covariance,omitempty"`
	Sigma      []float64   `yaml:"sigma,omitempty"`
}

// StorageConfig selects the on-disk matrix format
type StorageConfig struct {
	Format string `yaml:"format"` // binary (default) or zstd
}

// CoordinationConfig selects how ranks find each other
type CoordinationConfig struct {
	Backend      string `yaml:"backend"` // local (default) or redis
	RedisURL     string `yaml:"redis_url,omitempty"`
	Job          string `yaml:"job,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`

	pollInterval time.Duration
}

// Poll returns the parsed poll interval. Only valid after Validate.
func (c *CoordinationConfig) Poll() time.Duration {
	return c.pollInterval
}

// LaunchConfig specifies the images used by `paramscan launch`
type LaunchConfig struct {
	Image      string `yaml:"image,omitempty"`
	RedisImage string `yaml:"redis_image,omitempty"`
	Network    string `yaml:"network,omitempty"`
}

// Validate performs strict validation on the configuration and fills in
// defaults for every omitted section.
func (c *ScanConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: at least one parameter
	if len(c.Params) == 0 {
		return fmt.Errorf("no params defined")
	}

	seen := make(map[string]int)
	for i, p := range c.Params {
		if p.Name == "" {
			return fmt.Errorf("param %d: name is required", i)
		}
		if prev, exists := seen[p.Name]; exists {
			return fmt.Errorf("duplicate param name '%s' (params %d and %d)", p.Name, prev, i)
		}
		seen[p.Name] = i
	}
	if err := c.Bounds().Validate(); err != nil {
		var be *sampling.BoundsError
		if errors.As(err, &be) {
			return fmt.Errorf("param '%s': %w", c.Params[be.Index].Name, err)
		}
		return err
	}

	if err := c.validateSampler(); err != nil {
		return err
	}

	if c.Objective == "" {
		c.Objective = DefaultObjective
	}
	if _, err := objective.New(c.Objective); err != nil {
		return err
	}

	if c.MaxChunkSize == nil {
		n := DefaultMaxChunkSize
		c.MaxChunkSize = &n
	}
	if *c.MaxChunkSize <= 0 {
		return fmt.Errorf("max_chunk_size must be > 0, got %d", *c.MaxChunkSize)
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.Storage.Format == "" {
		c.Storage.Format = store.FormatBinary
	}
	if _, err := store.Open(c.Storage.Format); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Coordination == nil {
		c.Coordination = &CoordinationConfig{}
	}
	if err := c.Coordination.validate(); err != nil {
		return err
	}

	if c.Launch == nil {
		c.Launch = &LaunchConfig{}
	}
	if c.Launch.Image == "" {
		c.Launch.Image = DefaultWorkerImage
	}
	if c.Launch.RedisImage == "" {
		c.Launch.RedisImage = DefaultRedisImage
	}

	return nil
}

func (c *ScanConfig) validateSampler() error {
	if c.Sampler == nil {
		c.Sampler = &SamplerConfig{}
	}
	s := c.Sampler
	switch s.Method {
	case "":
		s.Method = sampling.MethodLatinHypercube
	case sampling.MethodLatinHypercube, sampling.MethodUniform:
	case sampling.MethodCovariance:
		if len(s.Center) != len(c.Params) {
			return fmt.Errorf("sampler: center has %d entries, expected one per param (%d)", len(s.Center), len(c.Params))
		}
		if len(s.Covariance) == 0 {
			return fmt.Errorf("sampler: covariance is required for method '%s'", sampling.MethodCovariance)
		}
		if len(s.Sigma) == 0 {
			s.Sigma = []float64{1}
		}
	default:
		return fmt.Errorf("invalid sampler method: %s (must be '%s', '%s', or '%s')",
			s.Method, sampling.MethodLatinHypercube, sampling.MethodUniform, sampling.MethodCovariance)
	}
	return nil
}

func (c *CoordinationConfig) validate() error {
	switch c.Backend {
	case "":
		c.Backend = BackendLocal
	case BackendLocal, BackendRedis:
	default:
		return fmt.Errorf("invalid coordination backend: %s (must be '%s' or '%s')", c.Backend, BackendLocal, BackendRedis)
	}

	if c.Backend == BackendRedis && c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}

	c.pollInterval = DefaultPollInterval
	if c.PollInterval != "" {
		d, err := time.ParseDuration(c.PollInterval)
		if err != nil {
			return fmt.Errorf("coordination.poll_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("coordination.poll_interval must be > 0, got %s", c.PollInterval)
		}
		c.pollInterval = d
	}
	return nil
}

// Bounds returns the sampling interval of every param in declaration order.
func (c *ScanConfig) Bounds() sampling.Bounds {
	b := make(sampling.Bounds, len(c.Params))
	for i, p := range c.Params {
		b[i] = r1.Interval{Min: p.Min, Max: p.Max}
	}
	return b
}

// Names returns the param names in declaration order.
func (c *ScanConfig) Names() []string {
	names := make([]string, len(c.Params))
	for i, p := range c.Params {
		names[i] = p.Name
	}
	return names
}

// Load reads and validates scan.yml from the specified path
func Load(path string) (*ScanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config ScanConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
