package maze

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// InferenceConfig configures a single inference endpoint (spec.md §6).
type InferenceConfig struct {
	EndpointURL string        `env:"MODAL_ENDPOINT" yaml:"endpoint_url"`
	APIKey      string        `env:"MODAL_API_KEY" yaml:"api_key"`
	Model       string        `env:"MODAL_MODEL" yaml:"model"`
	TimeoutSecs int           `yaml:"timeout_secs" default:"300"`
	EnableRetry bool          `yaml:"enable_retry" default:"true"`
	MaxRetries  int           `yaml:"max_retries" default:"3"`
	Timeout     time.Duration `yaml:"-"`
}

// CacheConfig configures the constraint compiler's LRU cache (spec.md §6).
type CacheConfig struct {
	EnableCache    bool `yaml:"enable_cache" default:"true"`
	CacheSizeLimit int  `env:"ANANKE_CACHE_SIZE" yaml:"cache_size_limit" default:"1000"`
}

// RefinementConfig configures the hole-refinement scheduler (spec.md §6).
type RefinementConfig struct {
	MaxIterations       int       `yaml:"max_iterations" default:"10"`
	MinConfidence       float64   `yaml:"min_confidence" default:"0.8"`
	ParallelFill        bool      `yaml:"parallel_fill" default:"true"`
	TemperatureSchedule []float64 `yaml:"temperature_schedule"`
	FailureStrategy     string    `yaml:"failure_strategy" default:"RetryAlternate"`
	EnableDiffusion     bool      `yaml:"enable_diffusion" default:"false"`
}

// AdaptiveConfig configures the ε-greedy strategy selector (spec.md §6).
type AdaptiveConfig struct {
	ExplorationRate   float64 `yaml:"exploration_rate" default:"0.1"`
	MinSamples        uint64  `yaml:"min_samples" default:"50"`
	DecayFactor       float64 `yaml:"decay_factor" default:"0.9"`
	DecayIntervalDays int     `yaml:"decay_interval_days" default:"7"`
}

// Config is the full set of construction-time options for an Orchestrator.
type Config struct {
	Inference  InferenceConfig      `yaml:"inference"`
	Cache      CacheConfig          `yaml:"cache"`
	Refinement RefinementConfig     `yaml:"refinement"`
	Adaptive   AdaptiveConfig       `yaml:"adaptive"`
	Endpoints  []EndpointConfig     `yaml:"endpoints"`
	Logger     Logger               `yaml:"-"`
	LogFormat  LogFormat            `yaml:"log_format"`
}

// EndpointConfig describes one model router endpoint (spec.md §3 "Model
// endpoint"), as loaded from a YAML router configuration file.
type EndpointConfig struct {
	Name             string   `yaml:"name"`
	EndpointURL      string   `yaml:"endpoint_url"`
	Model            string   `yaml:"model"`
	APIKey           string   `yaml:"api_key"`
	TimeoutSecs      int      `yaml:"timeout_secs"`
	Capabilities     []string `yaml:"capabilities"`
	Priority         int      `yaml:"priority"`
	CostPer1kTokens  float64  `yaml:"cost_per_1k_tokens"`
}

// Option mutates a Config during construction.
type Option func(*Config) error

// WithEndpointURL sets the default inference endpoint URL.
func WithEndpointURL(u string) Option {
	return func(c *Config) error {
		c.Inference.EndpointURL = u
		return nil
	}
}

// WithAPIKey sets the default inference API key.
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.Inference.APIKey = key
		return nil
	}
}

// WithModel sets the default model id.
func WithModel(model string) Option {
	return func(c *Config) error {
		c.Inference.Model = model
		return nil
	}
}

// WithCacheSizeLimit sets the constraint cache's maximum entry count.
func WithCacheSizeLimit(limit int) Option {
	return func(c *Config) error {
		c.Cache.CacheSizeLimit = limit
		return nil
	}
}

// WithMaxIterations sets the scheduler's iteration bound.
func WithMaxIterations(n int) Option {
	return func(c *Config) error {
		c.Refinement.MaxIterations = n
		return nil
	}
}

// WithTemperatureSchedule sets the per-iteration temperature list.
func WithTemperatureSchedule(schedule []float64) Option {
	return func(c *Config) error {
		c.Refinement.TemperatureSchedule = schedule
		return nil
	}
}

// WithEndpoints sets the router's endpoint list directly.
func WithEndpoints(endpoints []EndpointConfig) Option {
	return func(c *Config) error {
		c.Endpoints = endpoints
		return nil
	}
}

// WithLogger overrides the default NoOpLogger.
func WithLogger(l Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// defaults returns a Config populated with every `default:"..."` value
// listed on the struct tags above.
func defaults() *Config {
	return &Config{
		Inference: InferenceConfig{
			TimeoutSecs: 300,
			EnableRetry: true,
			MaxRetries:  3,
		},
		Cache: CacheConfig{
			EnableCache:    true,
			CacheSizeLimit: 1000,
		},
		Refinement: RefinementConfig{
			MaxIterations:       10,
			MinConfidence:       0.8,
			ParallelFill:        true,
			TemperatureSchedule: []float64{0.9, 0.7, 0.5, 0.3, 0.1},
			FailureStrategy:     "RetryAlternate",
			EnableDiffusion:     false,
		},
		Adaptive: AdaptiveConfig{
			ExplorationRate:   0.1,
			MinSamples:        50,
			DecayFactor:       0.9,
			DecayIntervalDays: 7,
		},
		LogFormat: LogFormatText,
	}
}

// LoadFromEnv reads the four environment variables spec.md §6 names
// (MODAL_ENDPOINT, MODAL_API_KEY, MODAL_MODEL, ANANKE_CACHE_SIZE) into a
// fresh Config. This is the optional external loader spec.md keeps out of
// the core: nothing downstream requires it to run.
func LoadFromEnv() *Config {
	c := defaults()
	if v := os.Getenv("MODAL_ENDPOINT"); v != "" {
		c.Inference.EndpointURL = v
	}
	if v := os.Getenv("MODAL_API_KEY"); v != "" {
		c.Inference.APIKey = v
	}
	if v := os.Getenv("MODAL_MODEL"); v != "" {
		c.Inference.Model = v
	}
	if v := os.Getenv("ANANKE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.CacheSizeLimit = n
		}
	}
	return c
}

// LoadConfigFile parses a YAML router configuration file into a Config,
// starting from defaults(). See SPEC_FULL.md "Configuration".
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("maze.LoadConfigFile", "config", err)
	}
	c := defaults()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, NewError("maze.LoadConfigFile", "config", err)
	}
	return c, nil
}

// NewConfig builds a Config from defaults, environment, then the supplied
// options, and validates it (mirrors the reference framework's
// NewConfig(opts ...Option) pipeline).
func NewConfig(opts ...Option) (*Config, error) {
	c := LoadFromEnv()
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewError("maze.NewConfig", "config", err)
		}
	}
	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.Inference.Timeout = time.Duration(c.Inference.TimeoutSecs) * time.Second
	return c, nil
}

// Validate checks the invariants spec.md §7 labels ConfigError: missing or
// invalid endpoint URL, zero cache size, empty temperature schedule, and
// max_retries below 1. The endpoint list is not checked here; when it is
// empty, NewOrchestrator routes to a single endpoint built from the
// inference settings.
func (c *Config) Validate() error {
	if c.Inference.EndpointURL == "" {
		return NewError("Config.Validate", "config", fmt.Errorf("%w: endpoint_url is required", ErrConfigInvalid))
	}
	if _, err := url.ParseRequestURI(c.Inference.EndpointURL); err != nil {
		return NewError("Config.Validate", "config", fmt.Errorf("%w: invalid endpoint_url: %v", ErrConfigInvalid, err))
	}
	if c.Cache.EnableCache && c.Cache.CacheSizeLimit <= 0 {
		return NewError("Config.Validate", "config", ErrCacheCapacityZero)
	}
	if len(c.Refinement.TemperatureSchedule) == 0 {
		return NewError("Config.Validate", "config", fmt.Errorf("%w: temperature_schedule must be non-empty", ErrConfigInvalid))
	}
	if !c.Inference.EnableRetry {
		c.Inference.MaxRetries = 1
	} else if c.Inference.MaxRetries < 1 {
		return NewError("Config.Validate", "config", fmt.Errorf("%w: max_retries must be >= 1", ErrConfigInvalid))
	}
	return nil
}
