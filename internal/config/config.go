// Package config loads benchmark configuration from YAML, layered over
// built-in defaults. API keys left empty in the file resolve from the
// per-provider key files or environment at load time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"orgbench/internal/learning"
	"orgbench/internal/llm"
	"orgbench/internal/topology"
)

// ProviderConfig selects one LLM endpoint.
type ProviderConfig struct {
	// Provider is one of "cerebras", "anthropic", "gemini".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
	// APIKey overrides key-file and environment resolution when set.
	APIKey string `yaml:"api_key,omitempty"`
}

// RunConfig holds the learning-loop and suite parameters.
type RunConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Threshold     float64 `yaml:"threshold"`
	EvalRuns      int     `yaml:"eval_runs"`
	MaxLoops      int     `yaml:"max_loops"`
	Transfer      bool    `yaml:"transfer"`
	Parallel      int     `yaml:"parallel"`
	SeedMemory    bool    `yaml:"seed_memory"`
}

// OutputConfig controls where artifacts land.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Database string `yaml:"database,omitempty"`
}

// Config is the full benchmark configuration.
type Config struct {
	Run       RunConfig      `yaml:"run"`
	Generator ProviderConfig `yaml:"generator"`
	Judge     ProviderConfig `yaml:"judge"`
	Output    OutputConfig   `yaml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			MaxIterations: learning.DefaultMaxIterations,
			Threshold:     learning.DefaultThreshold,
			EvalRuns:      3,
			MaxLoops:      topology.DefaultMaxLoops,
		},
		Generator: ProviderConfig{
			Provider: "cerebras",
			Model:    llm.DefaultGeneratorModel,
			BaseURL:  llm.DefaultGeneratorBaseURL,
		},
		Judge: ProviderConfig{
			Provider: "anthropic",
			Model:    llm.DefaultJudgeModel,
		},
		Output: OutputConfig{
			Dir: "results",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveKeys fills empty API keys from the provider key files or
// environment. Keys set in the YAML win.
func (c *Config) ResolveKeys() error {
	for _, p := range []*ProviderConfig{&c.Generator, &c.Judge} {
		if p.APIKey != "" {
			continue
		}
		key, err := llm.LoadKey(p.Provider)
		if err != nil {
			return fmt.Errorf("resolve %s key: %w", p.Provider, err)
		}
		p.APIKey = key
	}
	return nil
}
