package middleware

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RouterConfig controls the orchestration router.
type RouterConfig struct {
	// Enabled gates orchestration globally. When false every request
	// takes the direct fallback path.
	Enabled bool `yaml:"enabled"`
	// OrchestrationTimeout is the wall-clock budget for one
	// orchestrated request.
	OrchestrationTimeout time.Duration `yaml:"orchestration_timeout"`
	// FallbackTimeout bounds the direct fallback call. Typically
	// shorter than the orchestration budget.
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
	// FallbackEnabled allows falling back to the direct path when
	// orchestration fails.
	FallbackEnabled bool `yaml:"fallback_enabled"`
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Enabled:              true,
		OrchestrationTimeout: 60 * time.Second,
		FallbackTimeout:      15 * time.Second,
		FallbackEnabled:      true,
	}
}

// LoadRouterConfig reads a RouterConfig from a YAML file. Zero-valued
// durations fall back to the defaults.
func LoadRouterConfig(path string) (RouterConfig, error) {
	cfg := DefaultRouterConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading router config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing router config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// ParseRouterConfigYAML parses a RouterConfig from raw YAML bytes.
func ParseRouterConfigYAML(data []byte) (RouterConfig, error) {
	cfg := DefaultRouterConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing router config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// UnmarshalYAML decodes durations from strings like "45s". Absent
// fields keep their current values.
func (c *RouterConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled              *bool   `yaml:"enabled"`
		OrchestrationTimeout *string `yaml:"orchestration_timeout"`
		FallbackTimeout      *string `yaml:"fallback_timeout"`
		FallbackEnabled      *bool   `yaml:"fallback_enabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.FallbackEnabled != nil {
		c.FallbackEnabled = *raw.FallbackEnabled
	}
	if raw.OrchestrationTimeout != nil {
		d, err := time.ParseDuration(*raw.OrchestrationTimeout)
		if err != nil {
			return fmt.Errorf("orchestration_timeout: %w", err)
		}
		c.OrchestrationTimeout = d
	}
	if raw.FallbackTimeout != nil {
		d, err := time.ParseDuration(*raw.FallbackTimeout)
		if err != nil {
			return fmt.Errorf("fallback_timeout: %w", err)
		}
		c.FallbackTimeout = d
	}
	return nil
}

func (c RouterConfig) withDefaults() RouterConfig {
	d := DefaultRouterConfig()
	if c.OrchestrationTimeout <= 0 {
		c.OrchestrationTimeout = d.OrchestrationTimeout
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = d.FallbackTimeout
	}
	return c
}

// CompatConfig configures the compatibility manager's rollout.
type CompatConfig struct {
	// AdoptionPercent is the share of requests routed through
	// orchestration, 0 to 100.
	AdoptionPercent int `yaml:"adoption_percent"`
	// ToolFlags enables orchestration per logical tool type
	// ("search", "reasoning", "combined").
	ToolFlags map[string]bool `yaml:"tool_flags"`
}

// DefaultCompatConfig starts every tool type on the legacy path.
func DefaultCompatConfig() CompatConfig {
	return CompatConfig{
		AdoptionPercent: 0,
		ToolFlags: map[string]bool{
			"search":    false,
			"reasoning": false,
			"combined":  false,
		},
	}
}

// ParseCompatConfigYAML parses a CompatConfig from raw YAML bytes.
func ParseCompatConfigYAML(data []byte) (CompatConfig, error) {
	cfg := DefaultCompatConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing compat config: %w", err)
	}
	if cfg.AdoptionPercent < 0 || cfg.AdoptionPercent > 100 {
		return cfg, fmt.Errorf("adoption_percent %d outside [0, 100]", cfg.AdoptionPercent)
	}
	if cfg.ToolFlags == nil {
		cfg.ToolFlags = DefaultCompatConfig().ToolFlags
	}
	return cfg, nil
}
