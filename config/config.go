// Package config holds the declarative turn configuration and its YAML
// loader.
package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults applied by Load and New for fields left unset.
const (
	DefaultMaxLoopIterations    = 5
	DefaultMaxToolCallsPerRound = 8
	DefaultMaxParallel          = 4
)

// TurnConfig declares the per-turn loop bounds, tool policy and prompt text.
// The zero value is not usable; call New or Load.
type TurnConfig struct {
	// ModelID names the model the runner should use. Informational for
	// injected models.
	ModelID string `yaml:"model_id"`

	// MaxLoopIterations bounds plan/act rounds per turn. Must be >= 1.
	MaxLoopIterations int `yaml:"max_loop_iterations"`

	// MaxToolCallsPerRound caps the tool calls executed per round after
	// deduplication. Zero means no tool call is ever executed.
	MaxToolCallsPerRound int `yaml:"max_tool_calls_per_round"`

	// MaxParallel bounds concurrent tool executions within a round.
	MaxParallel int `yaml:"max_parallel"`

	// ForcedTools are selected unconditionally on the turn's first round.
	// Names must match registered tools; validated when the tool manager is
	// built.
	ForcedTools []string `yaml:"forced_tools"`

	// Instructions overrides the base system prompt when non-empty.
	Instructions string `yaml:"instructions"`

	// CustomInstructions is appended to the system prompt.
	CustomInstructions string `yaml:"custom_instructions"`

	// Stream requests partial frames from the model.
	Stream bool `yaml:"stream"`
}

// New returns a TurnConfig with defaults applied.
func New() TurnConfig {
	return TurnConfig{
		MaxLoopIterations:    DefaultMaxLoopIterations,
		MaxToolCallsPerRound: DefaultMaxToolCallsPerRound,
		MaxParallel:          DefaultMaxParallel,
	}
}

// Validate checks the loop bounds. MaxToolCallsPerRound of zero is legal and
// means tool calls are selected but never executed.
func (c TurnConfig) Validate() error {
	if c.MaxLoopIterations < 1 {
		return fmt.Errorf("max_loop_iterations must be >= 1, got %d", c.MaxLoopIterations)
	}
	if c.MaxToolCallsPerRound < 0 {
		return fmt.Errorf("max_tool_calls_per_round must be >= 0, got %d", c.MaxToolCallsPerRound)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1, got %d", c.MaxParallel)
	}
	seen := map[string]struct{}{}
	for _, name := range c.ForcedTools {
		if name == "" {
			return fmt.Errorf("forced_tools must not contain empty names")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("forced_tools contains duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Load reads a YAML turn configuration, fills defaults for absent fields and
// validates the result.
func Load(path string) (TurnConfig, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return TurnConfig{}, fmt.Errorf("failed to load turn config from %q: %w", path, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return TurnConfig{}, fmt.Errorf("failed to parse turn config from %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return TurnConfig{}, fmt.Errorf("turn config validation failed for %q: %w", path, err)
	}
	return cfg, nil
}
