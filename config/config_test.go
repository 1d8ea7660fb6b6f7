package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
model_id: claude-sonnet-4-0
max_loop_iterations: 3
max_tool_calls_per_round: 2
forced_tools:
  - search
instructions: "You are a research assistant."
stream: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-0", cfg.ModelID)
	assert.Equal(t, 3, cfg.MaxLoopIterations)
	assert.Equal(t, 2, cfg.MaxToolCallsPerRound)
	assert.Equal(t, []string{"search"}, cfg.ForcedTools)
	assert.Equal(t, "You are a research assistant.", cfg.Instructions)
	assert.True(t, cfg.Stream)

	// Absent fields keep their defaults.
	assert.Equal(t, DefaultMaxParallel, cfg.MaxParallel)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `model_id: test`))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxLoopIterations, cfg.MaxLoopIterations)
	assert.Equal(t, DefaultMaxToolCallsPerRound, cfg.MaxToolCallsPerRound)
	assert.Equal(t, DefaultMaxParallel, cfg.MaxParallel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load turn config")
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "max_loop_iterations: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *TurnConfig)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(c *TurnConfig) {},
		},
		{
			name:    "zero iterations rejected",
			mutate:  func(c *TurnConfig) { c.MaxLoopIterations = 0 },
			wantErr: "max_loop_iterations",
		},
		{
			name:   "zero tool calls allowed",
			mutate: func(c *TurnConfig) { c.MaxToolCallsPerRound = 0 },
		},
		{
			name:    "negative tool calls rejected",
			mutate:  func(c *TurnConfig) { c.MaxToolCallsPerRound = -1 },
			wantErr: "max_tool_calls_per_round",
		},
		{
			name:    "zero parallelism rejected",
			mutate:  func(c *TurnConfig) { c.MaxParallel = 0 },
			wantErr: "max_parallel",
		},
		{
			name:    "duplicate forced tool rejected",
			mutate:  func(c *TurnConfig) { c.ForcedTools = []string{"a", "a"} },
			wantErr: "duplicate name",
		},
		{
			name:    "empty forced tool rejected",
			mutate:  func(c *TurnConfig) { c.ForcedTools = []string{""} },
			wantErr: "empty names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
