package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harlan/vesper/internal/config"
)

func TestAgentConfigMapping(t *testing.T) {
	a := &app{cfg: &config.Config{
		Agent: config.AgentConfig{
			Model:        "claude-sonnet-4-20250514",
			Temperature:  0.7,
			MaxTokens:    8192,
			MaxTurns:     20,
			SystemPrompt: "be terse",
		},
	}}

	cfg := a.agentConfig()
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 8192, cfg.MaxTokens)
	assert.Equal(t, 20, cfg.MaxTurns)
	assert.Equal(t, "be terse", cfg.SystemPrompt)
}

func TestAgentConfigDefaults(t *testing.T) {
	a := &app{cfg: &config.Config{}}

	cfg := a.agentConfig()
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 12, cfg.MaxTurns)
	assert.Equal(t, 3, cfg.MaxRetries)
}
