package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-ant-test123", "anthropic")
		assert.NoError(t, err)
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "anthropic")
		assert.Error(t, err)
	})

	t.Run("valid openai key", func(t *testing.T) {
		err := v.ValidateAPIKey("sk-test123", "openai")
		assert.NoError(t, err)
	})

	t.Run("invalid openai key", func(t *testing.T) {
		err := v.ValidateAPIKey("invalid-key", "openai")
		assert.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		err := v.ValidateAPIKey("", "openai")
		assert.Error(t, err)
	})
}

func TestValidateModel(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateModel("gpt-4o"))
	assert.NoError(t, v.ValidateModel("claude-sonnet-4-5"))
	assert.Error(t, v.ValidateModel(""))
}

func TestValidateTemperature(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTemperature(0))
	assert.NoError(t, v.ValidateTemperature(0.7))
	assert.NoError(t, v.ValidateTemperature(1))
	assert.Error(t, v.ValidateTemperature(-0.1))
	assert.Error(t, v.ValidateTemperature(1.1))
}

func TestValidateMaxTokens(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateMaxTokens(4096))
	assert.Error(t, v.ValidateMaxTokens(0))
	assert.Error(t, v.ValidateMaxTokens(-1))
	assert.Error(t, v.ValidateMaxTokens(300000))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
	assert.Error(t, v.ValidateLogLevel(""))
}

func TestValidateTimeoutSeconds(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTimeoutSeconds(20))
	assert.NoError(t, v.ValidateTimeoutSeconds(3600))
	assert.Error(t, v.ValidateTimeoutSeconds(0))
	assert.Error(t, v.ValidateTimeoutSeconds(-5))
	assert.Error(t, v.ValidateTimeoutSeconds(7200))
}

func TestValidateDeniedPrefixes(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateDeniedPrefixes(nil))
	assert.NoError(t, v.ValidateDeniedPrefixes([]string{"rm ", "dd"}))
	assert.Error(t, v.ValidateDeniedPrefixes([]string{"rm ", "  "}))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("default config has no errors", func(t *testing.T) {
		errs := v.ValidateConfig(DefaultConfig())
		assert.Empty(t, errs)
	})

	t.Run("collects all errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "openai", APIKey: "bad"}}
		cfg.Agent.Model = ""
		cfg.Logging.Level = "verbose"
		cfg.Shell.DefaultTimeoutSeconds = -1

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 4)
	})
}
