package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection reset", fmt.Errorf("read tcp: connection reset by peer"), true},
		{"rate limit", fmt.Errorf("request failed: rate limit exceeded"), true},
		{"429", fmt.Errorf("status 429"), true},
		{"503", fmt.Errorf("status 503 service unavailable"), true},
		{"auth failure", fmt.Errorf("status 401 invalid api key"), false},
		{"bad request", fmt.Errorf("status 400 bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))

	messages := []Message{
		{Role: "user", Content: "12345678"},
		{Role: "assistant", Content: "1234"},
	}
	assert.Equal(t, 3, EstimateTokens(messages))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 12, cfg.MaxTurns)
	assert.Equal(t, 3, cfg.MaxRetries)
}
