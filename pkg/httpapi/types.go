package httpapi

import (
	"time"
)

// ServerOptions configures the HTTP front-end
type ServerOptions struct {
	Host               string        // Bind address (default: 127.0.0.1)
	Port               int           // Listen port (default: 8080)
	RateLimitPerMinute int           // Per-IP request budget (default: 60)
	DefaultTimeout     time.Duration // Per-request agent run timeout (default: 120s)
}

// ExecuteRequest is the body of POST /execute
type ExecuteRequest struct {
	Text       string `json:"text"`
	SessionKey string `json:"session_key,omitempty"`

	// RequestID makes the request idempotent: a retry with the same ID
	// within the dedup window returns the original result.
	RequestID string `json:"request_id,omitempty"`
}

// ExecuteResponse is the body of a successful POST /execute
type ExecuteResponse struct {
	Response   string      `json:"response"`
	SessionKey string      `json:"session_key"`
	ToolCalls  int         `json:"tool_calls"`
	Usage      interface{} `json:"usage,omitempty"`
}

// ErrorResponse is the body of any failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// rateLimitState tracks request timestamps for one client IP
type rateLimitState struct {
	requests []int64 // unix milliseconds, oldest first
}
