package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlan/vesper/internal/metrics"
	"github.com/harlan/vesper/pkg/agent"
)

// fakeRunner returns a canned result or error
type fakeRunner struct {
	result agent.RunResult
	err    error
	calls  int
	last   agent.RunParams
}

func (f *fakeRunner) Run(ctx context.Context, params agent.RunParams) (agent.RunResult, error) {
	f.calls++
	f.last = params
	if f.err != nil {
		return agent.RunResult{}, f.err
	}
	result := f.result
	if result.SessionKey == "" {
		result.SessionKey = params.SessionKey
	}
	return result, nil
}

func newTestServer(t *testing.T, runner AgentRunner, options ServerOptions) *Server {
	t.Helper()

	srv, err := NewServer(options, runner, agent.DefaultConfig(), metrics.NewMetrics(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })

	return srv
}

func execute(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Defaults(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	assert.Equal(t, "127.0.0.1", srv.options.Host)
	assert.Equal(t, 8080, srv.options.Port)
	assert.Equal(t, 60, srv.options.RateLimitPerMinute)
	assert.Equal(t, 120*time.Second, srv.options.DefaultTimeout)
}

func TestNewServer_RequiresRunner(t *testing.T) {
	_, err := NewServer(ServerOptions{}, nil, agent.DefaultConfig(), nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner")
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExecute_Success(t *testing.T) {
	runner := &fakeRunner{result: agent.RunResult{
		Response: "listed the files",
		ToolCalls: []agent.ToolCall{
			{ID: "c1", Name: "run_command"},
		},
	}}
	srv := newTestServer(t, runner, ServerOptions{})

	rec := execute(t, srv.Handler(), `{"text": "list files", "session_key": "work"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var body ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "listed the files", body.Response)
	assert.Equal(t, "work", body.SessionKey)
	assert.Equal(t, 1, body.ToolCalls)

	assert.Equal(t, "list files", runner.last.Prompt)
	assert.Equal(t, "work", runner.last.SessionKey)
}

func TestExecute_GeneratesSessionKey(t *testing.T) {
	runner := &fakeRunner{result: agent.RunResult{Response: "ok"}}
	srv := newTestServer(t, runner, ServerOptions{})

	rec := execute(t, srv.Handler(), `{"text": "hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(runner.last.SessionKey, "http-"))
}

func TestExecute_RequestIDForwarded(t *testing.T) {
	runner := &fakeRunner{result: agent.RunResult{Response: "ok"}}
	srv := newTestServer(t, runner, ServerOptions{})

	rec := execute(t, srv.Handler(), `{"text": "hello", "session_key": "s", "request_id": "req-9"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-9", runner.last.RequestID)
}

func TestExecute_BadRequests(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing text", `{"session_key": "s"}`},
		{"blank text", `{"text": "   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := execute(t, srv.Handler(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestExecute_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	req := httptest.NewRequest(http.MethodGet, "/execute", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExecute_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("all auth profiles failed")}
	srv := newTestServer(t, runner, ServerOptions{})

	rec := execute(t, srv.Handler(), `{"text": "hello", "session_key": "s"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "agent run failed", body.Error)
}

func TestExecute_RateLimited(t *testing.T) {
	runner := &fakeRunner{result: agent.RunResult{Response: "ok"}}
	srv := newTestServer(t, runner, ServerOptions{RateLimitPerMinute: 2})
	handler := srv.Handler()

	for i := 0; i < 2; i++ {
		rec := execute(t, handler, `{"text": "hello", "session_key": "s"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := execute(t, handler, `{"text": "hello", "session_key": "s"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestExecute_RejectedDuringShutdown(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	srv.shutdownMu.Lock()
	srv.isShuttingDown = true
	srv.shutdownMu.Unlock()

	rec := execute(t, srv.Handler(), `{"text": "hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{result: agent.RunResult{Response: "ok"}}, ServerOptions{})
	handler := srv.Handler()

	// Generate some traffic first
	rec := execute(t, handler, `{"text": "hello", "session_key": "s"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestGetClientIP(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:4321", "192.0.2.1"},
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "192.0.2.1:4321", "203.0.113.5"},
		{"x-real-ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "192.0.2.1:4321", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, srv.getClientIP(req))
		})
	}
}

func TestStop_WithoutStart(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, ServerOptions{})
	require.NoError(t, srv.Stop())
}
