package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harlan/vesper/internal/tracing"
	"github.com/harlan/vesper/pkg/agent"
)

// maxRequestBody caps the /execute request body at 1 MiB
const maxRequestBody = 1 << 20

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// handleExecute handles POST /execute
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.shuttingDown() {
		s.writeError(w, r, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	ip := s.getClientIP(r)

	if !s.rateLimiter.Allow(ip) {
		retryAfter := s.rateLimiter.RetryAfter(ip)
		s.logger.Warn().
			Str("ip", ip).
			Int("retry_after", retryAfter).
			Msg("Rate limit exceeded")

		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		s.writeError(w, r, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req ExecuteRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, http.StatusBadRequest, "text is required")
		return
	}

	sessionKey := req.SessionKey
	if sessionKey == "" {
		id, err := gonanoid.New()
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}
		sessionKey = "http-" + id
	}

	ctx := tracing.NewRequestContext(r.Context())
	if req.RequestID != "" {
		ctx = tracing.WithRequestID(ctx, req.RequestID)
	}
	ctx, cancel := context.WithTimeout(ctx, s.options.DefaultTimeout)
	defer cancel()

	logger := tracing.LoggerFromContext(ctx, s.logger)

	result, err := s.runner.Run(ctx, agent.RunParams{
		Prompt:     req.Text,
		SessionKey: sessionKey,
		Config:     s.currentAgentConfig(),
		RequestID:  req.RequestID,
	})

	duration := time.Since(startTime)

	if err != nil {
		logger.Error().
			Err(err).
			Str("ip", ip).
			Str("session_key", sessionKey).
			Dur("duration", duration).
			Msg("Execute request failed")

		status := http.StatusInternalServerError
		if ctx.Err() == context.DeadlineExceeded {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, r, status, "agent run failed")
		return
	}

	logger.Info().
		Str("ip", ip).
		Str("session_key", sessionKey).
		Dur("duration", duration).
		Int("tool_calls", len(result.ToolCalls)).
		Msg("Execute request completed")

	s.writeJSON(w, r, http.StatusOK, ExecuteResponse{
		Response:   result.Response,
		SessionKey: result.SessionKey,
		ToolCalls:  len(result.ToolCalls),
		Usage:      result.Usage,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, ErrorResponse{Error: message})
}

// getClientIP extracts the client IP from the request
func (s *Server) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
