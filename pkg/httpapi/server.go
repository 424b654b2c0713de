package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/vesper/internal/metrics"
	"github.com/harlan/vesper/pkg/agent"
)

// AgentRunner executes agent runs on behalf of HTTP callers
type AgentRunner interface {
	Run(ctx context.Context, params agent.RunParams) (agent.RunResult, error)
}

// Server is the HTTP front-end
type Server struct {
	options     ServerOptions
	server      *http.Server
	rateLimiter *RateLimiter
	runner      AgentRunner
	agentConfig agent.AgentConfig
	agentCfgMu  sync.RWMutex
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	startTime   time.Time

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new HTTP server
func NewServer(options ServerOptions, runner AgentRunner, agentConfig agent.AgentConfig, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 60
	}
	if options.DefaultTimeout == 0 {
		options.DefaultTimeout = 120 * time.Second
	}

	if runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}

	return &Server{
		options:     options,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		runner:      runner,
		agentConfig: agentConfig,
		metrics:     m,
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

// Handler returns the routed handler, exported for tests
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/execute", s.handleExecute)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return s.instrument(mux)
}

// instrument records request count and duration per path
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		s.metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds unknown paths into one label value to keep metric
// cardinality bounded
func normalizePath(path string) string {
	switch path {
	case "/health", "/execute", "/metrics":
		return path
	default:
		return "other"
	}
}

// statusRecorder captures the response status for instrumentation
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// SetAgentConfig swaps the per-run agent configuration. Used for config hot
// reload; in-flight runs keep the configuration they started with.
func (s *Server) SetAgentConfig(cfg agent.AgentConfig) {
	s.agentCfgMu.Lock()
	s.agentConfig = cfg
	s.agentCfgMu.Unlock()
}

func (s *Server) currentAgentConfig() agent.AgentConfig {
	s.agentCfgMu.RLock()
	defer s.agentCfgMu.RUnlock()
	return s.agentConfig
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}
