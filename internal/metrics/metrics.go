package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Command metrics
	CommandsTotal        *prometheus.CounterVec
	CommandDuration      prometheus.Histogram
	CommandTimeoutsTotal prometheus.Counter

	// Shell session metrics
	ShellSessionsActive    prometheus.Gauge
	ShellSessionsTotal     prometheus.Counter
	ShellSessionDeaths     prometheus.Counter
	ShellSessionRelaunches prometheus.Counter

	// Agent metrics
	AgentRunsTotal    *prometheus.CounterVec
	AgentRunDuration  prometheus.Histogram
	AgentTurnsTotal   prometheus.Counter
	AgentRetriesTotal prometheus.Counter

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Command metrics
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shell_commands_total",
				Help: "Total number of shell commands executed, by terminal status",
			},
			[]string{"status"},
		),
		CommandDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shell_command_duration_seconds",
				Help:    "Duration of shell command executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		CommandTimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shell_command_timeouts_total",
				Help: "Total number of shell commands that hit their deadline",
			},
		),

		// Shell session metrics
		ShellSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shell_sessions_active",
				Help: "Number of currently live shell sessions",
			},
		),
		ShellSessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shell_sessions_total",
				Help: "Total number of shell sessions launched",
			},
		),
		ShellSessionDeaths: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shell_session_deaths_total",
				Help: "Total number of shell sessions that died unexpectedly",
			},
		),
		ShellSessionRelaunches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shell_session_relaunches_total",
				Help: "Total number of automatic shell session relaunches",
			},
		),

		// Agent metrics
		AgentRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_runs_total",
				Help: "Total number of agent runs",
			},
			[]string{"status"},
		),
		AgentRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		AgentTurnsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_turns_total",
				Help: "Total number of LLM turns across all agent runs",
			},
		),
		AgentRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_retries_total",
				Help: "Total number of retried LLM calls",
			},
		),

		// Tool metrics
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),

		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Command metrics
	m.registry.MustRegister(m.CommandsTotal)
	m.registry.MustRegister(m.CommandDuration)
	m.registry.MustRegister(m.CommandTimeoutsTotal)

	// Shell session metrics
	m.registry.MustRegister(m.ShellSessionsActive)
	m.registry.MustRegister(m.ShellSessionsTotal)
	m.registry.MustRegister(m.ShellSessionDeaths)
	m.registry.MustRegister(m.ShellSessionRelaunches)

	// Agent metrics
	m.registry.MustRegister(m.AgentRunsTotal)
	m.registry.MustRegister(m.AgentRunDuration)
	m.registry.MustRegister(m.AgentTurnsTotal)
	m.registry.MustRegister(m.AgentRetriesTotal)

	// Tool metrics
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)

	// HTTP metrics
	m.registry.MustRegister(m.HTTPRequestsTotal)
	m.registry.MustRegister(m.HTTPRequestDuration)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
