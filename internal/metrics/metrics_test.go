package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.registry == nil {
		t.Error("Registry is nil")
	}

	// Verify command metrics
	if m.CommandsTotal == nil {
		t.Error("CommandsTotal is nil")
	}
	if m.CommandDuration == nil {
		t.Error("CommandDuration is nil")
	}
	if m.CommandTimeoutsTotal == nil {
		t.Error("CommandTimeoutsTotal is nil")
	}

	// Verify shell session metrics
	if m.ShellSessionsActive == nil {
		t.Error("ShellSessionsActive is nil")
	}
	if m.ShellSessionsTotal == nil {
		t.Error("ShellSessionsTotal is nil")
	}
	if m.ShellSessionDeaths == nil {
		t.Error("ShellSessionDeaths is nil")
	}
	if m.ShellSessionRelaunches == nil {
		t.Error("ShellSessionRelaunches is nil")
	}

	// Verify agent metrics
	if m.AgentRunsTotal == nil {
		t.Error("AgentRunsTotal is nil")
	}
	if m.AgentRunDuration == nil {
		t.Error("AgentRunDuration is nil")
	}
	if m.AgentTurnsTotal == nil {
		t.Error("AgentTurnsTotal is nil")
	}
	if m.AgentRetriesTotal == nil {
		t.Error("AgentRetriesTotal is nil")
	}

	// Verify tool metrics
	if m.ToolExecutionsTotal == nil {
		t.Error("ToolExecutionsTotal is nil")
	}
	if m.ToolExecutionDuration == nil {
		t.Error("ToolExecutionDuration is nil")
	}

	// Verify HTTP metrics
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration is nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	// Record some sample metrics so they appear in output
	m.CommandsTotal.WithLabelValues("completed").Inc()
	m.CommandDuration.Observe(0.2)
	m.CommandTimeoutsTotal.Inc()
	m.ShellSessionsTotal.Inc()
	m.ShellSessionsActive.Set(1)
	m.ShellSessionDeaths.Inc()
	m.ShellSessionRelaunches.Inc()
	m.AgentRunsTotal.WithLabelValues("success").Inc()
	m.AgentRunDuration.Observe(1.0)
	m.AgentTurnsTotal.Inc()
	m.AgentRetriesTotal.Inc()
	m.ToolExecutionsTotal.WithLabelValues("run_command", "success").Inc()
	m.ToolExecutionDuration.WithLabelValues("run_command").Observe(0.5)
	m.HTTPRequestsTotal.WithLabelValues("/execute", "200").Inc()
	m.HTTPRequestDuration.WithLabelValues("/execute").Observe(0.1)

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"shell_commands_total",
		"shell_command_duration_seconds",
		"shell_command_timeouts_total",
		"shell_sessions_active",
		"shell_sessions_total",
		"shell_session_deaths_total",
		"shell_session_relaunches_total",
		"agent_runs_total",
		"agent_run_duration_seconds",
		"agent_turns_total",
		"agent_retries_total",
		"tool_executions_total",
		"tool_execution_duration_seconds",
		"http_requests_total",
		"http_request_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics()

	registry := m.Registry()
	if registry == nil {
		t.Fatal("Registry returned nil")
	}

	// Record some sample metrics so they appear in gather
	m.CommandsTotal.WithLabelValues("completed").Inc()
	m.AgentRunsTotal.WithLabelValues("success").Inc()
	m.ToolExecutionsTotal.WithLabelValues("run_command", "success").Inc()
	m.ToolExecutionDuration.WithLabelValues("run_command").Observe(0.5)
	m.HTTPRequestsTotal.WithLabelValues("/execute", "200").Inc()
	m.HTTPRequestDuration.WithLabelValues("/execute").Observe(0.1)

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("No metrics registered")
	}

	metricNames := make(map[string]bool)
	for _, mf := range metricFamilies {
		metricNames[*mf.Name] = true
	}

	expectedCount := 15 // Total number of metrics
	if len(metricNames) != expectedCount {
		t.Errorf("Expected %d metrics, got %d", expectedCount, len(metricNames))
	}
}

func TestCommandMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("increment commands by status", func(t *testing.T) {
		m.CommandsTotal.WithLabelValues("completed").Inc()
		m.CommandsTotal.WithLabelValues("timed_out").Inc()

		metricFamilies, _ := m.registry.Gather()
		found := false
		for _, mf := range metricFamilies {
			if *mf.Name == "shell_commands_total" {
				found = true
				if len(mf.Metric) != 2 {
					t.Errorf("Expected 2 status series, got %d", len(mf.Metric))
				}
			}
		}
		if !found {
			t.Error("shell_commands_total metric not found")
		}
	})

	t.Run("record command duration", func(t *testing.T) {
		m.CommandDuration.Observe(1.5)

		metricFamilies, _ := m.registry.Gather()
		found := false
		for _, mf := range metricFamilies {
			if *mf.Name == "shell_command_duration_seconds" {
				found = true
			}
		}
		if !found {
			t.Error("shell_command_duration_seconds metric not found")
		}
	})
}

func TestShellSessionMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("set active sessions", func(t *testing.T) {
		m.ShellSessionsActive.Set(1)

		metricFamilies, _ := m.registry.Gather()
		found := false
		for _, mf := range metricFamilies {
			if *mf.Name == "shell_sessions_active" {
				found = true
				if len(mf.Metric) > 0 && *mf.Metric[0].Gauge.Value != 1 {
					t.Errorf("Expected value 1, got %f", *mf.Metric[0].Gauge.Value)
				}
			}
		}
		if !found {
			t.Error("shell_sessions_active metric not found")
		}
	})

	t.Run("increment deaths and relaunches", func(t *testing.T) {
		m.ShellSessionDeaths.Inc()
		m.ShellSessionRelaunches.Inc()

		metricFamilies, _ := m.registry.Gather()
		names := map[string]bool{}
		for _, mf := range metricFamilies {
			names[*mf.Name] = true
		}
		if !names["shell_session_deaths_total"] {
			t.Error("shell_session_deaths_total metric not found")
		}
		if !names["shell_session_relaunches_total"] {
			t.Error("shell_session_relaunches_total metric not found")
		}
	})
}

func TestMetricsIsolation(t *testing.T) {
	// Create two separate metrics instances
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.ShellSessionsTotal.Inc()
	m1.ShellSessionsTotal.Inc()

	m2.ShellSessionsTotal.Inc()

	metricFamilies1, _ := m1.registry.Gather()
	for _, mf := range metricFamilies1 {
		if *mf.Name == "shell_sessions_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 2 {
				t.Errorf("m1: Expected value 2, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}

	metricFamilies2, _ := m2.registry.Gather()
	for _, mf := range metricFamilies2 {
		if *mf.Name == "shell_sessions_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 1 {
				t.Errorf("m2: Expected value 1, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}
}
