package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/vesper/internal/config"
	"github.com/harlan/vesper/internal/logger"
	"github.com/harlan/vesper/internal/metrics"
	"github.com/harlan/vesper/pkg/agent"
	"github.com/harlan/vesper/pkg/audit"
	"github.com/harlan/vesper/pkg/commandqueue"
	"github.com/harlan/vesper/pkg/session"
	"github.com/harlan/vesper/pkg/shell"
	"github.com/harlan/vesper/pkg/shelltool"
	"github.com/harlan/vesper/pkg/toolexecutor"
)

// app wires the runtime components from a loaded config
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	metrics   *metrics.Metrics
	store     *session.Store
	retention *session.Retention
	queue     *commandqueue.Queue
	audit     *audit.Store
	shellTool *shelltool.Tool
	executor  *toolexecutor.ToolExecutor
	runner    *agent.Runner
}

// buildApp loads config and constructs the component graph. When withAgent
// is false the agent runner (and its auth profile requirement) is skipped,
// which is enough for `vesper exec`.
func buildApp(withAgent bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zl := log.GetZerolog()
	m := metrics.NewMetrics()

	a := &app{cfg: cfg, log: log, metrics: m}

	if err := a.buildComponents(zl, withAgent); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) buildComponents(zl zerolog.Logger, withAgent bool) error {
	cfg := a.cfg

	if cfg.Audit.Enabled {
		auditStore, err := audit.NewStore(audit.Config{
			DBPath: cfg.Audit.DBPath,
			Logger: zl,
		})
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		a.audit = auditStore
	}

	a.shellTool = a.newShellTool(zl)

	a.executor = toolexecutor.New()
	if err := a.executor.RegisterTool(a.shellTool.Definition()); err != nil {
		return fmt.Errorf("failed to register command tool: %w", err)
	}

	if !withAgent {
		return nil
	}

	store, err := session.New(filepath.Join(cfg.DataDir, "sessions"), zl)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	a.store = store
	a.retention = session.NewRetention(store, session.DefaultRetentionAge, zl)

	a.queue = commandqueue.New(zl)

	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		})
	}

	runner, err := agent.NewRunner(agent.Config{
		Transcripts:  store,
		ToolExecutor: a.executor,
		Queue:        a.queue,
		Metrics:      a.metrics,
		Logger:       zl,
		AuthProfiles: profiles,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent runner: %w", err)
	}
	a.runner = runner

	return nil
}

func (a *app) newShellTool(zl zerolog.Logger) *shelltool.Tool {
	cfg := a.cfg

	launcher := shell.NewLauncher(shell.LauncherConfig{
		ExecPath:     cfg.Shell.ExecPath,
		FallbackName: cfg.Shell.FallbackName,
		WorkingDir:   cfg.Shell.WorkingDir,
	})

	toolCfg := shelltool.Config{
		Session: shell.SessionConfig{
			Launcher:       launcher,
			DefaultTimeout: time.Duration(cfg.Shell.DefaultTimeoutSeconds) * time.Second,
			StartupTimeout: time.Duration(cfg.Shell.StartupTimeoutSeconds) * time.Second,
		},
		DeniedPrefixes: cfg.Shell.DeniedPrefixes,
		Metrics:        a.metrics,
		Logger:         zl,
	}
	if a.audit != nil {
		toolCfg.Recorder = a.audit
	}

	return shelltool.New(toolCfg)
}

// agentConfig maps the file config onto the runner's per-run configuration
func (a *app) agentConfig() agent.AgentConfig {
	return agentConfigFrom(a.cfg)
}

func agentConfigFrom(c *config.Config) agent.AgentConfig {
	cfg := agent.DefaultConfig()
	if c.Agent.Model != "" {
		cfg.Model = c.Agent.Model
	}
	if c.Agent.Temperature > 0 {
		cfg.Temperature = c.Agent.Temperature
	}
	if c.Agent.MaxTokens > 0 {
		cfg.MaxTokens = c.Agent.MaxTokens
	}
	if c.Agent.MaxTurns > 0 {
		cfg.MaxTurns = c.Agent.MaxTurns
	}
	cfg.SystemPrompt = c.Agent.SystemPrompt
	return cfg
}

// Close releases components in reverse dependency order
func (a *app) Close() {
	if a.retention != nil && a.retention.IsRunning() {
		a.retention.Stop()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.shellTool != nil {
		a.shellTool.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.audit != nil {
		a.audit.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}
