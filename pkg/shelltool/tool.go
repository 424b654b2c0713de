// Package shelltool exposes the persistent shell session as a single
// command-execution tool with relaunch-on-death semantics.
package shelltool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/vesper/internal/metrics"
	"github.com/harlan/vesper/internal/tracing"
	"github.com/harlan/vesper/pkg/audit"
	"github.com/harlan/vesper/pkg/shell"
)

// TerminateSessionCommand is the literal command that closes the current
// session and starts a fresh one
const TerminateSessionCommand = "terminate_session"

// Status is the terminal status of a command execution
type Status string

const (
	// StatusCompleted means the command finished and reported an exit code
	StatusCompleted Status = "completed"
	// StatusTimedOut means the deadline expired before the command finished
	StatusTimedOut Status = "timed_out"
	// StatusSessionDead means the shell process died during the command
	StatusSessionDead Status = "session_dead"
)

// CommandResult is the outcome of one command execution
type CommandResult struct {
	// ExitCode is nil when the command did not report one (timeout, death)
	ExitCode *int `json:"exit_code,omitempty"`

	// Stdout is the captured standard output
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error
	Stderr string `json:"stderr"`

	// Duration is how long the execution took
	Duration time.Duration `json:"duration"`

	// Status is the terminal status
	Status Status `json:"status"`
}

// Recorder receives one audit entry per executed command
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Config holds command tool configuration
type Config struct {
	// Session configures the underlying shell session
	Session shell.SessionConfig

	// DeniedPrefixes overrides the default command denylist; nil keeps
	// the default, an empty slice disables the guard
	DeniedPrefixes []string

	// Metrics is optional
	Metrics *metrics.Metrics

	// Recorder is the optional audit sink
	Recorder Recorder

	// Logger is the tool logger
	Logger zerolog.Logger
}

// Tool is the command execution facade. It owns its shell session
// explicitly: the session is created lazily on first use, relaunched once
// when it dies, and released by Close.
type Tool struct {
	cfg     Config
	denied  []string
	mu      sync.Mutex
	session *shell.Session
	closed  bool
}

// New creates a command tool. No shell process is started until the first
// command runs.
func New(cfg Config) *Tool {
	denied := cfg.DeniedPrefixes
	if denied == nil {
		denied = DefaultDeniedPrefixes()
	}
	return &Tool{cfg: cfg, denied: denied}
}

// Run executes one command in the persistent session. Concurrent callers are
// serialized. A timeout is reported in the result status, not as an error; a
// session death triggers one transparent relaunch and retry, and only a
// second consecutive death surfaces ErrSessionUnavailable.
func (t *Tool) Run(ctx context.Context, req shell.CommandRequest) (CommandResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return CommandResult{}, ErrToolClosed
	}

	command := strings.TrimSpace(req.Command)
	if command == "" {
		return CommandResult{}, ErrEmptyCommand
	}

	if isDenied(command, t.denied) {
		t.cfg.Logger.Warn().Str("command", command).Msg("Command blocked by denylist")
		return CommandResult{}, fmt.Errorf("%q: %w", command, ErrCommandBlocked)
	}

	if command == TerminateSessionCommand {
		return t.terminateAndRestart(ctx)
	}

	start := time.Now()
	out, err := t.submitWithRelaunch(ctx, req)
	duration := time.Since(start)

	res, runErr := t.buildResult(out, err, duration)
	if runErr != nil && res.Status == "" {
		// Launch failures, frame corruption, context errors: nothing ran.
		return CommandResult{}, runErr
	}

	t.observe(ctx, command, res)
	return res, runErr
}

// Close releases the shell session. The tool cannot be used afterwards.
func (t *Tool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.releaseLocked()
	return nil
}

// Alive reports whether a live session currently exists
func (t *Tool) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil && t.session.Alive()
}

func (t *Tool) submitWithRelaunch(ctx context.Context, req shell.CommandRequest) (shell.FramedOutput, error) {
	if err := t.ensureSessionLocked(); err != nil {
		return shell.FramedOutput{}, err
	}

	out, err := t.session.Submit(ctx, req)
	if !errors.Is(err, shell.ErrSessionDead) {
		return out, err
	}

	t.cfg.Logger.Warn().
		Int("pid", t.session.Pid()).
		Msg("Shell session died, relaunching")
	if m := t.cfg.Metrics; m != nil {
		m.ShellSessionDeaths.Inc()
		m.ShellSessionRelaunches.Inc()
	}
	t.releaseLocked()

	if err := t.ensureSessionLocked(); err != nil {
		return shell.FramedOutput{}, fmt.Errorf("relaunch failed: %v: %w", err, ErrSessionUnavailable)
	}

	out, err = t.session.Submit(ctx, req)
	if errors.Is(err, shell.ErrSessionDead) {
		if m := t.cfg.Metrics; m != nil {
			m.ShellSessionDeaths.Inc()
		}
		t.releaseLocked()
		return out, fmt.Errorf("session died twice in a row: %w", ErrSessionUnavailable)
	}
	return out, err
}

// buildResult maps the channel-level outcome onto the result taxonomy
func (t *Tool) buildResult(out shell.FramedOutput, err error, duration time.Duration) (CommandResult, error) {
	switch {
	case err == nil:
		code := out.ExitCode
		return CommandResult{
			ExitCode: &code,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Duration: duration,
			Status:   StatusCompleted,
		}, nil

	case errors.Is(err, shell.ErrCommandTimeout):
		return CommandResult{
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Duration: duration,
			Status:   StatusTimedOut,
		}, nil

	case errors.Is(err, ErrSessionUnavailable), errors.Is(err, shell.ErrSessionDead):
		return CommandResult{
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Duration: duration,
			Status:   StatusSessionDead,
		}, err

	default:
		return CommandResult{}, err
	}
}

func (t *Tool) terminateAndRestart(ctx context.Context) (CommandResult, error) {
	start := time.Now()
	t.releaseLocked()
	if err := t.ensureSessionLocked(); err != nil {
		return CommandResult{}, fmt.Errorf("session restart failed: %v: %w", err, ErrSessionUnavailable)
	}

	code := 0
	res := CommandResult{
		ExitCode: &code,
		Stdout:   "session terminated and restarted\n",
		Duration: time.Since(start),
		Status:   StatusCompleted,
	}
	t.observe(ctx, TerminateSessionCommand, res)
	return res, nil
}

func (t *Tool) ensureSessionLocked() error {
	if t.session != nil && t.session.Alive() {
		return nil
	}
	t.releaseLocked()

	sess, err := shell.NewSession(t.cfg.Session)
	if err != nil {
		return err
	}
	t.session = sess

	if m := t.cfg.Metrics; m != nil {
		m.ShellSessionsTotal.Inc()
		m.ShellSessionsActive.Set(1)
	}
	t.cfg.Logger.Info().Int("pid", sess.Pid()).Msg("Shell session launched")
	return nil
}

func (t *Tool) releaseLocked() {
	if t.session == nil {
		return
	}
	_ = t.session.Close()
	t.session = nil
	if m := t.cfg.Metrics; m != nil {
		m.ShellSessionsActive.Set(0)
	}
}

// observe emits the per-command log record, metrics, and audit entry
func (t *Tool) observe(ctx context.Context, command string, res CommandResult) {
	logger := tracing.LoggerFromContext(ctx, t.cfg.Logger)

	evt := logger.Info().
		Str("command", command).
		Str("status", string(res.Status)).
		Dur("duration", res.Duration)
	if res.ExitCode != nil {
		evt = evt.Int("exit_code", *res.ExitCode)
	}
	evt.Msg("Command executed")

	if m := t.cfg.Metrics; m != nil {
		m.CommandsTotal.WithLabelValues(string(res.Status)).Inc()
		m.CommandDuration.Observe(res.Duration.Seconds())
		if res.Status == StatusTimedOut {
			m.CommandTimeoutsTotal.Inc()
		}
	}

	if t.cfg.Recorder != nil {
		pid := 0
		if t.session != nil {
			pid = t.session.Pid()
		}
		entry := audit.Entry{
			Command:    command,
			Status:     string(res.Status),
			ExitCode:   res.ExitCode,
			DurationMs: res.Duration.Milliseconds(),
			TraceID:    tracing.GetTraceID(ctx),
			SessionPID: pid,
		}
		if err := t.cfg.Recorder.Record(ctx, entry); err != nil {
			logger.Warn().Err(err).Msg("Failed to record audit entry")
		}
	}
}
