package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultCommandTimeout is the per-command deadline when none is set
	DefaultCommandTimeout = 20 * time.Second

	// DefaultStartupTimeout bounds the session handshake
	DefaultStartupTimeout = 10 * time.Second

	// closeGracePeriod is how long Close waits for a voluntary exit before
	// killing the process
	closeGracePeriod = 2 * time.Second
)

// SessionConfig configures a shell session
type SessionConfig struct {
	// Launcher starts the shell process; defaults to NewLauncher with
	// default config
	Launcher *Launcher

	// DefaultTimeout is the per-command deadline when the request does not
	// override it; defaults to DefaultCommandTimeout
	DefaultTimeout time.Duration

	// StartupTimeout bounds the initial handshake; defaults to
	// DefaultStartupTimeout
	StartupTimeout time.Duration
}

// Session owns one persistent shell process. Commands are framed with unique
// sentinels and executed strictly one at a time; concurrent Submit calls
// queue on the session lock. Two background readers drain stdout and stderr
// continuously so the shell never blocks on a full pipe.
type Session struct {
	cfg    SessionConfig
	proc   *Process
	frames *FrameFactory

	// mu enforces single-flight command submission
	mu sync.Mutex

	bufMu     sync.Mutex
	stdoutBuf bytes.Buffer
	stderrBuf bytes.Buffer

	// notify wakes the awaiting submitter when new output arrives
	notify chan struct{}

	// dead closes after both readers hit EOF and the process is reaped
	dead    chan struct{}
	waitErr error

	readerWg  sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSession launches a shell process and performs the startup handshake.
// The session is usable only after the handshake frame round-trips, which
// also flushes any startup noise the shell printed.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Launcher == nil {
		cfg.Launcher = NewLauncher(LauncherConfig{})
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultCommandTimeout
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}

	frames, err := NewFrameFactory()
	if err != nil {
		return nil, err
	}

	proc, err := cfg.Launcher.Launch()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		proc:   proc,
		frames: frames,
		notify: make(chan struct{}, 1),
		dead:   make(chan struct{}),
	}

	s.readerWg.Add(2)
	go s.drain(proc.Stdout, &s.stdoutBuf)
	go s.drain(proc.Stderr, &s.stderrBuf)
	go s.reap()

	if err := s.handshake(); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Debug().
		Int("pid", proc.Pid()).
		Str("path", proc.Path).
		Msg("Shell session ready")

	return s, nil
}

// Submit runs one command in the session and blocks until the output frame
// completes, the deadline expires, or the process dies. A deadline expiry
// returns ErrCommandTimeout with whatever partial output arrived; the shell
// and anything it spawned are left running.
func (s *Session) Submit(ctx context.Context, req CommandRequest) (FramedOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return FramedOutput{}, ErrSessionClosed
	}
	select {
	case <-s.dead:
		return FramedOutput{}, fmt.Errorf("process already exited: %w", ErrSessionDead)
	default:
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	fr := s.frames.Next()
	s.resetBuffers()
	if err := s.write(fr.Compose(req.Command)); err != nil {
		return FramedOutput{}, err
	}

	start := time.Now()
	out, err := s.await(ctx, fr, timeout)

	evt := log.Debug().
		Str("command", req.Command).
		Dur("duration", time.Since(start))
	if err != nil {
		evt.Err(err).Msg("Command did not complete")
	} else {
		evt.Int("exit_code", out.ExitCode).Msg("Command completed")
	}

	return out, err
}

// await arbitrates the three resolution paths for an in-flight command:
// frame completion, deadline expiry, and process death
func (s *Session) await(ctx context.Context, fr Frame, timeout time.Duration) (FramedOutput, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		stdout, stderr := s.snapshot()
		out, complete, err := fr.Extract(stdout, stderr)
		if err != nil {
			return FramedOutput{}, err
		}
		if complete {
			return out, nil
		}

		select {
		case <-s.notify:

		case <-s.dead:
			// Readers have flushed everything; one final look in case
			// the frame completed right before the exit.
			stdout, stderr = s.snapshot()
			if out, complete, err := fr.Extract(stdout, stderr); err == nil && complete {
				return out, nil
			}
			po, pe := fr.ExtractPartial(stdout, stderr)
			return FramedOutput{Stdout: po, Stderr: pe, ExitCode: -1},
				fmt.Errorf("process exited while awaiting frame: %w", ErrSessionDead)

		case <-deadline.C:
			stdout, stderr = s.snapshot()
			po, pe := fr.ExtractPartial(stdout, stderr)
			return FramedOutput{Stdout: po, Stderr: pe, ExitCode: -1},
				fmt.Errorf("no end sentinel after %s: %w", timeout, ErrCommandTimeout)

		case <-ctx.Done():
			return FramedOutput{}, ctx.Err()
		}
	}
}

// Alive reports whether the shell process is still running
func (s *Session) Alive() bool {
	if s.closed.Load() {
		return false
	}
	select {
	case <-s.dead:
		return false
	default:
		return true
	}
}

// Pid returns the shell process ID
func (s *Session) Pid() int {
	return s.proc.Pid()
}

// Close shuts the session down: it asks the shell to exit, escalates to a
// kill after a grace period, and waits for the process to be reaped. Safe to
// call multiple times and concurrently with an in-flight Submit.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		_, _ = io.WriteString(s.proc.Stdin, "exit\n")
		_ = s.proc.Stdin.Close()

		select {
		case <-s.dead:
		case <-time.After(closeGracePeriod):
			_ = s.proc.Kill()
			<-s.dead
		}

		log.Debug().Int("pid", s.proc.Pid()).Msg("Shell session closed")
	})
	return nil
}

func (s *Session) handshake() error {
	fr := s.frames.Next()
	if err := s.write(fr.Compose(":")); err != nil {
		return fmt.Errorf("handshake write failed: %w", err)
	}
	if _, err := s.await(context.Background(), fr, s.cfg.StartupTimeout); err != nil {
		if errors.Is(err, ErrCommandTimeout) {
			return fmt.Errorf("no response within %s: %w", s.cfg.StartupTimeout, ErrStartupTimeout)
		}
		return fmt.Errorf("handshake failed: %w", err)
	}
	return nil
}

// drain continuously moves one stream into its buffer. Runs until pipe EOF,
// which happens when the process exits.
func (s *Session) drain(r io.Reader, buf *bytes.Buffer) {
	defer s.readerWg.Done()
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.bufMu.Lock()
			buf.Write(chunk[:n])
			s.bufMu.Unlock()
			s.ping()
		}
		if err != nil {
			return
		}
	}
}

// reap waits for both readers to finish before collecting the process, so a
// closed dead channel guarantees the buffers hold the final output
func (s *Session) reap() {
	s.readerWg.Wait()
	s.waitErr = s.proc.Wait()
	close(s.dead)
}

func (s *Session) ping() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) snapshot() (string, string) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.stdoutBuf.String(), s.stderrBuf.String()
}

func (s *Session) resetBuffers() {
	s.bufMu.Lock()
	s.stdoutBuf.Reset()
	s.stderrBuf.Reset()
	s.bufMu.Unlock()
}

func (s *Session) write(script string) error {
	if _, err := io.WriteString(s.proc.Stdin, script); err != nil {
		if !s.Alive() {
			return fmt.Errorf("stdin write after exit: %w", ErrSessionDead)
		}
		return fmt.Errorf("failed to write to session stdin: %w", err)
	}
	return nil
}
