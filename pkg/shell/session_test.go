package shell

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	s, err := NewSession(SessionConfig{
		Launcher:       NewLauncher(LauncherConfig{WorkingDir: t.TempDir()}),
		DefaultTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionEchoRoundTrip(t *testing.T) {
	s := newTestSession(t)

	out, err := s.Submit(context.Background(), CommandRequest{Command: "echo hello"})

	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.Empty(t, out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
}

func TestSessionStderrSeparation(t *testing.T) {
	s := newTestSession(t)

	out, err := s.Submit(context.Background(), CommandRequest{Command: "echo out; echo err 1>&2"})

	require.NoError(t, err)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
}

func TestSessionExitCodePropagation(t *testing.T) {
	s := newTestSession(t)

	out, err := s.Submit(context.Background(), CommandRequest{Command: "(exit 7)"})

	require.NoError(t, err)
	assert.Equal(t, 7, out.ExitCode)
}

func TestSessionUnknownCommand(t *testing.T) {
	s := newTestSession(t)

	out, err := s.Submit(context.Background(), CommandRequest{Command: "vesper-no-such-command-xyz"})

	require.NoError(t, err)
	assert.NotZero(t, out.ExitCode)
	assert.NotEmpty(t, out.Stderr)
}

func TestSessionStatePersistsAcrossCommands(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Submit(ctx, CommandRequest{Command: "export VESPER_TEST_STATE=carried; cd /tmp"})
	require.NoError(t, err)

	out, err := s.Submit(ctx, CommandRequest{Command: "echo $VESPER_TEST_STATE; pwd"})
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "carried")
	assert.Contains(t, out.Stdout, "/tmp")
}

func TestSessionSequentialCommandsDoNotInterleave(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("value-%d", i)
		out, err := s.Submit(ctx, CommandRequest{Command: "echo " + want})
		require.NoError(t, err)
		assert.Equal(t, want+"\n", out.Stdout)
	}
}

func TestSessionTimeoutReportsPartialOutput(t *testing.T) {
	s := newTestSession(t)

	out, err := s.Submit(context.Background(), CommandRequest{
		Command: "echo progress; sleep 5",
		Timeout: 500 * time.Millisecond,
	})

	require.ErrorIs(t, err, ErrCommandTimeout)
	assert.Contains(t, out.Stdout, "progress")
}

func TestSessionUsableAfterTimeout(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Submit(ctx, CommandRequest{Command: "sleep 2", Timeout: 100 * time.Millisecond})
	require.ErrorIs(t, err, ErrCommandTimeout)

	// The shell is still busy with the sleep; the next command queues
	// behind it and completes once the shell is free again.
	out, err := s.Submit(ctx, CommandRequest{Command: "echo recovered"})
	require.NoError(t, err)
	assert.Equal(t, "recovered\n", out.Stdout)
	assert.True(t, s.Alive())
}

func TestSessionBackgroundJobSurvivesAndIsObservable(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	out, err := s.Submit(ctx, CommandRequest{Command: "sleep 3 & echo launched"})
	require.NoError(t, err)
	assert.Equal(t, "launched\n", out.Stdout)

	out, err = s.Submit(ctx, CommandRequest{Command: "jobs"})
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "sleep")
}

func TestSessionDeadAfterExternalKill(t *testing.T) {
	s := newTestSession(t)

	proc, err := os.FindProcess(s.Pid())
	require.NoError(t, err)
	require.NoError(t, proc.Kill())

	require.Eventually(t, func() bool { return !s.Alive() }, 5*time.Second, 20*time.Millisecond)

	_, err = s.Submit(context.Background(), CommandRequest{Command: "echo hi"})
	require.ErrorIs(t, err, ErrSessionDead)
}

func TestSessionDeadWhenCommandKillsShell(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Submit(context.Background(), CommandRequest{Command: "exit 42"})
	require.ErrorIs(t, err, ErrSessionDead)
	assert.False(t, s.Alive())
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Submit(context.Background(), CommandRequest{Command: "echo hi"})
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionContextCancellation(t *testing.T) {
	s := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := s.Submit(ctx, CommandRequest{Command: "sleep 5"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSessionExecutableNotFound(t *testing.T) {
	_, err := NewSession(SessionConfig{
		Launcher: NewLauncher(LauncherConfig{
			EnvOverride:  "VESPER_TEST_UNSET",
			SearchRules:  []SearchRule{},
			FallbackName: "vesper-no-such-shell-binary",
		}),
	})
	require.ErrorIs(t, err, ErrExecutableNotFound)
}
