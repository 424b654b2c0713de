package shell

import "errors"

var (
	// ErrExecutableNotFound is returned when no shell executable can be resolved
	ErrExecutableNotFound = errors.New("shell executable not found")

	// ErrSessionDead is returned when the shell process has exited
	ErrSessionDead = errors.New("shell session is dead")

	// ErrSessionClosed is returned when the session has been closed by its owner
	ErrSessionClosed = errors.New("shell session is closed")

	// ErrCommandTimeout is returned when a command deadline expires before the
	// end sentinel arrives; the shell process itself is left running
	ErrCommandTimeout = errors.New("command deadline expired")

	// ErrCorruptFrame is returned when the end sentinel carries a non-numeric
	// exit code
	ErrCorruptFrame = errors.New("corrupt output frame")

	// ErrStartupTimeout is returned when the session handshake does not
	// complete in time
	ErrStartupTimeout = errors.New("session startup handshake timed out")
)
