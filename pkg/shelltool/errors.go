package shelltool

import "errors"

var (
	// ErrSessionUnavailable is returned when the session died and the
	// relaunched replacement died too, or could not be launched at all
	ErrSessionUnavailable = errors.New("shell session unavailable")

	// ErrCommandBlocked is returned when a command matches the denied
	// prefix list
	ErrCommandBlocked = errors.New("command blocked by denylist")

	// ErrEmptyCommand is returned when the command text is empty
	ErrEmptyCommand = errors.New("command is required")

	// ErrToolClosed is returned when the tool has been closed
	ErrToolClosed = errors.New("command tool is closed")
)
