package shell

import "time"

// CommandRequest represents a single command submitted to a session
type CommandRequest struct {
	// Command is the shell command text, executed as-is in the session
	Command string `json:"command"`

	// Timeout overrides the session default when > 0
	Timeout time.Duration `json:"timeout,omitempty"`
}

// FramedOutput is the extracted result of one framed command
type FramedOutput struct {
	// Stdout is the standard output captured between the frame sentinels
	Stdout string `json:"stdout"`

	// Stderr is the standard error captured between the frame sentinels
	Stderr string `json:"stderr"`

	// ExitCode is the command exit code echoed after the end sentinel
	ExitCode int `json:"exit_code"`
}
