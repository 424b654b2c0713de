package shelltool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harlan/vesper/pkg/shell"
	"github.com/harlan/vesper/pkg/toolexecutor"
)

// ToolName is the name the tool is registered and declared under
const ToolName = "run_command"

// Definition returns the tool declaration for the agent loop. The handler
// formats results as plain text for the model.
func (t *Tool) Definition() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name: ToolName,
		Description: "Execute a shell command in a persistent session. Working directory, " +
			"environment variables and background jobs carry over between calls. " +
			"Send 'terminate_session' to restart the session from scratch.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "command", Type: "string", Description: "Shell command to execute", Required: true},
			{Name: "timeout_seconds", Type: "number", Description: "Deadline for this command in seconds (default 20)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			command, _ := params["command"].(string)

			req := shell.CommandRequest{Command: command}
			if raw, ok := params["timeout_seconds"].(float64); ok && raw > 0 {
				req.Timeout = time.Duration(raw * float64(time.Second))
			}

			res, err := t.Run(ctx, req)
			if err != nil {
				return nil, err
			}
			return FormatResult(res), nil
		},
	}
}

// FormatResult renders a command result as text for the model
func FormatResult(res CommandResult) string {
	stdout := strings.TrimSpace(res.Stdout)
	stderr := strings.TrimSpace(res.Stderr)

	switch res.Status {
	case StatusTimedOut:
		msg := fmt.Sprintf("error: command timed out after %s; it may still be running in the session", res.Duration.Round(time.Millisecond))
		return appendStreams(msg, stdout, stderr)
	case StatusSessionDead:
		return appendStreams("error: the shell session died while running the command", stdout, stderr)
	}

	if stderr != "" {
		if stdout == "" {
			return withExitCode(res, "command error (stderr):\n"+stderr)
		}
		return withExitCode(res, "stdout:\n"+stdout+"\nstderr:\n"+stderr)
	}
	if stdout == "" {
		if res.ExitCode != nil && *res.ExitCode != 0 {
			return fmt.Sprintf("command failed with exit code %d and no output", *res.ExitCode)
		}
		return "command succeeded with no output"
	}
	return withExitCode(res, stdout)
}

func withExitCode(res CommandResult, body string) string {
	if res.ExitCode != nil && *res.ExitCode != 0 {
		return fmt.Sprintf("%s\nexit code: %d", body, *res.ExitCode)
	}
	return body
}

func appendStreams(msg, stdout, stderr string) string {
	if stdout != "" {
		msg += "\npartial stdout:\n" + stdout
	}
	if stderr != "" {
		msg += "\npartial stderr:\n" + stderr
	}
	return msg
}
