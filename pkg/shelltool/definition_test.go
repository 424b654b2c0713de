package shelltool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlan/vesper/pkg/toolexecutor"
)

func TestDefinitionRegisters(t *testing.T) {
	tool := newTestTool(t, nil)
	te := toolexecutor.New()

	require.NoError(t, te.RegisterTool(tool.Definition()))

	def := te.GetTool(ToolName)
	require.NotNil(t, def)
	assert.Equal(t, ToolName, def.Name)

	schema := def.InputSchema()
	assert.Contains(t, schema["properties"].(map[string]interface{}), "command")
	assert.Equal(t, []string{"command"}, schema["required"])
}

func TestDefinitionExecutesThroughExecutor(t *testing.T) {
	tool := newTestTool(t, nil)
	te := toolexecutor.New()
	require.NoError(t, te.RegisterTool(tool.Definition()))

	res := te.Execute(context.Background(), ToolName, map[string]interface{}{
		"command": "echo via-executor",
	}, 30*time.Second)

	require.True(t, res.Success, "executor error: %s", res.Error)
	assert.Contains(t, res.Output.(string), "via-executor")
}

func TestFormatResult(t *testing.T) {
	code := func(c int) *int { return &c }

	tests := []struct {
		name string
		res  CommandResult
		want string
	}{
		{
			name: "stdout only",
			res:  CommandResult{ExitCode: code(0), Stdout: "hello\n", Status: StatusCompleted},
			want: "hello",
		},
		{
			name: "stderr only",
			res:  CommandResult{ExitCode: code(1), Stderr: "boom\n", Status: StatusCompleted},
			want: "command error (stderr):\nboom\nexit code: 1",
		},
		{
			name: "both streams",
			res:  CommandResult{ExitCode: code(0), Stdout: "out\n", Stderr: "warn\n", Status: StatusCompleted},
			want: "stdout:\nout\nstderr:\nwarn",
		},
		{
			name: "no output success",
			res:  CommandResult{ExitCode: code(0), Status: StatusCompleted},
			want: "command succeeded with no output",
		},
		{
			name: "no output failure",
			res:  CommandResult{ExitCode: code(7), Status: StatusCompleted},
			want: "command failed with exit code 7 and no output",
		},
		{
			name: "timeout with partial output",
			res:  CommandResult{Stdout: "partial\n", Duration: 2 * time.Second, Status: StatusTimedOut},
			want: "error: command timed out after 2s; it may still be running in the session\npartial stdout:\npartial",
		},
		{
			name: "session death",
			res:  CommandResult{Status: StatusSessionDead},
			want: "error: the shell session died while running the command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatResult(tt.res))
		})
	}
}
