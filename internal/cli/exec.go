package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harlan/vesper/pkg/shell"
	"github.com/harlan/vesper/pkg/shelltool"
)

var execTimeoutSeconds int

var execCmd = &cobra.Command{
	Use:   "exec \"<command>\"",
	Short: "Execute a single command through the persistent session",
	Long: `Execute a single shell command through the persistent session and
print the framed result. Useful for debugging the session layer without
involving the model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().IntVar(&execTimeoutSeconds, "timeout", 0, "command timeout in seconds (0 uses the configured default)")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")

	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	req := shell.CommandRequest{Command: command}
	if execTimeoutSeconds > 0 {
		req.Timeout = time.Duration(execTimeoutSeconds) * time.Second
	}

	result, err := a.shellTool.Run(context.Background(), req)
	if err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), shelltool.FormatResult(result))

	if result.Status != shelltool.StatusCompleted {
		return fmt.Errorf("command did not complete: %s", result.Status)
	}

	return nil
}
