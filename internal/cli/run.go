package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harlan/vesper/pkg/agent"
)

var runSessionKey string

var runCmd = &cobra.Command{
	Use:   "run \"<task>\"",
	Short: "Run a one-shot agent task",
	Long: `Run a one-shot agent task. The model decides which shell commands
to execute, runs them in a persistent session, and prints its final answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSessionKey, "session", "cli", "session key for conversation continuity")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return fmt.Errorf("task cannot be empty")
	}

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.runner.Run(context.Background(), agent.RunParams{
		Prompt:     prompt,
		SessionKey: runSessionKey,
		Config:     a.agentConfig(),
	})
	if err != nil {
		return fmt.Errorf("agent run failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Response)

	if len(result.ToolCalls) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n(%d command(s) executed)\n", len(result.ToolCalls))
	}

	return nil
}
