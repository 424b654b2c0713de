package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harlan/vesper/internal/config"
	"github.com/harlan/vesper/pkg/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Vesper HTTP server",
	Long: `Run the Vesper HTTP server in the foreground.
The server exposes POST /execute for agent runs, GET /health and
GET /metrics, and stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.retention.Start(); err != nil {
		return fmt.Errorf("failed to start transcript retention: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.ServerOptions{
		Host:               a.cfg.Server.Host,
		Port:               a.cfg.Server.Port,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
		DefaultTimeout:     time.Duration(a.cfg.Server.TimeoutSeconds) * time.Second,
	}, a.runner, a.agentConfig(), a.metrics, a.log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// Hot-reload agent settings on config file changes. Shell and server
	// settings still require a restart.
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), a.log.GetZerolog(), func(cfg *config.Config) {
		server.SetAgentConfig(agentConfigFrom(cfg))
		if err := a.log.SetLevel(cfg.Logging.Level); err != nil {
			a.log.Warn().Err(err).Msg("Ignoring invalid log level from config reload")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		a.log.Warn().Err(err).Msg("Config watcher not started")
	}
	defer watcher.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Shutting down")
		if err := server.Stop(); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
