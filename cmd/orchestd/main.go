// Orchestd is an agent-orchestration daemon exposed over MCP stdio.
//
// It selects executors from a configured pool, invokes them under retry
// and circuit-breaker controls, runs dependency-ordered task graphs, and
// advances persisted feature workflows as results arrive.
//
// Usage:
//
//	# Start the MCP server on stdio
//	orchestd serve
//
//	# Start with an explicit config file
//	orchestd serve --config /etc/orchestd/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/config"
	"github.com/fyrsmithlabs/orchestd/internal/logging"
	"github.com/fyrsmithlabs/orchestd/internal/mcp"
	"github.com/fyrsmithlabs/orchestd/internal/orchestrator"
	"github.com/fyrsmithlabs/orchestd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "orchestd",
	Short:   "Agent orchestration daemon",
	Long:    "orchestd selects, invokes, and supervises AI agent executors, and drives feature workflows through their phases over MCP.",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithFile(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("configuration valid: %d executor(s), %d phase(s)\n",
			len(cfg.Executors), len(cfg.Workflow.Phases))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orchestd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/orchestd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Observability.EnableTelemetry,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("orchestrator setup: %w", err)
	}

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "orchestd",
		Version: version,
		Logger:  logger,
	}, orch)
	if err != nil {
		return fmt.Errorf("mcp server setup: %w", err)
	}

	// Pick up executors added to the config file without a restart.
	go func() {
		err := config.Watch(ctx, configPath, logger, func(updated *config.Config) {
			if err := orch.ApplyExecutors(updated); err != nil {
				logger.Warn("failed to apply reloaded executors", zap.Error(err))
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	logger.Info("orchestd starting",
		zap.String("version", version),
		zap.Int("executors", len(cfg.Executors)),
		zap.Strings("phases", cfg.Workflow.Phases))

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("orchestd shutdown complete")
	return nil
}
