package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ringline/ringline-server/internal/app"
	"github.com/ringline/ringline-server/internal/config"
	"github.com/ringline/ringline-server/internal/log"
)

// Populated via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	addrFlag   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ringline",
	Short: "Call orchestration server: 1:1 sessions, group calls, call links",
	RunE:  runServe, // default: run the server (same as "ringline serve")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling and orchestration server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("ringline %s (%s) %s\n", version, commit, runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	bootLog := log.New("info", false)

	cfg, usedPath, err := config.Load(bootLog, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := log.New(cfg.LogLevel, cfg.LogJSON)
	logger.Info().Str("config", usedPath).Str("version", version).Msg("starting ringline server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("listening")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
