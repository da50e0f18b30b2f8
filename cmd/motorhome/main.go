// Command motorhome generates homing PLCs for Delta Tau motion controllers
// from homing definitions and converts v1 generator scripts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/internal/logging"
)

const (
	envLogLevel = "MOTORHOME_LOG_LEVEL"
	envOutDir   = "MOTORHOME_OUT_DIR"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	logLevel string
	envFile  string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "motorhome",
		Short:         "Generate homing PLCs for Delta Tau motion controllers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level overriding the definition and "+envLogLevel)
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Environment file to load (default .env when present)")

	cmd.AddCommand(
		generateCmd(opts),
		checkCmd(opts),
		verifyCmd(opts),
		sequencesCmd(),
		convertCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "motorhome %s\n", version)
			},
		},
	)
	return cmd
}

// loadEnv reads an environment file without overriding variables that are
// already set. A missing default .env is not an error.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// setupLogger builds the logger for a command. The level comes from the
// flag, then the environment, then the definition.
func setupLogger(opts *globalOptions, cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	if level := firstNonEmpty(opts.logLevel, os.Getenv(envLogLevel)); level != "" {
		cfg.Level = level
	}
	return logging.Setup(cfg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
