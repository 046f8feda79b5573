// Package main provides the brief_agent CLI: one-shot runs, the HTTP API
// server and profile and trace inspection.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/logging"
)

// defaultUser is the profile used when --user is not given.
const defaultUser = "default"

type rootOptions struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "brief_agent",
		Short: "Personalized daily research briefs",
		Long: `brief_agent expands a topic into subtopics, gathers items from news, social,
web search and custom feeds, scores them against a learned preference profile
and composes a short cited brief.

Configuration is read from --config (or $BRIEF_CONFIG), then environment
variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			opts.cfg, opts.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging and detailed stage output")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newTokenCmd(opts),
		newProfileCmd(opts),
		newTraceCmd(opts),
	)
	return cmd
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
