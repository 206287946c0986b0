// Package cmd provides the smartmail CLI commands.
package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tanay2104/Smart-Email/config"
	"github.com/Tanay2104/Smart-Email/pkg/logger"
)

// Global flags and state.
var (
	logLevel   string
	consoleLog bool

	// cfg holds the loaded configuration.
	cfg *config.Config

	// zlog is the process logger, set up before any command runs.
	zlog zerolog.Logger
)

// NewRootCommand creates the smartmail root command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "smartmail",
		Short: "Rank a mailbox by estimated importance",
		Long: `smartmail scores every message of a Maildir tree and keeps the most important ones.

Each message gets a rule score (sender domain, keywords, documents, recency),
a topic from the domain catalog, and, when the rule score passes the gate,
a verdict from a language model served over an OpenAI-compatible API.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&consoleLog, "console", false, "Human-readable log output")

	root.AddCommand(NewTriageCommand())
	root.AddCommand(NewBuildIndexCommand())
	root.AddCommand(NewScoreCommand())
	root.AddCommand(NewServeCommand())
	root.AddCommand(NewPruneCommand())

	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	cfg = loaded

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Output:  os.Stderr,
		Service: "smartmail",
		Console: consoleLog,
	})
	zlog = *logger.Default()
	return nil
}
