package cmd

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Tanay2104/Smart-Email/adapter/out/maildir"
	"github.com/Tanay2104/Smart-Email/internal/bootstrap"
)

// NewScoreCommand creates the score command.
func NewScoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <message-file>...",
		Short: "Score individual message files",
		Long: `Parse and score the given RFC 5322 message files and print one JSON result
per file. Nothing is written to the result sinks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScore,
	}
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline, err := deps.NewPipeline(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, path := range args {
		msg, err := maildir.ParseFile(path)
		if err != nil {
			zlog.Warn().Err(err).Str("path", path).Msg("skipping unparsable message")
			continue
		}
		record, err := pipeline.Process(ctx, msg)
		if err != nil {
			return err
		}
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}
