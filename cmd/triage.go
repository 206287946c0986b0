package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Tanay2104/Smart-Email/adapter/in/worker"
	"github.com/Tanay2104/Smart-Email/adapter/out/maildir"
	"github.com/Tanay2104/Smart-Email/internal/bootstrap"
)

var (
	triageMaildir string
	triageOut     string
	triageTopN    int
	triageWorkers int
	triageJSON    bool
)

// NewTriageCommand creates the triage command.
func NewTriageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Score a Maildir tree and write the top messages",
		Long: `Score every message under the Maildir root and write the highest ranked ones
as a JSON array to the output file.

Unparsable messages are skipped and counted. A missing index, a catalog that
does not match it, or an embedding of the wrong size stops the run.`,
		RunE: runTriage,
	}

	cmd.Flags().StringVar(&triageMaildir, "maildir", "", "Maildir root (overrides SMARTMAIL_MAILDIR)")
	cmd.Flags().StringVar(&triageOut, "out", "", "Output file (overrides SMARTMAIL_OUT)")
	cmd.Flags().IntVarP(&triageTopN, "top", "n", 0, "Messages to keep (overrides SMARTMAIL_TOP_N)")
	cmd.Flags().IntVar(&triageWorkers, "workers", 0, "Concurrent workers (overrides WORKER_MAX)")
	cmd.Flags().BoolVar(&triageJSON, "json", false, "Print the run report as JSON")

	return cmd
}

func runTriage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if triageMaildir != "" {
		cfg.MaildirPath = triageMaildir
	}
	if triageOut != "" {
		cfg.OutputPath = triageOut
	}
	if triageTopN > 0 {
		cfg.TopN = triageTopN
	}
	if triageWorkers > 0 {
		cfg.WorkerMax = triageWorkers
	}

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline, err := deps.NewPipeline(ctx)
	if err != nil {
		return err
	}

	source, err := maildir.NewSource(cfg.MaildirPath, zlog)
	if err != nil {
		return err
	}

	report, err := deps.NewBatchRunner(pipeline).Run(ctx, source)
	if report == nil {
		return err
	}

	if triageJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
	} else {
		printReport(report, cfg.OutputPath)
	}
	return err
}

func printReport(report *worker.BatchReport, outPath string) {
	fmt.Printf("Run %s: %d processed, %d failed, %d refined in %s\n",
		report.RunID, report.Processed, report.Failed, report.Refined, report.Duration.Round(time.Millisecond))
	for i, r := range report.Top {
		fmt.Printf("%2d. %6.2f  %-10s  %s\n", i+1, r.CombinedScore, r.Domain, r.Subject)
		if r.Task != "" {
			fmt.Printf("              task: %s\n", r.Task)
		}
	}
	fmt.Printf("Wrote top %d to %s\n", len(report.Top), outPath)
}
