package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Tanay2104/Smart-Email/adapter/out/maildir"
)

var (
	pruneMaildir string
	pruneDays    int
	pruneDryRun  bool
	pruneJSON    bool
)

// NewPruneCommand creates the prune command.
func NewPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete messages older than the retention window",
		Long: `Delete files under cur/ and new/ folders of the Maildir tree whose Date header
(or modification time, when the header is absent) is older than --days.

Files whose date cannot be read are kept.`,
		RunE: runPrune,
	}

	cmd.Flags().StringVar(&pruneMaildir, "maildir", "", "Maildir root (overrides SMARTMAIL_MAILDIR)")
	cmd.Flags().IntVar(&pruneDays, "days", maildir.DefaultRetentionDays, "Retention window in days")
	cmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "List expired messages without deleting them")
	cmd.Flags().BoolVar(&pruneJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runPrune(cmd *cobra.Command, args []string) error {
	root := cfg.MaildirPath
	if pruneMaildir != "" {
		root = pruneMaildir
	}

	report, err := maildir.Prune(cmd.Context(), root, maildir.PruneOptions{
		Days:   pruneDays,
		DryRun: pruneDryRun,
	}, zlog)
	if err != nil {
		return err
	}

	if pruneJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	verb := "Deleted"
	count := report.Deleted
	if report.DryRun {
		verb = "Would delete"
		count = len(report.Expired)
	}
	fmt.Printf("%s %d of %d messages older than %d days\n", verb, count, report.Scanned, pruneDays)
	return nil
}
