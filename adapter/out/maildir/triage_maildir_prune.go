package maildir

import (
	"context"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// DefaultRetentionDays is how long messages are kept by Prune.
const DefaultRetentionDays = 20

// PruneOptions configures a retention pass.
type PruneOptions struct {
	Days   int
	DryRun bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// PruneReport summarizes a retention pass.
type PruneReport struct {
	Scanned int      `json:"scanned"`
	Deleted int      `json:"deleted"`
	Expired []string `json:"expired"`
	DryRun  bool     `json:"dry_run"`
}

// Prune removes messages under cur/ and new/ folders older than the
// retention window. The Date header decides the age, with the file mtime
// as fallback when the header is absent. Files that cannot be read or whose
// date cannot be parsed are kept.
func Prune(ctx context.Context, root string, opts PruneOptions, log zerolog.Logger) (*PruneReport, error) {
	log = log.With().Str("component", "maildir_prune").Logger()
	if opts.Days <= 0 {
		opts.Days = DefaultRetentionDays
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().Add(-time.Duration(opts.Days) * 24 * time.Hour)

	if _, err := os.Stat(root); err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("cannot read maildir root %s", root)).WithError(err)
	}

	report := &PruneReport{DryRun: opts.DryRun}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Base(filepath.Dir(path)) {
		case "cur", "new":
		default:
			return nil
		}

		report.Scanned++
		date, ok := messageDate(path, d)
		if !ok || !date.Before(cutoff) {
			return nil
		}

		report.Expired = append(report.Expired, path)
		if opts.DryRun {
			log.Info().Str("path", path).Time("date", date).Msg("dry run: would delete")
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not delete expired message")
			return nil
		}
		report.Deleted++
		return nil
	})
	if err != nil {
		return report, err
	}

	log.Info().
		Int("scanned", report.Scanned).
		Int("deleted", report.Deleted).
		Int("expired", len(report.Expired)).
		Bool("dry_run", opts.DryRun).
		Msg("retention pass finished")
	return report, nil
}

// messageDate reads only the header block. ok is false when the date is
// unknown and the file must be kept.
func messageDate(path string, d fs.DirEntry) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	m, err := mail.ReadMessage(f)
	if err != nil {
		return time.Time{}, false
	}

	raw := m.Header.Get("Date")
	if raw == "" {
		info, err := d.Info()
		if err != nil {
			return time.Time{}, false
		}
		return info.ModTime(), true
	}

	t, err := mail.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
