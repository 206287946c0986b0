package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// =============================================================================
// Result Adapter (ranked output per run)
// =============================================================================

const resultSchema = `
CREATE TABLE IF NOT EXISTS triage_runs (
	run_id     TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	processed  INTEGER NOT NULL,
	failed     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS triage_results (
	run_id            TEXT NOT NULL REFERENCES triage_runs(run_id) ON DELETE CASCADE,
	rank              INTEGER NOT NULL,
	path              TEXT NOT NULL,
	subject           TEXT NOT NULL,
	from_addr         TEXT NOT NULL,
	date              TEXT NOT NULL,
	domain            TEXT NOT NULL,
	domain_candidates JSONB NOT NULL DEFAULT '[]',
	candidate_names   TEXT[] NOT NULL DEFAULT '{}',
	rule_score        DOUBLE PRECISION NOT NULL,
	llm_score         DOUBLE PRECISION NOT NULL,
	combined_score    DOUBLE PRECISION NOT NULL,
	task              TEXT NOT NULL,
	reason            TEXT NOT NULL,
	due               TEXT,
	refined           BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, rank)
);
CREATE INDEX IF NOT EXISTS idx_triage_results_candidate_names ON triage_results USING GIN (candidate_names);`

// ResultAdapter implements out.ResultSink using sqlx.
type ResultAdapter struct {
	db *sqlx.DB
}

var (
	_ out.ResultSink   = (*ResultAdapter)(nil)
	_ out.ResultReader = (*ResultAdapter)(nil)
)

// NewResultAdapter creates a new ResultAdapter.
func NewResultAdapter(db *sqlx.DB) *ResultAdapter {
	return &ResultAdapter{db: db}
}

// EnsureSchema creates the run tables when missing.
func (a *ResultAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, resultSchema); err != nil {
		return apperr.DatabaseError("create result schema", err)
	}
	return nil
}

// resultRow represents the database row.
type resultRow struct {
	RunID            string         `db:"run_id"`
	Rank             int            `db:"rank"`
	Path             string         `db:"path"`
	Subject          string         `db:"subject"`
	From             string         `db:"from_addr"`
	Date             string         `db:"date"`
	Domain           string         `db:"domain"`
	DomainCandidates []byte         `db:"domain_candidates"` // JSONB
	CandidateNames   pq.StringArray `db:"candidate_names"`
	RuleScore        float64        `db:"rule_score"`
	LLMScore         float64        `db:"llm_score"`
	CombinedScore    float64        `db:"combined_score"`
	Task             string         `db:"task"`
	Reason           string         `db:"reason"`
	Due              sql.NullString `db:"due"`
	Refined          bool           `db:"refined"`
}

func newResultRow(runID string, rank int, r *domain.ResultRecord) (*resultRow, error) {
	candidates := r.DomainCandidates
	if candidates == nil {
		candidates = []domain.DomainCandidate{}
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode domain candidates: %w", err)
	}

	row := &resultRow{
		RunID:            runID,
		Rank:             rank,
		Path:             r.Path,
		Subject:          r.Subject,
		From:             r.From,
		Date:             r.Date,
		Domain:           r.Domain,
		DomainCandidates: candidatesJSON,
		CandidateNames:   r.CandidateNames(),
		RuleScore:        r.RuleScore,
		LLMScore:         r.LLMScore,
		CombinedScore:    r.CombinedScore,
		Task:             r.Task,
		Reason:           r.Reason,
		Refined:          r.Refined,
	}
	if r.Due != nil {
		row.Due = sql.NullString{String: *r.Due, Valid: true}
	}
	return row, nil
}

func (r *resultRow) toEntity() (*domain.ResultRecord, error) {
	rec := &domain.ResultRecord{
		Path:          r.Path,
		Subject:       r.Subject,
		From:          r.From,
		Date:          r.Date,
		Domain:        r.Domain,
		RuleScore:     r.RuleScore,
		LLMScore:      r.LLMScore,
		CombinedScore: r.CombinedScore,
		Task:          r.Task,
		Reason:        r.Reason,
		Refined:       r.Refined,
		Seq:           int64(r.Rank),
	}
	// Parse JSONB candidates
	rec.DomainCandidates = []domain.DomainCandidate{}
	if len(r.DomainCandidates) > 0 {
		if err := json.Unmarshal(r.DomainCandidates, &rec.DomainCandidates); err != nil {
			return nil, fmt.Errorf("failed to parse domain candidates: %w", err)
		}
	}
	if r.Due.Valid {
		due := r.Due.String
		rec.Due = &due
	}
	return rec, nil
}

// Write stores the run and its ranked records in one transaction.
func (a *ResultAdapter) Write(ctx context.Context, run out.RunInfo, records []*domain.ResultRecord) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin result write", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO triage_runs (run_id, started_at, processed, failed) VALUES ($1, $2, $3, $4)`,
		run.RunID, run.StartedAt, run.Processed, run.Failed,
	)
	if err != nil {
		return apperr.DatabaseError("insert run", err)
	}

	query := `
		INSERT INTO triage_results (
			run_id, rank, path, subject, from_addr, date, domain, domain_candidates, candidate_names,
			rule_score, llm_score, combined_score, task, reason, due, refined
		) VALUES (
			:run_id, :rank, :path, :subject, :from_addr, :date, :domain, :domain_candidates, :candidate_names,
			:rule_score, :llm_score, :combined_score, :task, :reason, :due, :refined
		)`

	for i, r := range records {
		row, err := newResultRow(run.RunID, i+1, r)
		if err != nil {
			return apperr.InternalWithError(err)
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return apperr.DatabaseError("insert result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit result write", err)
	}
	return nil
}

// LatestRun returns the most recent run's records in rank order.
func (a *ResultAdapter) LatestRun(ctx context.Context) ([]*domain.ResultRecord, error) {
	var run struct {
		RunID     string    `db:"run_id"`
		StartedAt time.Time `db:"started_at"`
	}
	err := a.db.GetContext(ctx, &run,
		`SELECT run_id, started_at FROM triage_runs ORDER BY started_at DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("triage run")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get latest run", err)
	}

	var rows []resultRow
	err = a.db.SelectContext(ctx, &rows,
		`SELECT * FROM triage_results WHERE run_id = $1 ORDER BY rank`, run.RunID)
	if err != nil {
		return nil, apperr.DatabaseError("list results", err)
	}

	records := make([]*domain.ResultRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toEntity()
		if err != nil {
			return nil, apperr.DatabaseError("decode result", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
