package out

import (
	"context"
	"fmt"
	"time"

	"github.com/Tanay2104/Smart-Email/core/domain"
)

// MessageSource yields parsed messages one by one.
// Next returns io.EOF when exhausted and *ParseError for a skippable message.
type MessageSource interface {
	Next(ctx context.Context) (*domain.Message, error)
}

// ParseError reports a single message that could not be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RunInfo describes one batch run for result sinks.
type RunInfo struct {
	RunID     string
	StartedAt time.Time
	Processed int
	Failed    int
}

// ResultSink persists the ranked output of a run.
type ResultSink interface {
	Write(ctx context.Context, run RunInfo, records []*domain.ResultRecord) error
}

// ResultReader returns the ranked output of the most recent run.
type ResultReader interface {
	LatestRun(ctx context.Context) ([]*domain.ResultRecord, error)
}

// VerdictCache remembers refinement verdicts between runs.
type VerdictCache interface {
	GetVerdict(ctx context.Context, key string) (*domain.Verdict, bool, error)
	SetVerdict(ctx context.Context, key string, v domain.Verdict) error
}
