package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/core/service/classification"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
	"github.com/Tanay2104/Smart-Email/pkg/metrics"
)

// =============================================================================
// go-pkgz/pool based batch runner
// =============================================================================

// Processor scores a single message.
type Processor interface {
	Process(ctx context.Context, msg *domain.Message) (*domain.ResultRecord, error)
}

// BatchConfig holds batch runner configuration.
type BatchConfig struct {
	Workers int // concurrent pipeline workers
	TopN    int // records kept after ranking
}

// DefaultBatchConfig returns default batch configuration.
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		Workers: 4,
		TopN:    classification.DefaultTopN,
	}
}

// BatchReport summarizes one run.
type BatchReport struct {
	RunID     string                 `json:"run_id"`
	Processed int                    `json:"processed"`
	Failed    int                    `json:"failed"`
	Refined   int                    `json:"refined"`
	Top       []*domain.ResultRecord `json:"top"`
	StartedAt time.Time              `json:"started_at"`
	Duration  time.Duration          `json:"duration"`
}

// BatchRunner drains a message source through the scoring pipeline with a
// bounded worker pool, ranks the results and hands them to the sinks.
type BatchRunner struct {
	processor Processor
	sinks     []out.ResultSink
	config    *BatchConfig
	log       zerolog.Logger
}

// NewBatchRunner creates a new batch runner.
func NewBatchRunner(processor Processor, config *BatchConfig, log zerolog.Logger, sinks ...out.ResultSink) *BatchRunner {
	if config == nil {
		config = DefaultBatchConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.TopN <= 0 {
		config.TopN = classification.DefaultTopN
	}
	return &BatchRunner{
		processor: processor,
		sinks:     sinks,
		config:    config,
		log:       log.With().Str("component", "batch_runner").Logger(),
	}
}

// job is one message with its encounter order.
type job struct {
	seq int64
	msg *domain.Message
}

// batchState collects worker results.
type batchState struct {
	mu      sync.Mutex
	records []*domain.ResultRecord
	failed  int
	fatal   error
}

func (s *batchState) add(rec *domain.ResultRecord) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

func (s *batchState) fail() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// abort keeps the first structural error.
func (s *batchState) abort(err error) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.mu.Unlock()
}

// jobWorker implements pool.Worker for pipeline jobs.
type jobWorker struct {
	runner *BatchRunner
	state  *batchState
	runCtx context.Context
	cancel context.CancelFunc
}

// Do implements pool.Worker interface.
func (w *jobWorker) Do(_ context.Context, j *job) error {
	// jobs queued before an abort are drained without work
	if w.runCtx.Err() != nil {
		return nil
	}

	rec, err := w.runner.processor.Process(w.runCtx, j.msg)
	if err != nil {
		if apperr.IsFatal(err) {
			w.state.abort(err)
			w.cancel()
			return nil
		}
		w.state.fail()
		metrics.IncrementMessage("failed")
		w.runner.log.Warn().Err(err).Str("path", j.msg.Path).Msg("message failed")
		return nil
	}

	rec.Seq = j.seq
	w.state.add(rec)
	metrics.IncrementMessage("success")
	return nil
}

// Run processes every message of source. Per-message failures are counted
// and skipped; a structural error aborts the batch and is returned.
func (r *BatchRunner) Run(ctx context.Context, source out.MessageSource) (*BatchReport, error) {
	report := &BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := r.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Int("workers", r.config.Workers).Msg("batch started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &batchState{}
	worker := &jobWorker{runner: r, state: state, runCtx: runCtx, cancel: cancel}

	// The pool outlives runCtx so Close can drain queued jobs after an abort.
	poolCtx := context.WithoutCancel(ctx)
	wg := pool.New[*job](r.config.Workers, worker).WithContinueOnError()
	if err := wg.Go(poolCtx); err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}

	var seq int64
	for runCtx.Err() == nil {
		msg, err := source.Next(runCtx)
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *out.ParseError
		if errors.As(err, &perr) {
			state.fail()
			metrics.IncrementMessage("skipped")
			log.Warn().Err(perr.Err).Str("path", perr.Path).Msg("skipping unparsable message")
			continue
		}
		if err != nil {
			if runCtx.Err() == nil {
				state.abort(fmt.Errorf("read message: %w", err))
				cancel()
			}
			break
		}

		wg.Submit(&job{seq: seq, msg: msg})
		seq++
	}

	if err := wg.Close(poolCtx); err != nil {
		log.Warn().Err(err).Msg("worker pool closed with error")
	}

	if state.fatal != nil {
		log.Error().Err(state.fatal).Msg("batch aborted")
		return nil, state.fatal
	}
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("batch cancelled")
		return nil, err
	}

	for _, rec := range state.records {
		if rec.Refined {
			report.Refined++
		}
	}
	report.Processed = len(state.records)
	report.Failed = state.failed
	report.Top = classification.Rank(state.records, r.config.TopN)
	report.Duration = time.Since(report.StartedAt)

	run := out.RunInfo{
		RunID:     report.RunID,
		StartedAt: report.StartedAt,
		Processed: report.Processed,
		Failed:    report.Failed,
	}
	var sinkErrs []error
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, run, report.Top); err != nil {
			sinkErrs = append(sinkErrs, err)
		}
	}

	log.Info().
		Int("processed", report.Processed).
		Int("failed", report.Failed).
		Int("refined", report.Refined).
		Int("top", len(report.Top)).
		Dur("duration", report.Duration).
		Msg("batch finished")

	if err := errors.Join(sinkErrs...); err != nil {
		return report, fmt.Errorf("write results: %w", err)
	}
	return report, nil
}
