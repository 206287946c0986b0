package classification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/core/agent/llm"
	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
	"github.com/Tanay2104/Smart-Email/pkg/metrics"
)

// =============================================================================
// Score Pipeline
// =============================================================================

// Refiner produces an importance verdict for one message.
type Refiner interface {
	Refine(ctx context.Context, in llm.RefineInput) domain.Verdict
}

// ScorePipelineConfig holds the gate and combination parameters.
type ScorePipelineConfig struct {
	// GateThreshold: refine with the model only if rule score > this value
	GateThreshold float64 // Default: 0.3

	// Combined = RuleWeight*(rule*100) + LLMWeight*llm
	RuleWeight float64 // Default: 0.7
	LLMWeight  float64 // Default: 0.3

	// CandidateCount: domain candidates kept per message
	CandidateCount int // Default: 3
}

// DefaultScorePipelineConfig returns the default configuration
func DefaultScorePipelineConfig() *ScorePipelineConfig {
	return &ScorePipelineConfig{
		GateThreshold:  0.3,
		RuleWeight:     0.7,
		LLMWeight:      0.3,
		CandidateCount: DefaultCandidateCount,
	}
}

// ScorePipelineDeps holds dependencies for creating a ScorePipeline.
type ScorePipelineDeps struct {
	Embedder   out.Embedder
	Classifier *DomainClassifier
	Scorer     *RuleScorer
	Refiner    Refiner
	Logger     zerolog.Logger
}

// ScorePipeline turns one message into a result record:
//
//	embed → classify domain → rule score → gate → refine → combine
type ScorePipeline struct {
	config     *ScorePipelineConfig
	embedder   out.Embedder
	classifier *DomainClassifier
	scorer     *RuleScorer
	refiner    Refiner
	log        zerolog.Logger
}

// NewScorePipeline creates a new pipeline.
func NewScorePipeline(deps *ScorePipelineDeps, config *ScorePipelineConfig) *ScorePipeline {
	if config == nil {
		config = DefaultScorePipelineConfig()
	}
	return &ScorePipeline{
		config:     config,
		embedder:   deps.Embedder,
		classifier: deps.Classifier,
		scorer:     deps.Scorer,
		refiner:    deps.Refiner,
		log:        deps.Logger.With().Str("component", "score_pipeline").Logger(),
	}
}

// Process scores a single message. Only structural errors (dimension
// mismatch, broken catalog) are returned; model failures degrade in place.
func (p *ScorePipeline) Process(ctx context.Context, msg *domain.Message) (*domain.ResultRecord, error) {
	if msg == nil {
		msg = &domain.Message{}
	}

	candidates, err := p.classify(ctx, msg)
	if err != nil {
		return nil, err
	}
	topDomain := TopDomain(candidates)

	rule := p.scorer.Score(msg)

	var verdict domain.Verdict
	refined := rule > p.config.GateThreshold
	if refined {
		verdict = p.refiner.Refine(ctx, llm.RefineInput{
			Subject: msg.Subject,
			Body:    msg.Body,
			Domain:  topDomain,
			From:    msg.From,
		})
	}
	metrics.IncrementGate(refined)

	combined := p.config.RuleWeight*(rule*100) + p.config.LLMWeight*verdict.Importance
	metrics.ObserveCombinedScore(combined)

	if candidates == nil {
		candidates = []domain.DomainCandidate{}
	}

	return &domain.ResultRecord{
		Path:             msg.Path,
		Subject:          msg.Subject,
		From:             msg.From,
		Date:             msg.DateString(),
		Domain:           topDomain,
		DomainCandidates: candidates,
		RuleScore:        rule,
		LLMScore:         verdict.Importance,
		CombinedScore:    combined,
		Task:             verdict.Task,
		Reason:           verdict.Reason,
		Due:              verdict.Due,
		Refined:          refined,
	}, nil
}

// classify embeds the message and looks up its domain. Embedding failures
// leave the message unclassified; a dimension mismatch is returned.
func (p *ScorePipeline) classify(ctx context.Context, msg *domain.Message) ([]domain.DomainCandidate, error) {
	vec, err := p.embedder.Embed(ctx, msg.Text())
	if err != nil {
		p.log.Warn().Err(err).Str("path", msg.Path).Msg("embedding failed, domain unknown")
		return nil, nil
	}

	candidates, err := p.classifier.Classify(ctx, vec, p.config.CandidateCount)
	if err != nil {
		if apperr.IsFatal(err) {
			return nil, err
		}
		p.log.Warn().Err(err).Str("path", msg.Path).Msg("domain lookup failed, domain unknown")
		return nil, nil
	}
	return candidates, nil
}
