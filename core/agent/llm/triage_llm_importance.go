package llm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/cache"
	"github.com/Tanay2104/Smart-Email/pkg/metrics"
)

const (
	maxPromptSubject = 200
	maxPromptBody    = 2000

	reasonUnparsable = "LLM produced unparsable output"
)

const importancePrompt = `You are a smart executive assistant.
Your Goal: Identify important emails and ignore spam/noise.

RULES for Importance Scoring:
1.  **College/Clubs:** If the email is from a college tech team, student club, hackathon, or mass promotional recruitment, mark importance < 20 and task as "Archive".
2.  **Real Offers:** Only mark "Internship/Job" as HIGH importance (> 80) if it is a direct interview invite or an official offer letter addressed specifically to me, from a reputed company or Professor.
3. **CONTENT CHECK**: If the email is selling something, announcing a hackathon, or a generic club recruitment, importance < 30.
4. **General:** Promotional emails, newsletters, and automated notifications are not at all importance and should have importance < 5.

Output ONLY valid JSON with these keys:
{"importance": <number 0-100>, "task": "<one-line actionable task>", "reason": "<short reason>", "due": "<YYYY-MM-DD or null>"}

Email Subject:
%s

Email Body:
%s

Context: Domain: %s; From: %s
`

// RefineInput is what the model sees about one message.
type RefineInput struct {
	Subject string
	Body    string
	Domain  string
	From    string
}

type RefinerOptions struct {
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	// Cache is optional; only verdicts parsed from model output are stored.
	Cache out.VerdictCache
}

func DefaultRefinerOptions() RefinerOptions {
	return RefinerOptions{
		MaxTokens:   256,
		Temperature: 0,
		Timeout:     600 * time.Second,
	}
}

// ImportanceRefiner asks the model for an importance verdict. It never
// returns an error: every failure degrades to a low-importance default.
type ImportanceRefiner struct {
	completer out.Completer
	opts      RefinerOptions
	log       zerolog.Logger
}

func NewImportanceRefiner(completer out.Completer, opts RefinerOptions, log zerolog.Logger) *ImportanceRefiner {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 256
	}
	return &ImportanceRefiner{
		completer: completer,
		opts:      opts,
		log:       log.With().Str("component", "refiner").Logger(),
	}
}

// Refine runs one model round-trip for in.
func (r *ImportanceRefiner) Refine(ctx context.Context, in RefineInput) domain.Verdict {
	var key string
	if r.opts.Cache != nil {
		key = cache.Key(in.Subject, in.Body, in.Domain, in.From)
		if v, ok, err := r.opts.Cache.GetVerdict(ctx, key); err != nil {
			r.log.Debug().Err(err).Msg("verdict cache read failed")
		} else if ok {
			metrics.IncrementVerdict("cached")
			return *v
		}
	}

	prompt := BuildImportancePrompt(in)
	raw, err := r.completer.Complete(ctx, prompt, out.CompletionOptions{
		MaxTokens:   r.opts.MaxTokens,
		Temperature: r.opts.Temperature,
		Timeout:     r.opts.Timeout,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("subject", in.Subject).Msg("importance refinement failed")
		metrics.IncrementVerdict("llm_failure")
		return domain.DefaultVerdict(fmt.Sprintf("LLM failure: %v", err))
	}

	parsed, ok := ExtractJSON(raw)
	if !ok {
		r.log.Warn().Str("subject", in.Subject).Str("output", truncateRunes(raw, 200)).Msg("unparsable model output")
		metrics.IncrementVerdict("unparsable")
		return domain.DefaultVerdict(reasonUnparsable)
	}

	verdict := NormalizeVerdict(parsed)
	metrics.IncrementVerdict("ok")

	if r.opts.Cache != nil {
		if err := r.opts.Cache.SetVerdict(ctx, key, verdict); err != nil {
			r.log.Debug().Err(err).Msg("verdict cache write failed")
		}
	}
	return verdict
}

// BuildImportancePrompt fills the prompt template, truncating subject and body.
func BuildImportancePrompt(in RefineInput) string {
	return fmt.Sprintf(importancePrompt,
		truncateRunes(in.Subject, maxPromptSubject),
		truncateRunes(in.Body, maxPromptBody),
		in.Domain,
		in.From,
	)
}

// NormalizeVerdict coerces a parsed object into a well-formed verdict.
func NormalizeVerdict(parsed map[string]any) domain.Verdict {
	v := domain.Verdict{
		Importance: coerceImportance(parsed["importance"]),
		Task:       truncateRunes(coerceString(parsed["task"]), domain.VerdictMaxTextLen),
		Reason:     truncateRunes(coerceString(parsed["reason"]), domain.VerdictMaxTextLen),
	}
	if due, ok := parsed["due"].(string); ok {
		v.Due = &due
	}
	return v
}

func coerceImportance(raw any) float64 {
	var f float64
	switch val := raw.(type) {
	case nil:
		return domain.VerdictDefaultImportance
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return domain.VerdictDefaultImportance
		}
		f = parsed
	case bool:
		if val {
			f = 1
		}
	default:
		return domain.VerdictDefaultImportance
	}

	if math.IsNaN(f) {
		return domain.VerdictDefaultImportance
	}
	return math.Max(0, math.Min(domain.VerdictMaxImportance, f))
}

func coerceString(raw any) string {
	switch val := raw.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
