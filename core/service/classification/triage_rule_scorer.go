// Package classification scores, classifies and ranks messages.
package classification

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/core/domain"
)

// =============================================================================
// Rule Scorer
// =============================================================================

// Rule weights, in hundredths of the score so sums stay exact
const (
	WeightImportantDomain = 40
	WeightKeyword         = 15
	WeightDocument        = 10
	WeightRecent          = 20

	maxRuleScore = 100
)

// RuleConfig configures the heuristic scorer.
type RuleConfig struct {
	ImportantDomains   []string
	Keywords           []string
	DocumentExtensions []string
	RecencyWindow      time.Duration
}

// RuleScorer computes a deterministic importance score in [0, 1].
type RuleScorer struct {
	domains  map[string]struct{}
	keywords []string
	docExts  []string
	days     int
	log      zerolog.Logger
	now      func() time.Time
}

// NewRuleScorer creates a scorer. Keywords are deduplicated case-insensitively.
func NewRuleScorer(cfg RuleConfig, log zerolog.Logger) *RuleScorer {
	s := &RuleScorer{
		domains: make(map[string]struct{}, len(cfg.ImportantDomains)),
		days:    int(cfg.RecencyWindow / (24 * time.Hour)),
		log:     log.With().Str("component", "rule_scorer").Logger(),
		now:     time.Now,
	}
	if cfg.RecencyWindow <= 0 {
		s.days = 2
	}

	for _, d := range cfg.ImportantDomains {
		d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d, "@")))
		if d != "" {
			s.domains[d] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		s.keywords = append(s.keywords, k)
	}

	exts := cfg.DocumentExtensions
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	for _, e := range exts {
		s.docExts = append(s.docExts, strings.ToLower(e))
	}

	return s
}

// Score scores msg against the current time.
func (s *RuleScorer) Score(msg *domain.Message) float64 {
	return s.ScoreAt(msg, s.now())
}

// ScoreAt scores msg as of now.
func (s *RuleScorer) ScoreAt(msg *domain.Message, now time.Time) float64 {
	if msg == nil {
		return 0
	}

	var score int
	var signals []string

	if sd := msg.SenderDomain(); sd != "" {
		if _, ok := s.domains[sd]; ok {
			score += WeightImportantDomain
			signals = append(signals, "domain")
		}
	}

	text := strings.ToLower(msg.Subject + " " + msg.Body)
	for _, k := range s.keywords {
		if strings.Contains(text, k) {
			score += WeightKeyword
			signals = append(signals, "kw:"+k)
		}
	}

	if s.hasDocument(msg.Attachments) {
		score += WeightDocument
		signals = append(signals, "document")
	}

	if msg.Date != nil && s.isRecent(*msg.Date, now) {
		score += WeightRecent
		signals = append(signals, "recent")
	}

	if score > maxRuleScore {
		score = maxRuleScore
	}
	result := float64(score) / maxRuleScore
	s.log.Debug().Str("path", msg.Path).Float64("score", result).Strs("signals", signals).Msg("rule score")
	return result
}

// isRecent compares whole elapsed days, so the window edge covers the full
// last day. Future dates count as recent.
func (s *RuleScorer) isRecent(date, now time.Time) bool {
	elapsed := now.Sub(date)
	if elapsed < 0 {
		return true
	}
	return int(elapsed/(24*time.Hour)) <= s.days
}

func (s *RuleScorer) hasDocument(attachments []string) bool {
	for _, name := range attachments {
		lower := strings.ToLower(name)
		for _, ext := range s.docExts {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
	}
	return false
}
