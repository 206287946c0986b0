package classification

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanay2104/Smart-Email/core/agent/llm"
	"github.com/Tanay2104/Smart-Email/core/agent/rag"
	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// =============================================================================
// Test doubles
// =============================================================================

type memCatalog struct {
	rows map[int64]domain.CatalogEntry
	n    int
}

func (m *memCatalog) Count(ctx context.Context) (int, error) { return m.n, nil }

func (m *memCatalog) Get(ctx context.Context, rowID int64) (*domain.CatalogEntry, error) {
	e, ok := m.rows[rowID]
	if !ok {
		return nil, apperr.NotFound("catalog row")
	}
	return &e, nil
}

func (m *memCatalog) Fingerprint(ctx context.Context) (string, error) { return "", nil }

var testDomains = []string{"academics", "jobs", "clubs", "finance"}

// newTestCatalog indexes one unit basis vector per name.
func newTestCatalog(t *testing.T, names ...string) *rag.Catalog {
	t.Helper()
	dim := len(names)
	ix := rag.NewFlatIndex(dim)
	store := &memCatalog{rows: map[int64]domain.CatalogEntry{}, n: dim}
	for i, name := range names {
		require.NoError(t, ix.Add(basis(dim, i)))
		store.rows[int64(i+1)] = domain.CatalogEntry{RowID: int64(i + 1), Name: name, Description: name + " mail"}
	}
	cat, err := rag.OpenCatalog(context.Background(), ix, store)
	require.NoError(t, err)
	return cat
}

func basis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

type countingRefiner struct {
	verdict domain.Verdict
	calls   int
	inputs  []llm.RefineInput
}

func (r *countingRefiner) Refine(ctx context.Context, in llm.RefineInput) domain.Verdict {
	r.calls++
	r.inputs = append(r.inputs, in)
	return r.verdict
}

func staticEmbedder(vec []float32) out.Embedder {
	return out.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return vec, nil
	})
}

func testRuleConfig() RuleConfig {
	return RuleConfig{
		ImportantDomains: []string{"iitb.ac.in"},
		Keywords:         []string{"deadline", "submit", "offer", "interview", "urgent", "due soon"},
		RecencyWindow:    48 * time.Hour,
	}
}

// =============================================================================
// Rule Scorer
// =============================================================================

func TestRuleScorerZero(t *testing.T) {
	s := NewRuleScorer(testRuleConfig(), zerolog.Nop())
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -30)

	msgs := []*domain.Message{
		nil,
		{},
		{Subject: "weekly newsletter", From: "news@letters.com", Date: &old},
		{From: "no-at-sign", Attachments: []string{"photo.png"}, Date: &old},
	}
	for _, m := range msgs {
		assert.Equal(t, 0.0, s.ScoreAt(m, now))
	}
}

func TestRuleScorerFullMatch(t *testing.T) {
	s := NewRuleScorer(testRuleConfig(), zerolog.Nop())
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	date := now.Add(-time.Hour)

	msg := &domain.Message{
		From:        "Prof X <prof@IITB.ac.in>",
		Subject:     "Interview slot",
		Body:        "Please submit the form.",
		Attachments: []string{"letter.PDF"},
		Date:        &date,
	}
	assert.InDelta(t, 1.0, s.ScoreAt(msg, now), 1e-9)
	assert.LessOrEqual(t, s.ScoreAt(msg, now), 1.0)
}

func TestRuleScorerComponents(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name string
		cfg  RuleConfig
		msg  *domain.Message
		want float64
	}{
		{
			name: "important domain only",
			msg:  &domain.Message{From: "a@iitb.ac.in"},
			want: 0.4,
		},
		{
			name: "keyword matched once despite repetition",
			msg:  &domain.Message{Subject: "DEADLINE", Body: "deadline deadline"},
			want: 0.15,
		},
		{
			name: "duplicate keywords in config count once",
			cfg:  RuleConfig{Keywords: []string{"offer", "Offer", "OFFER"}},
			msg:  &domain.Message{Body: "job offer"},
			want: 0.15,
		},
		{
			name: "keyword spanning subject and body",
			msg:  &domain.Message{Subject: "due", Body: "soon"},
			want: 0.15,
		},
		{
			name: "several pdfs count once",
			msg:  &domain.Message{Attachments: []string{"a.pdf", "b.pdf", "c.txt"}},
			want: 0.1,
		},
		{
			name: "window boundary inclusive",
			msg:  &domain.Message{Date: at(-48 * time.Hour)},
			want: 0.2,
		},
		{
			name: "last whole day of window",
			msg:  &domain.Message{Date: at(-71*time.Hour - 59*time.Minute)},
			want: 0.2,
		},
		{
			name: "just outside window",
			msg:  &domain.Message{Date: at(-72 * time.Hour)},
			want: 0,
		},
		{
			name: "document and recent sum exactly",
			msg:  &domain.Message{Attachments: []string{"a.pdf"}, Date: at(-time.Hour)},
			want: 0.3,
		},
		{
			name: "future date counts as recent",
			msg:  &domain.Message{Date: at(72 * time.Hour)},
			want: 0.2,
		},
		{
			name: "domain match is exact, not suffix",
			msg:  &domain.Message{From: "x@cse.iitb.ac.in"},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testRuleConfig()
			if tt.cfg.Keywords != nil {
				cfg.Keywords = tt.cfg.Keywords
			}
			s := NewRuleScorer(cfg, zerolog.Nop())
			assert.InDelta(t, tt.want, s.ScoreAt(tt.msg, now), 1e-9)
		})
	}
}

func TestRuleScorerBounds(t *testing.T) {
	s := NewRuleScorer(testRuleConfig(), zerolog.Nop())
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	words := []string{"deadline", "submit", "offer", "interview", "urgent", "due soon", "hello", "", "ÜBER"}
	froms := []string{"", "a@iitb.ac.in", "b@gmail.com", "@", "broken@", "x@IITB.AC.IN"}
	files := []string{"a.pdf", "b.PDF", "c.doc", "", ".pdf"}

	pick := func(list []string) string { return list[rng.Intn(len(list))] }

	for i := 0; i < 2000; i++ {
		msg := &domain.Message{}
		if rng.Intn(2) == 0 {
			msg.From = pick(froms)
		}
		if rng.Intn(2) == 0 {
			msg.Subject = strings.Repeat(pick(words)+" ", rng.Intn(4))
		}
		if rng.Intn(2) == 0 {
			for j := rng.Intn(8); j > 0; j-- {
				msg.Body += pick(words) + " "
			}
		}
		for j := rng.Intn(3); j > 0; j-- {
			msg.Attachments = append(msg.Attachments, pick(files))
		}
		if rng.Intn(2) == 0 {
			d := now.Add(time.Duration(rng.Intn(240)-120) * time.Hour)
			msg.Date = &d
		}

		score := s.ScoreAt(msg, now)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

// =============================================================================
// Domain Classifier
// =============================================================================

func TestDomainClassifierExactMatch(t *testing.T) {
	cat := newTestCatalog(t, testDomains...)
	c := NewDomainClassifier(cat)

	for i, name := range testDomains {
		cands, err := c.Classify(context.Background(), basis(len(testDomains), i), 3)
		require.NoError(t, err)
		require.NotEmpty(t, cands)
		assert.Equal(t, name, cands[0].Name)
		assert.InDelta(t, 1.0, cands[0].Score, 1e-6)
		for _, other := range cands[1:] {
			assert.Less(t, other.Score, cands[0].Score)
		}
	}
}

func TestDomainClassifierDimensionMismatch(t *testing.T) {
	c := NewDomainClassifier(newTestCatalog(t, testDomains...))

	for _, dim := range []int{0, 1, 3, 5, 384} {
		_, err := c.Classify(context.Background(), make([]float32, dim), 3)
		require.Error(t, err, "dim %d", dim)
		assert.True(t, errors.Is(err, apperr.ErrDimensionMismatch))
		assert.True(t, apperr.IsFatal(err))
	}
}

func TestDomainClassifierSkipsMissingAndNoMatch(t *testing.T) {
	ix := rag.NewFlatIndex(2)
	require.NoError(t, ix.Add([]float32{1, 0}))
	require.NoError(t, ix.Add([]float32{0, 1}))
	// row 1 is missing from the store
	store := &memCatalog{n: 2, rows: map[int64]domain.CatalogEntry{
		2: {RowID: 2, Name: "jobs"},
	}}
	cat, err := rag.OpenCatalog(context.Background(), ix, store)
	require.NoError(t, err)

	cands, err := NewDomainClassifier(cat).Classify(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "jobs", cands[0].Name)
}

func TestTopDomain(t *testing.T) {
	assert.Equal(t, "unknown", TopDomain(nil))
	assert.Equal(t, "jobs", TopDomain([]domain.DomainCandidate{{Name: "jobs"}, {Name: "clubs"}}))
}

// =============================================================================
// Score Pipeline
// =============================================================================

func newTestPipeline(t *testing.T, embedder out.Embedder, refiner Refiner) *ScorePipeline {
	t.Helper()
	return NewScorePipeline(&ScorePipelineDeps{
		Embedder:   embedder,
		Classifier: NewDomainClassifier(newTestCatalog(t, testDomains...)),
		Scorer:     NewRuleScorer(testRuleConfig(), zerolog.Nop()),
		Refiner:    refiner,
		Logger:     zerolog.Nop(),
	}, nil)
}

func TestScorePipelineGateClosed(t *testing.T) {
	refiner := &countingRefiner{verdict: domain.Verdict{Importance: 99}}
	p := newTestPipeline(t, staticEmbedder(basis(4, 0)), refiner)

	old := time.Now().AddDate(-1, 0, 0)
	today := time.Now()
	msgs := []*domain.Message{
		{Subject: "hello"},
		{Subject: "urgent", Date: &old},                // 0.15
		{Subject: "urgent offer", Date: &old},          // 0.30, not above the gate
		{Attachments: []string{"x.pdf"}, Date: &old},   // 0.1
		{Attachments: []string{"a.pdf"}, Date: &today}, // 0.1 + 0.2, not above the gate
	}

	for _, m := range msgs {
		rec, err := p.Process(context.Background(), m)
		require.NoError(t, err)
		assert.LessOrEqual(t, rec.RuleScore, 0.3)
		assert.Equal(t, 0.0, rec.LLMScore)
		assert.Empty(t, rec.Task)
		assert.Nil(t, rec.Due)
	}
	assert.Equal(t, 0, refiner.calls)
}

func TestScorePipelineGateOpenWithRefinerFailure(t *testing.T) {
	refiner := &countingRefiner{verdict: domain.DefaultVerdict("LLM failure: timeout")}
	p := newTestPipeline(t, staticEmbedder(basis(4, 1)), refiner)

	old := time.Now().AddDate(-1, 0, 0)
	msg := &domain.Message{From: "prof@iitb.ac.in", Subject: "deadline", Date: &old}

	rec, err := p.Process(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, 1, refiner.calls)
	assert.InDelta(t, 0.55, rec.RuleScore, 1e-9)
	assert.Equal(t, 10.0, rec.LLMScore)
	assert.InDelta(t, 0.7*rec.RuleScore*100+0.3*10.0, rec.CombinedScore, 1e-9)
	assert.Equal(t, "LLM failure: timeout", rec.Reason)
	assert.Equal(t, "jobs", refiner.inputs[0].Domain)
	assert.Equal(t, "prof@iitb.ac.in", refiner.inputs[0].From)
}

func TestScorePipelineCustomGateAndWeights(t *testing.T) {
	refiner := &countingRefiner{verdict: domain.Verdict{Importance: 50}}
	p := NewScorePipeline(&ScorePipelineDeps{
		Embedder:   staticEmbedder(basis(4, 0)),
		Classifier: NewDomainClassifier(newTestCatalog(t, testDomains...)),
		Scorer:     NewRuleScorer(testRuleConfig(), zerolog.Nop()),
		Refiner:    refiner,
		Logger:     zerolog.Nop(),
	}, &ScorePipelineConfig{GateThreshold: 0.1, RuleWeight: 0.5, LLMWeight: 0.5, CandidateCount: 1})

	rec, err := p.Process(context.Background(), &domain.Message{Subject: "urgent"})
	require.NoError(t, err)

	assert.Equal(t, 1, refiner.calls)
	assert.Len(t, rec.DomainCandidates, 1)
	assert.InDelta(t, 0.5*15+0.5*50, rec.CombinedScore, 1e-9)
}

func TestScorePipelineEmbeddingFailureDegrades(t *testing.T) {
	failing := out.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding server down")
	})
	p := newTestPipeline(t, failing, &countingRefiner{})

	rec, err := p.Process(context.Background(), &domain.Message{Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "unknown", rec.Domain)
	assert.Empty(t, rec.DomainCandidates)
	assert.NotNil(t, rec.DomainCandidates)
}

func TestScorePipelineDimensionMismatchIsFatal(t *testing.T) {
	p := newTestPipeline(t, staticEmbedder(make([]float32, 7)), &countingRefiner{})

	_, err := p.Process(context.Background(), &domain.Message{Subject: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsFatal(err))
}

func TestScorePipelineEmbedsSubjectAndBody(t *testing.T) {
	var got string
	embedder := out.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		got = text
		return basis(4, 2), nil
	})
	p := newTestPipeline(t, embedder, &countingRefiner{})

	rec, err := p.Process(context.Background(), &domain.Message{Subject: "Club fest", Body: "Join us"})
	require.NoError(t, err)
	assert.Equal(t, "Club fest\n\nJoin us", got)
	assert.Equal(t, "clubs", rec.Domain)
	assert.Equal(t, []string{"clubs", "academics", "jobs"}, rec.CandidateNames())
}

// =============================================================================
// Ranker
// =============================================================================

func TestRankStableTies(t *testing.T) {
	scores := []float64{10, 95, 40, 95, 20}
	records := make([]*domain.ResultRecord, len(scores))
	for i, s := range scores {
		records[i] = &domain.ResultRecord{Path: string(rune('a' + i)), CombinedScore: s, Seq: int64(i)}
	}

	top := Rank(records, 3)

	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].Path)
	assert.Equal(t, "d", top[1].Path)
	assert.Equal(t, "c", top[2].Path)
	assert.Equal(t, "a", records[0].Path, "input must not be reordered")
}

func TestRankUsesSeqNotSliceOrder(t *testing.T) {
	records := []*domain.ResultRecord{
		{Path: "late", CombinedScore: 50, Seq: 9},
		{Path: "early", CombinedScore: 50, Seq: 1},
	}
	top := Rank(records, 2)
	assert.Equal(t, "early", top[0].Path)
}

func TestRankDefaultsAndShortInput(t *testing.T) {
	records := make([]*domain.ResultRecord, 8)
	for i := range records {
		records[i] = &domain.ResultRecord{CombinedScore: float64(i), Seq: int64(i)}
	}
	assert.Len(t, Rank(records, 0), 5)
	assert.Len(t, Rank(records[:2], 5), 2)
	assert.Empty(t, Rank(nil, 3))
}

// =============================================================================
// End-to-end
// =============================================================================

func TestEndToEndNewsletterRanksLast(t *testing.T) {
	refiner := &countingRefiner{verdict: domain.Verdict{Importance: 85, Task: "Prepare"}}
	p := newTestPipeline(t, staticEmbedder(basis(4, 2)), refiner)

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newsletter := &domain.Message{From: "digest@newsletters.io", Subject: "weekly newsletter", Date: &old}
	today := time.Now()
	offer := &domain.Message{
		From:        "hr@iitb.ac.in",
		Subject:     "Interview and offer details",
		Attachments: []string{"offer.pdf"},
		Date:        &today,
	}

	var records []*domain.ResultRecord
	for i, m := range []*domain.Message{newsletter, offer} {
		rec, err := p.Process(context.Background(), m)
		require.NoError(t, err)
		rec.Seq = int64(i)
		records = append(records, rec)
	}

	nl := records[0]
	assert.Equal(t, 0.0, nl.RuleScore)
	assert.Equal(t, 0.0, nl.LLMScore)
	assert.Equal(t, 0.0, nl.CombinedScore)
	assert.Equal(t, old.Format(time.RFC3339), nl.Date)

	of := records[1]
	assert.InDelta(t, 1.0, of.RuleScore, 1e-9)
	assert.Equal(t, 85.0, of.LLMScore)
	assert.InDelta(t, 70+0.3*85, of.CombinedScore, 1e-9)
	assert.Equal(t, "Prepare", of.Task)
	assert.Equal(t, 1, refiner.calls)

	ranked := Rank(records, 5)
	require.Len(t, ranked, 2)
	assert.Same(t, of, ranked[0])
	assert.Same(t, nl, ranked[1])
}
