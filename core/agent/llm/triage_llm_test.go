package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "plain object",
			raw:  `{"importance": 42, "task": "reply"}`,
			want: map[string]any{"importance": 42.0, "task": "reply"},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"importance\": 7}\n```",
			want: map[string]any{"importance": 7.0},
		},
		{
			name: "prose around object",
			raw:  "Sure! Here is the result:\n{\"task\": \"Archive\"}\nHope this helps.",
			want: map[string]any{"task": "Archive"},
		},
		{
			name: "last object wins when first-to-last span fails",
			raw:  `draft {"importance": 1} then final {"importance": 90}`,
			want: map[string]any{"importance": 90.0},
		},
		{
			name: "broken object followed by good one",
			raw:  `{"importance": } and {"reason": "ok"}`,
			want: map[string]any{"reason": "ok"},
		},
		{
			name: "braces inside strings",
			raw:  `note } {"reason": "use {braces} and \"quotes\""} trailing }`,
			want: map[string]any{"reason": `use {braces} and "quotes"`},
		},
		{
			name: "nested object",
			raw:  `x {"a": {"b": 1}} y`,
			want: map[string]any{"a": map[string]any{"b": 1.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONFailures(t *testing.T) {
	inputs := []string{
		"",
		"no json here",
		"[1, 2, 3]",
		"{{{{",
		"}}}}{",
		`{"unterminated": "string}`,
		"```json\n```",
		"null",
	}

	for _, raw := range inputs {
		got, ok := ExtractJSON(raw)
		assert.False(t, ok, "input %q", raw)
		assert.Nil(t, got)
	}
}

func TestExtractJSONRoundTripWithNoise(t *testing.T) {
	objects := []map[string]any{
		{"importance": 12.5, "task": "", "reason": "newsletter", "due": nil},
		{"importance": 88.0, "task": "Prepare for interview", "reason": "direct invite", "due": "2024-05-01"},
		{"text": "has } and { inside", "n": 3.0},
	}
	noise := []struct{ prefix, suffix string }{
		{"", ""},
		{"Here you go:\n", "\nThanks"},
		{"```json\n", "\n```"},
		{"Answer: ", " -- end"},
	}

	for _, obj := range objects {
		data, err := json.Marshal(obj)
		require.NoError(t, err)
		for _, n := range noise {
			got, ok := ExtractJSON(n.prefix + string(data) + n.suffix)
			require.True(t, ok)
			assert.Equal(t, obj, got)
		}
	}
}

func TestExtractJSONNeverPanics(t *testing.T) {
	inputs := []string{
		"{\"a\":\"\\",
		"\\\\\\\"{",
		"{\"a\": \"\xff\xfe\"}",
		strings.Repeat("{", 1000),
		strings.Repeat("}", 1000),
		"{\"a\":1}}}}{{{{\"b\":2}",
	}
	for _, raw := range inputs {
		assert.NotPanics(t, func() { ExtractJSON(raw) })
	}
}

type fakeCompleter struct {
	out   string
	err   error
	calls int
	last  string
	opts  out.CompletionOptions
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, opts out.CompletionOptions) (string, error) {
	f.calls++
	f.last = prompt
	f.opts = opts
	return f.out, f.err
}

func TestRefineLLMFailure(t *testing.T) {
	c := &fakeCompleter{err: errors.New("connection refused")}
	r := NewImportanceRefiner(c, DefaultRefinerOptions(), zerolog.Nop())

	v := r.Refine(context.Background(), RefineInput{Subject: "hi"})

	assert.Equal(t, 10.0, v.Importance)
	assert.Empty(t, v.Task)
	assert.True(t, strings.HasPrefix(v.Reason, "LLM failure: "))
	assert.Contains(t, v.Reason, "connection refused")
	assert.Nil(t, v.Due)
	assert.Equal(t, 1, c.calls)
}

func TestRefineUnparsable(t *testing.T) {
	c := &fakeCompleter{out: "I think this email is important."}
	r := NewImportanceRefiner(c, DefaultRefinerOptions(), zerolog.Nop())

	v := r.Refine(context.Background(), RefineInput{})

	assert.Equal(t, domain.DefaultVerdict("LLM produced unparsable output"), v)
}

func TestRefinePassesCallOptions(t *testing.T) {
	c := &fakeCompleter{out: `{"importance": 50}`}
	opts := DefaultRefinerOptions()
	r := NewImportanceRefiner(c, opts, zerolog.Nop())

	r.Refine(context.Background(), RefineInput{Subject: "S", Body: "B", Domain: "jobs", From: "hr@corp.com"})

	assert.Equal(t, 256, c.opts.MaxTokens)
	assert.Equal(t, float32(0), c.opts.Temperature)
	assert.Equal(t, opts.Timeout, c.opts.Timeout)
	assert.Contains(t, c.last, "Context: Domain: jobs; From: hr@corp.com")
	assert.Contains(t, c.last, "Email Subject:\nS\n")
}

func TestBuildImportancePromptTruncates(t *testing.T) {
	subject := strings.Repeat("s", 300)
	body := strings.Repeat("é", 2500)

	prompt := BuildImportancePrompt(RefineInput{Subject: subject, Body: body})

	assert.Contains(t, prompt, strings.Repeat("s", 200)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("s", 201))
	assert.Contains(t, prompt, strings.Repeat("é", 2000)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("é", 2001))
}

func TestNormalizeVerdict(t *testing.T) {
	due := "2024-05-01"
	long := strings.Repeat("x", 600)

	tests := []struct {
		name   string
		parsed map[string]any
		want   domain.Verdict
	}{
		{
			name:   "in range",
			parsed: map[string]any{"importance": 55.5, "task": "Reply", "reason": "asked", "due": due},
			want:   domain.Verdict{Importance: 55.5, Task: "Reply", Reason: "asked", Due: &due},
		},
		{
			name:   "clamped high",
			parsed: map[string]any{"importance": 250.0},
			want:   domain.Verdict{Importance: 100},
		},
		{
			name:   "clamped low",
			parsed: map[string]any{"importance": -3.0},
			want:   domain.Verdict{Importance: 0},
		},
		{
			name:   "numeric string",
			parsed: map[string]any{"importance": " 72 "},
			want:   domain.Verdict{Importance: 72},
		},
		{
			name:   "garbage importance",
			parsed: map[string]any{"importance": "very high"},
			want:   domain.Verdict{Importance: 10},
		},
		{
			name:   "missing importance",
			parsed: map[string]any{},
			want:   domain.Verdict{Importance: 10},
		},
		{
			name:   "non-string due dropped",
			parsed: map[string]any{"importance": 1.0, "due": 20240501.0},
			want:   domain.Verdict{Importance: 1},
		},
		{
			name:   "non-string task coerced",
			parsed: map[string]any{"importance": 1.0, "task": 12.0},
			want:   domain.Verdict{Importance: 1, Task: "12"},
		},
		{
			name:   "long text truncated",
			parsed: map[string]any{"importance": 1.0, "task": long, "reason": long},
			want:   domain.Verdict{Importance: 1, Task: long[:512], Reason: long[:512]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVerdict(tt.parsed))
		})
	}
}

type memVerdictCache struct {
	data map[string]domain.Verdict
}

func (m *memVerdictCache) GetVerdict(ctx context.Context, key string) (*domain.Verdict, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *memVerdictCache) SetVerdict(ctx context.Context, key string, v domain.Verdict) error {
	m.data[key] = v
	return nil
}

func TestRefineUsesCache(t *testing.T) {
	c := &fakeCompleter{out: `{"importance": 91, "task": "Accept offer", "reason": "offer letter", "due": null}`}
	vc := &memVerdictCache{data: map[string]domain.Verdict{}}
	opts := DefaultRefinerOptions()
	opts.Cache = vc
	r := NewImportanceRefiner(c, opts, zerolog.Nop())

	in := RefineInput{Subject: "Offer", Body: "Welcome aboard", Domain: "jobs", From: "hr@corp.com"}
	first := r.Refine(context.Background(), in)
	second := r.Refine(context.Background(), in)

	assert.Equal(t, first, second)
	assert.Equal(t, 91.0, second.Importance)
	assert.Equal(t, 1, c.calls)
	assert.Len(t, vc.data, 1)
}

func TestRefineDoesNotCacheFailures(t *testing.T) {
	c := &fakeCompleter{out: "garbage"}
	vc := &memVerdictCache{data: map[string]domain.Verdict{}}
	opts := DefaultRefinerOptions()
	opts.Cache = vc
	r := NewImportanceRefiner(c, opts, zerolog.Nop())

	r.Refine(context.Background(), RefineInput{Subject: "x"})
	r.Refine(context.Background(), RefineInput{Subject: "x"})

	assert.Equal(t, 2, c.calls)
	assert.Empty(t, vc.data)
}
