package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SMARTMAIL_TOP_N", "")
	t.Setenv("GATE_THRESHOLD", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, 0.3, cfg.GateThreshold)
	assert.Equal(t, 256, cfg.LLMMaxTokens)
	assert.Equal(t, 600*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "file", cfg.MetaStoreBackend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "gate above one", key: "GATE_THRESHOLD", val: "1.5"},
		{name: "zero top n", key: "SMARTMAIL_TOP_N", val: "0"},
		{name: "unknown meta backend", key: "SMARTMAIL_META_BACKEND", val: "sqlite"},
		{name: "postgres without url", key: "SMARTMAIL_META_BACKEND", val: "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data/x"), expandHome("~/data/x"))
	assert.Equal(t, "relative/path", expandHome("relative/path"))
}

func TestParseHeuristics(t *testing.T) {
	doc := []byte(`
important_domains: ["@IITB.ac.in", "example.com "]
recency_days: 3
domains:
  - name: academics
    description: coursework and exams
  - name: jobs
    description: internships, interviews and offers
`)

	h, err := ParseHeuristics(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"iitb.ac.in", "example.com"}, h.ImportantDomains)
	assert.Equal(t, DefaultKeywords, h.Keywords)
	assert.Equal(t, []string{".pdf"}, h.DocumentExtensions)
	assert.Equal(t, 72*time.Hour, h.RecencyWindow())
	require.Len(t, h.Domains, 2)
	assert.Equal(t, int64(1), h.Domains[0].RowID)
	assert.Equal(t, int64(2), h.Domains[1].RowID)
	assert.Equal(t, "jobs", h.Domains[1].Name)
}

func TestLoadHeuristicsFallsBackWithWarning(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := LoadHeuristics(filepath.Join(t.TempDir(), "missing.yml"), log)

	assert.Empty(t, h.ImportantDomains)
	assert.Equal(t, DefaultKeywords, h.Keywords)
	assert.Equal(t, 2, h.RecencyDays)
	assert.Contains(t, buf.String(), "could not load heuristics")
}

func TestLoadHeuristicsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.yml")
	require.NoError(t, os.WriteFile(path, []byte("important_domains: [unclosed"), 0o644))

	h := LoadHeuristics(path, zerolog.Nop())
	assert.Empty(t, h.ImportantDomains)
}
