package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Tanay2104/Smart-Email/core/domain"
)

// DefaultKeywords are the rule-scorer keywords used when the file lists none.
var DefaultKeywords = []string{
	"deadline",
	"submit",
	"submission",
	"assigment",
	"assignment",
	"offer",
	"interview",
	"urgent",
	"slot",
	"due soon",
}

// DefaultDocumentExtensions qualify an attachment for the document bonus.
var DefaultDocumentExtensions = []string{".pdf"}

// Heuristics is the content of the domains YAML file.
//
//	important_domains: [iitb.ac.in]
//	keywords: [deadline, interview]
//	document_extensions: [.pdf]
//	recency_days: 2
//	domains:
//	  - name: academics
//	    description: coursework, assignments and exams
type Heuristics struct {
	ImportantDomains   []string              `yaml:"important_domains"`
	Keywords           []string              `yaml:"keywords"`
	DocumentExtensions []string              `yaml:"document_extensions"`
	RecencyDays        int                   `yaml:"recency_days"`
	Domains            []domain.CatalogEntry `yaml:"domains"`
}

// DefaultHeuristics returns the built-in rule configuration with no important domains.
func DefaultHeuristics() *Heuristics {
	return &Heuristics{
		Keywords:           append([]string(nil), DefaultKeywords...),
		DocumentExtensions: append([]string(nil), DefaultDocumentExtensions...),
		RecencyDays:        2,
	}
}

// ParseHeuristics decodes and normalizes a heuristics document.
func ParseHeuristics(data []byte) (*Heuristics, error) {
	h := &Heuristics{}
	if err := yaml.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("decode heuristics: %w", err)
	}
	h.normalize()
	return h, nil
}

// ReadHeuristics reads the heuristics file, failing on any error.
func ReadHeuristics(path string) (*Heuristics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read heuristics %s: %w", path, err)
	}
	return ParseHeuristics(data)
}

// LoadHeuristics reads the heuristics file but never fails: on any error it
// logs a warning and falls back to the defaults with an empty domain set.
func LoadHeuristics(path string, log zerolog.Logger) *Heuristics {
	h, err := ReadHeuristics(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not load heuristics, important domains disabled")
		return DefaultHeuristics()
	}
	return h
}

// RecencyWindow is RecencyDays as a duration.
func (h *Heuristics) RecencyWindow() time.Duration {
	return time.Duration(h.RecencyDays) * 24 * time.Hour
}

func (h *Heuristics) normalize() {
	if len(h.Keywords) == 0 {
		h.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if len(h.DocumentExtensions) == 0 {
		h.DocumentExtensions = append([]string(nil), DefaultDocumentExtensions...)
	}
	if h.RecencyDays <= 0 {
		h.RecencyDays = 2
	}
	for i, d := range h.ImportantDomains {
		h.ImportantDomains[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d, "@")))
	}
	for i := range h.Domains {
		h.Domains[i].RowID = int64(i + 1)
	}
}
