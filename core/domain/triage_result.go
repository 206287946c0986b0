package domain

// =============================================================================
// Domain Catalog
// =============================================================================

// CatalogEntry is one named topic of the domain catalog.
// RowID is 1-based and matches index position RowID-1.
type CatalogEntry struct {
	RowID       int64     `json:"rowid" yaml:"-"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Embedding   []float32 `json:"-" yaml:"-"`
}

// DomainCandidate is a catalog match for one message, ordered by Score descending.
type DomainCandidate struct {
	Name        string  `json:"name" bson:"name"`
	Description string  `json:"description" bson:"description"`
	Score       float64 `json:"score" bson:"score"`
}

// UnknownDomain labels messages with no catalog match.
const UnknownDomain = "unknown"

// =============================================================================
// LLM Verdict
// =============================================================================

// Verdict limits
const (
	VerdictMaxTextLen        = 512
	VerdictDefaultImportance = 10.0
	VerdictMaxImportance     = 100.0
)

// Verdict is the normalized output of the importance refinement step.
type Verdict struct {
	Importance float64 `json:"importance"`
	Task       string  `json:"task"`
	Reason     string  `json:"reason"`
	Due        *string `json:"due"`
}

// DefaultVerdict returns the low-importance verdict used whenever refinement fails.
func DefaultVerdict(reason string) Verdict {
	return Verdict{
		Importance: VerdictDefaultImportance,
		Reason:     reason,
	}
}

// =============================================================================
// Result Record
// =============================================================================

// ResultRecord is the per-message outcome of a triage run.
type ResultRecord struct {
	Path             string            `json:"path" bson:"path" db:"path"`
	Subject          string            `json:"subject" bson:"subject" db:"subject"`
	From             string            `json:"from" bson:"from" db:"from_addr"`
	Date             string            `json:"date" bson:"date" db:"date"`
	Domain           string            `json:"domain" bson:"domain" db:"domain"`
	DomainCandidates []DomainCandidate `json:"domain_candidates" bson:"domain_candidates" db:"-"`
	RuleScore        float64           `json:"rule_score" bson:"rule_score" db:"rule_score"`
	LLMScore         float64           `json:"llm_score" bson:"llm_score" db:"llm_score"`
	CombinedScore    float64           `json:"combined_score" bson:"combined_score" db:"combined_score"`
	Task             string            `json:"task" bson:"task" db:"task"`
	Reason           string            `json:"reason" bson:"reason" db:"reason"`
	Due              *string           `json:"due" bson:"due" db:"due"`

	// Refined is set when the rule score passed the gate and the model was asked.
	Refined bool `json:"-" bson:"refined" db:"refined"`

	// Seq is the encounter order within a batch, used to break score ties.
	Seq int64 `json:"-" bson:"-" db:"-"`
}

// CandidateNames returns the names of the domain candidates in rank order.
func (r *ResultRecord) CandidateNames() []string {
	names := make([]string, 0, len(r.DomainCandidates))
	for _, c := range r.DomainCandidates {
		names = append(names, c.Name)
	}
	return names
}
