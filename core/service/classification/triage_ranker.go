package classification

import (
	"sort"

	"github.com/Tanay2104/Smart-Email/core/domain"
)

// DefaultTopN is the number of records Rank keeps when n <= 0.
const DefaultTopN = 5

// Rank returns the n highest combined scores. Ties keep encounter order
// (Seq). The input slice is left untouched.
func Rank(records []*domain.ResultRecord, n int) []*domain.ResultRecord {
	if n <= 0 {
		n = DefaultTopN
	}

	ranked := make([]*domain.ResultRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			ranked = append(ranked, r)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CombinedScore != ranked[j].CombinedScore {
			return ranked[i].CombinedScore > ranked[j].CombinedScore
		}
		return ranked[i].Seq < ranked[j].Seq
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
