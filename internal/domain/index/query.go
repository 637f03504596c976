package index

import (
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
)

// SortKey orders results by one sortable field. Documents missing the field
// sort after every document that has it, whatever the direction.
type SortKey struct {
	Field string
	Desc  bool
}

// Query is the backend-neutral native query executed by an index client.
//
// Ordering is: precedence rank (when PrecedenceFirst), the Sort keys,
// relevance descending (only when Text is set and Sort is empty),
// precedence rank, then id ascending.
type Query struct {
	Filter          filter.Expression
	Text            string
	Sort            []SortKey
	Precedence      []content.Publisher
	PrecedenceFirst bool
	Offset          int
	Limit           int
}

// ScoresByRelevance reports whether relevance takes part in ordering.
func (q *Query) ScoresByRelevance() bool {
	return q.Text != "" && len(q.Sort) == 0
}
