package db

import "github.com/atlasmeta/contentdex/internal/domain/search/filter"

// AggregateQuery is the input for an FT.AGGREGATE pipeline.
// Steps run in the order LOAD, GROUPBY, APPLY, SORTBY, LIMIT.
// Filters must not contain nested-scope conditions; index clients resolve
// them into plain clauses first.
type AggregateQuery struct {
	IndexName string
	Filters   filter.Expression
	// Text is matched fuzzily against TextFields.
	Text       string
	TextFields []string
	// AddScores exposes the relevance score as the __score field.
	AddScores bool
	Load      []string
	GroupBy   []string
	Apply     []Apply
	SortBy    []SortField
	Offset    int
	Limit     int
}

// Apply is one APPLY expr AS name step.
type Apply struct {
	Expr string
	As   string
}

// SortField is one SORTBY key.
type SortField struct {
	Field string
	Desc  bool
}

// ScoreField is the field holding the relevance score of an aggregate row.
const ScoreField = "__score"

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search. Key is empty for aggregate rows.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
