package contentdex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain/query"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

// Operator is an attribute comparison.
type Operator = query.Operator

// Operators.
const (
	Equals      = query.Equals
	Beginning   = query.Beginning
	GreaterThan = query.GreaterThan
	LessThan    = query.LessThan
	Between     = query.Between
)

// Results is one page of a search.
type Results struct {
	// IDs are canonical ids in rank order (raw ids for Raw searches).
	IDs []ID
	// Members lists the raw ids collapsed into each canonical id.
	Members map[ID][]ID
	// Total is the raw match count, an upper bound on distinct canonical ids.
	Total int
	// Incomplete is set when widening stopped before the page was filled.
	Incomplete bool
}

// SearchBuilder is a fluent builder for content queries.
type SearchBuilder struct {
	client     *Client
	publishers []Publisher

	predicates []predicate
	actionable map[string]string
	params     query.IndexQueryParams
	order      string
	offset     int
	limit      int
	equivalent bool
	now        func() time.Time
}

type predicate struct {
	attribute string
	op        Operator
	values    []string
}

// Where adds an attribute predicate ("title", Beginning, "news").
func (b *SearchBuilder) Where(attribute string, op Operator, values ...string) *SearchBuilder {
	b.predicates = append(b.predicates, predicate{attribute: attribute, op: op, values: values})
	return b
}

// Text sets the fuzzy title term.
func (b *SearchBuilder) Text(term string) *SearchBuilder {
	b.params.FuzzyTerm = strings.TrimSpace(term)
	return b
}

// OrderBy sets the ordering ("title.asc", "year.desc,title").
func (b *SearchBuilder) OrderBy(spec string) *SearchBuilder {
	b.order = spec
	return b
}

// Brand restricts results to a brand and everything equivalent to it.
func (b *SearchBuilder) Brand(id ID) *SearchBuilder {
	b.params.BrandID = &id
	return b
}

// TopicWeighting bounds topic weightings; nil sides are open.
func (b *SearchBuilder) TopicWeighting(minWeight, maxWeight *float64) *SearchBuilder {
	b.params.TopicWeighting = &query.WeightingBounds{Min: minWeight, Max: maxWeight}
	return b
}

// Include restricts results to ids.
func (b *SearchBuilder) Include(ids ...ID) *SearchBuilder {
	b.params.Include = append(b.params.Include, ids...)
	return b
}

// Exclude removes ids from the results.
func (b *SearchBuilder) Exclude(ids ...ID) *SearchBuilder {
	b.params.Exclude = append(b.params.Exclude, ids...)
	return b
}

// Actionable adds an actionable filter ("location.available", "true").
func (b *SearchBuilder) Actionable(key, value string) *SearchBuilder {
	if b.actionable == nil {
		b.actionable = make(map[string]string)
	}
	b.actionable[key] = value
	return b
}

// Precedence orders ties by publisher precedence.
func (b *SearchBuilder) Precedence() *SearchBuilder {
	b.params.PrecedenceSort = true
	return b
}

// Raw skips equivalence collapsing.
func (b *SearchBuilder) Raw() *SearchBuilder {
	b.equivalent = false
	return b
}

// Offset sets the number of results to skip.
func (b *SearchBuilder) Offset(n int) *SearchBuilder {
	b.offset = n
	return b
}

// Limit sets the page size.
func (b *SearchBuilder) Limit(n int) *SearchBuilder {
	b.limit = n
	return b
}

// Do executes the search.
func (b *SearchBuilder) Do(ctx context.Context) (*Results, error) {
	qs, sel, params, err := b.build()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ctx = b.client.withLogger(ctx)
	var res *result.IndexQueryResult
	if b.equivalent {
		res, err = b.client.canonical.Query(ctx, qs, b.publishers, sel, params)
	} else {
		res, err = b.client.engine.Results(ctx, qs, b.publishers, sel, params)
	}
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return &Results{
		IDs:        res.IDs(),
		Members:    res.Groups(),
		Total:      res.Total(),
		Incomplete: res.Incomplete(),
	}, nil
}

func (b *SearchBuilder) build() (query.AttributeQuerySet, query.Selection, *query.IndexQueryParams, error) {
	var none query.AttributeQuerySet
	if len(b.publishers) == 0 {
		return none, query.Selection{}, nil, fmt.Errorf("at least one publisher is required")
	}

	queries := make([]query.AttributeQuery, 0, len(b.predicates))
	for _, p := range b.predicates {
		q, err := query.NewAttributeQuery(p.attribute, p.op, p.values...)
		if err != nil {
			return none, query.Selection{}, nil, err
		}
		queries = append(queries, q)
	}

	sel, err := query.NewSelection(b.offset, b.limit, b.client.defaultLimit, b.client.maxLimit)
	if err != nil {
		return none, query.Selection{}, nil, err
	}

	params := b.params
	if params.Ordering, err = query.ParseOrdering(b.order); err != nil {
		return none, query.Selection{}, nil, err
	}
	if len(b.actionable) > 0 {
		now := time.Now
		if b.now != nil {
			now = b.now
		}
		if params.Actionable, err = query.ParseActionable(b.actionable, now()); err != nil {
			return none, query.Selection{}, nil, err
		}
	}
	if err := params.Validate(); err != nil {
		return none, query.Selection{}, nil, err
	}
	return query.NewAttributeQuerySet(queries...), sel, &params, nil
}
