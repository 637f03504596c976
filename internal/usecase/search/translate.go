package search

import (
	"context"
	"fmt"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/query"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
)

// Translate builds the native query for qs. Predicates on the same nested
// scope become one nested clause, so a single sub-document must satisfy all
// of them; topic-weighting bounds join the topics clause.
func (s *Service) Translate(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (*index.Query, error) {
	if len(publishers) == 0 {
		return nil, domain.NewQueryError("publisher", "at least one publisher is required")
	}
	if sel.Offset < 0 || sel.Limit < 0 {
		return nil, domain.NewQueryError("selection", "offset and limit must not be negative")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params == nil {
		params = &query.IndexQueryParams{}
	}

	pub, err := filter.NewMatchAny(index.FieldPublisher, publisherKeys(publishers)...)
	if err != nil {
		return nil, err
	}
	active, err := filter.NewMatch(index.FieldActive, "true")
	if err != nil {
		return nil, err
	}
	must := []filter.Condition{pub, active}

	top, scopes, nested := qs.ByScope()
	for _, q := range top {
		c, err := q.Condition()
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}

	weighting, err := weightingCondition(params.TopicWeighting)
	if err != nil {
		return nil, err
	}
	if weighting != nil && nested[index.ScopeTopics] == nil {
		scopes = append(scopes, index.ScopeTopics)
	}
	for _, scope := range scopes {
		var conds []filter.Condition
		for _, q := range nested[scope] {
			c, err := q.Condition()
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if scope == index.ScopeTopics && weighting != nil {
			conds = append(conds, *weighting)
		}
		c, err := nestedClause(scope, conds)
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}

	if params.BrandID != nil {
		c, err := s.brandScope(ctx, *params.BrandID)
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}

	if len(params.Include) > 0 {
		c, err := filter.NewMatchAny(index.FieldKey, content.Strings(params.Include)...)
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}

	var mustNot []filter.Condition
	if len(params.Exclude) > 0 {
		c, err := filter.NewMatchAny(index.FieldKey, content.Strings(params.Exclude)...)
		if err != nil {
			return nil, err
		}
		mustNot = append(mustNot, c)
	}

	// Watchable now OR broadcast in the window: two actionable clauses are
	// alternatives, one is simply required.
	var should []filter.Condition
	actionable, err := params.Actionable.Clauses()
	if err != nil {
		return nil, err
	}
	switch len(actionable) {
	case 0:
	case 1:
		must = append(must, actionable[0])
	default:
		should = actionable
	}

	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return nil, err
	}

	sorts := make([]index.SortKey, len(params.Ordering))
	for i, o := range params.Ordering {
		sorts[i] = index.SortKey{Field: o.Field, Desc: o.Desc}
	}

	return &index.Query{
		Filter:          expr,
		Text:            params.FuzzyTerm,
		Sort:            sorts,
		Precedence:      publishers,
		PrecedenceFirst: params.PrecedenceSort,
		Offset:          sel.Offset,
		Limit:           sel.Limit,
	}, nil
}

// brandScope matches items whose container is any member of the brand's
// equivalence class, so a brand id from one publisher scopes every
// publisher's items.
func (s *Service) brandScope(ctx context.Context, brand content.ID) (filter.Condition, error) {
	canonical := brand
	if s.eq != nil {
		found, err := s.eq.Lookup(ctx, []content.ID{brand})
		if err != nil {
			return filter.Condition{}, fmt.Errorf("%w: brand lookup: %w", domain.ErrQueryFailed, err)
		}
		if c, ok := found[brand]; ok {
			canonical = c
		}
	}

	members := []content.ID{brand}
	if s.eq != nil {
		ids, err := s.eq.ReverseLookup(ctx, canonical)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("%w: brand reverse lookup: %w", domain.ErrQueryFailed, err)
		}
		if len(ids) > 0 {
			members = ids
		}
	}
	return filter.NewMatchAny(index.FieldContainer, content.Strings(members)...)
}

func weightingCondition(w *query.WeightingBounds) (*filter.Condition, error) {
	if w == nil {
		return nil, nil
	}
	r, err := filter.NewRangeFilter(nil, w.Min, nil, w.Max)
	if err != nil {
		return nil, err
	}
	c, err := filter.NewRange(index.FieldWeighting, r)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func nestedClause(scope string, conds []filter.Condition) (filter.Condition, error) {
	inner, err := filter.NewExpression(conds, nil, nil)
	if err != nil {
		return filter.Condition{}, err
	}
	return filter.NewNested(scope, inner)
}

func publisherKeys(ps []content.Publisher) []string {
	keys := make([]string, len(ps))
	for i, p := range ps {
		keys[i] = p.Key()
	}
	return keys
}
