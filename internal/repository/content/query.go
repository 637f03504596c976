package content

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/atlasmeta/contentdex/internal/db"
	"github.com/atlasmeta/contentdex/internal/domain"
	domcontent "github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

// noMatchID replaces an empty join result; ids are positive so it matches nothing.
const noMatchID = "0"

const (
	fieldRank = "__rank"
	hasPrefix = "__has_"
)

var textFields = []string{index.FieldTitle, index.FieldDescription}

// Query runs q against the content index. Nested clauses are first resolved
// to parent id matches; the page and the total count are then fetched concurrently.
func (r *Repo) Query(ctx context.Context, q *index.Query) (result.Page, error) {
	expr, err := r.resolveNested(ctx, q.Filter)
	if err != nil {
		return result.Page{}, err
	}

	count := &db.AggregateQuery{
		IndexName:  r.keys.contentIndex(),
		Filters:    expr,
		Text:       q.Text,
		TextFields: textFields,
	}

	var page *db.AggregateQuery
	if q.Limit > 0 {
		page, err = r.pageQuery(q, expr)
		if err != nil {
			return result.Page{}, err
		}
	}

	var (
		total int
		rows  *db.SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.store.SearchCount(gctx, count)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		total = n
		return nil
	})
	if page != nil {
		g.Go(func() error {
			res, err := r.store.Aggregate(gctx, page)
			if err != nil {
				return fmt.Errorf("aggregate: %w", err)
			}
			rows = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result.Page{}, err
	}

	out := result.Page{Total: total}
	if rows == nil {
		return out, nil
	}
	out.Hits = make([]result.RawHit, 0, len(rows.Entries))
	for _, e := range rows.Entries {
		hit, err := parseHit(e)
		if err != nil {
			return result.Page{}, err
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func parseHit(e db.SearchEntry) (result.RawHit, error) {
	id, err := domcontent.ParseID(e.Fields[index.FieldKey])
	if err != nil {
		return result.RawHit{}, fmt.Errorf("parse hit: %w", err)
	}
	p, err := domcontent.ParsePublisher(e.Fields[index.FieldPublisher])
	if err != nil {
		return result.RawHit{}, fmt.Errorf("parse hit %d: %w", id, err)
	}
	return result.NewRawHit(id, e.Score, p), nil
}

// pageQuery builds the aggregate pipeline. Missing sort fields go last through
// an exists() flag sorted ahead of each key.
func (r *Repo) pageQuery(q *index.Query, expr filter.Expression) (*db.AggregateQuery, error) {
	agg := &db.AggregateQuery{
		IndexName:  r.keys.contentIndex(),
		Filters:    expr,
		Text:       q.Text,
		TextFields: textFields,
		AddScores:  q.ScoresByRelevance(),
		Load:       []string{index.FieldKey, index.FieldID, index.FieldPublisher},
		Offset:     q.Offset,
		Limit:      q.Limit,
	}

	rank, ranked := precedenceRank(q.Precedence)
	if ranked {
		agg.Apply = append(agg.Apply, db.Apply{Expr: rank, As: fieldRank})
		if q.PrecedenceFirst {
			agg.SortBy = append(agg.SortBy, db.SortField{Field: fieldRank})
		}
	}

	for _, k := range q.Sort {
		spec, ok := index.Lookup("", k.Field)
		if !ok || !spec.Sortable {
			return nil, fmt.Errorf("%w: field %q is not sortable", domain.ErrInvalidQuery, k.Field)
		}
		if !slices.Contains(agg.Load, k.Field) {
			agg.Load = append(agg.Load, k.Field)
		}
		has := hasPrefix + k.Field
		agg.Apply = append(agg.Apply, db.Apply{Expr: "exists(@" + k.Field + ")", As: has})
		agg.SortBy = append(agg.SortBy,
			db.SortField{Field: has, Desc: true},
			db.SortField{Field: k.Field, Desc: k.Desc},
		)
	}

	if q.ScoresByRelevance() {
		agg.SortBy = append(agg.SortBy, db.SortField{Field: db.ScoreField, Desc: true})
	}
	if ranked && !q.PrecedenceFirst {
		agg.SortBy = append(agg.SortBy, db.SortField{Field: fieldRank})
	}
	// The numeric id is a double in the index; the key breaks ties it loses.
	agg.SortBy = append(agg.SortBy,
		db.SortField{Field: index.FieldID},
		db.SortField{Field: index.FieldKey},
	)

	return agg, nil
}

// precedenceRank returns an APPLY expression giving each listed publisher its
// list position; unlisted publishers rank last.
func precedenceRank(ps []domcontent.Publisher) (string, bool) {
	if len(ps) < 2 {
		return "", false
	}
	n := len(ps)
	terms := make([]string, n)
	for i, p := range ps {
		terms[i] = fmt.Sprintf(`(@%s=="%s")*%d`, index.FieldPublisher, p, n-i)
	}
	return fmt.Sprintf("%d-(%s)", n, strings.Join(terms, "+")), true
}

// resolveNested replaces every nested clause with a key match on the parents
// having at least one sub-document that satisfies it. Independent clauses are
// joined concurrently.
func (r *Repo) resolveNested(ctx context.Context, expr filter.Expression) (filter.Expression, error) {
	if !expr.HasNested() {
		return expr, nil
	}

	var nested []filter.Condition
	for _, group := range [][]filter.Condition{expr.Must(), expr.Should(), expr.MustNot()} {
		for _, c := range group {
			if c.IsNested() {
				nested = append(nested, c)
			}
		}
	}
	narrow, err := parentFilters(expr.Must())
	if err != nil {
		return filter.Expression{}, err
	}

	parents := make([][]string, len(nested))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range nested {
		g.Go(func() error {
			ids, err := r.joinParents(gctx, c, narrow)
			if err != nil {
				return err
			}
			parents[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return filter.Expression{}, err
	}

	next := 0
	return expr.Map(func(c filter.Condition) (filter.Condition, error) {
		if !c.IsNested() {
			return c, nil
		}
		ids := parents[next]
		next++
		if len(ids) == 0 {
			ids = []string{noMatchID}
		}
		return filter.NewMatchAny(index.FieldKey, ids...)
	})
}

// parentFilters copies the top-level publisher and active constraints onto the
// parent fields of sub-documents. Only must clauses are safe to copy.
func parentFilters(must []filter.Condition) ([]filter.Condition, error) {
	var out []filter.Condition
	for _, c := range must {
		if !c.IsMatch() {
			continue
		}
		var key string
		switch c.Key() {
		case index.FieldPublisher:
			key = fieldParentPublisher
		case index.FieldActive:
			key = fieldParentActive
		default:
			continue
		}
		m, err := filter.NewMatchAny(key, c.Values()...)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// joinParents reads the parents matching c through a cursor. Only a clause
// matching more than maxJoin parents is rejected.
func (r *Repo) joinParents(ctx context.Context, c filter.Condition, narrow []filter.Condition) ([]string, error) {
	scope := c.Key()
	if !slices.Contains(index.Scopes(), scope) {
		return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidQuery, scope)
	}
	inner := c.Nested()

	must := make([]filter.Condition, 0, len(inner.Must())+len(narrow))
	must = append(must, inner.Must()...)
	must = append(must, narrow...)
	expr, err := filter.NewExpression(must, inner.Should(), inner.MustNot())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidQuery, scope, err)
	}

	res, err := r.store.AggregateAll(ctx, &db.AggregateQuery{
		IndexName: r.keys.scopeIndex(scope),
		Filters:   expr,
		Load:      []string{index.FieldParent},
		GroupBy:   []string{index.FieldParent},
		Limit:     joinBatch,
	}, r.maxJoin)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", scope, err)
	}
	if len(res.Entries) > r.maxJoin {
		return nil, fmt.Errorf("%w: %s clause matches more than %d documents",
			domain.ErrQueryTooBroad, scope, r.maxJoin)
	}

	ids := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		if p := e.Fields[index.FieldParent]; p != "" {
			ids = append(ids, p)
		}
	}
	return ids, nil
}
