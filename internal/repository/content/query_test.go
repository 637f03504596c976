package content

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/atlasmeta/contentdex/internal/db"
	"github.com/atlasmeta/contentdex/internal/domain"
	domcontent "github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
)

func mustExpr(t *testing.T, must ...filter.Condition) filter.Expression {
	t.Helper()
	e, err := filter.NewExpression(must, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func mustMatch(t *testing.T, key string, values ...string) filter.Condition {
	t.Helper()
	c, err := filter.NewMatchAny(key, values...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mustNested(t *testing.T, scope string, inner ...filter.Condition) filter.Condition {
	t.Helper()
	c, err := filter.NewNested(scope, mustExpr(t, inner...))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func rows(pairs ...[]string) *db.SearchResult {
	res := &db.SearchResult{Total: len(pairs)}
	for _, p := range pairs {
		fields := make(map[string]string)
		for i := 0; i+1 < len(p); i += 2 {
			fields[p[i]] = p[i+1]
		}
		res.Entries = append(res.Entries, db.SearchEntry{Fields: fields})
	}
	return res
}

func TestQuery_PageAndCount(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchCountFn = func(_ context.Context, q *db.AggregateQuery) (int, error) {
		if q.IndexName != "cdx:idx:content" {
			t.Errorf("unexpected index: %s", q.IndexName)
		}
		return 17, nil
	}
	ms.aggregateFn = func(_ context.Context, _ *db.AggregateQuery) (*db.SearchResult, error) {
		return rows(
			[]string{"key", "3", "publisher", "bbc.co.uk"},
			[]string{"key", "8", "publisher", "pressassociation.com"},
		), nil
	}

	page, err := repo.Query(context.Background(), &index.Query{
		Filter: mustExpr(t, mustMatch(t, index.FieldActive, "true")),
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 17 || len(page.Hits) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Hits[1].ID() != 8 || page.Hits[1].Publisher() != domcontent.PA {
		t.Errorf("unexpected hit: %+v", page.Hits[1])
	}
}

func TestQuery_HitIDFromKey(t *testing.T) {
	repo, ms := newTestRepo(t)

	// 2^53+1 has no exact double; the numeric field holds its neighbour.
	ms.aggregateFn = func(_ context.Context, q *db.AggregateQuery) (*db.SearchResult, error) {
		if !slices.Contains(q.Load, index.FieldKey) {
			t.Errorf("key not loaded: %v", q.Load)
		}
		return rows([]string{"key", "9007199254740993", "id", "9007199254740992", "publisher", "bbc.co.uk"}), nil
	}

	page, err := repo.Query(context.Background(), &index.Query{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Hits) != 1 || page.Hits[0].ID() != domcontent.ID(1<<53+1) {
		t.Errorf("unexpected hits: %+v", page.Hits)
	}
}

func TestQuery_CountOnly(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchCountFn = func(_ context.Context, _ *db.AggregateQuery) (int, error) { return 5, nil }

	page, err := repo.Query(context.Background(), &index.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 5 || len(page.Hits) != 0 {
		t.Errorf("unexpected page: %+v", page)
	}
	if len(ms.aggregates) != 0 {
		t.Error("zero limit must not fetch a page")
	}
}

func TestQuery_CountError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchCountFn = func(_ context.Context, _ *db.AggregateQuery) (int, error) {
		return 0, errors.New("connection reset")
	}

	if _, err := repo.Query(context.Background(), &index.Query{Limit: 10}); err == nil {
		t.Fatal("expected error")
	}
}

func TestQuery_ResolvesNestedIntoParentKeys(t *testing.T) {
	repo, ms := newTestRepo(t)

	var join, page *db.AggregateQuery
	ms.aggregateFn = func(_ context.Context, q *db.AggregateQuery) (*db.SearchResult, error) {
		if q.IndexName == "cdx:idx:broadcasts" {
			join = q
			return rows([]string{"parent", "3"}, []string{"parent", "11"}), nil
		}
		page = q
		return rows(), nil
	}

	_, err := repo.Query(context.Background(), &index.Query{
		Filter: mustExpr(t,
			mustMatch(t, index.FieldPublisher, "bbc.co.uk"),
			mustNested(t, index.ScopeBroadcasts, mustMatch(t, index.FieldChannel, "bbcone")),
		),
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if join == nil || !slices.Equal(join.GroupBy, []string{index.FieldParent}) {
		t.Fatalf("expected grouped join, got %+v", join)
	}
	if join.Limit != joinBatch {
		t.Errorf("join batch = %d", join.Limit)
	}
	narrowed := false
	for _, c := range join.Filters.Must() {
		if c.Key() == fieldParentPublisher && c.Match() == "bbc.co.uk" {
			narrowed = true
		}
	}
	if !narrowed {
		t.Error("join should be narrowed by the parent publisher")
	}

	if page == nil {
		t.Fatal("page query not run")
	}
	resolved := page.Filters.Must()[1]
	if resolved.IsNested() || resolved.Key() != index.FieldKey {
		t.Fatalf("nested clause not resolved: %+v", resolved)
	}
	if !slices.Equal(resolved.Values(), []string{"3", "11"}) {
		t.Errorf("unexpected parent ids: %v", resolved.Values())
	}
}

func TestQuery_EmptyJoinMatchesNothing(t *testing.T) {
	repo, ms := newTestRepo(t)

	var counted *db.AggregateQuery
	ms.searchCountFn = func(_ context.Context, q *db.AggregateQuery) (int, error) {
		counted = q
		return 0, nil
	}

	_, err := repo.Query(context.Background(), &index.Query{
		Filter: mustExpr(t, mustNested(t, index.ScopeTopics, mustMatch(t, index.FieldTopic, "9"))),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counted.Filters.Must()[0].Values(); !slices.Equal(got, []string{noMatchID}) {
		t.Errorf("expected no-match id, got %v", got)
	}
}

func TestQuery_NestedTooBroad(t *testing.T) {
	repo, ms := newTestRepo(t)
	repo.WithMaxNestedJoin(2)

	ms.aggregateFn = func(_ context.Context, _ *db.AggregateQuery) (*db.SearchResult, error) {
		return rows([]string{"parent", "1"}, []string{"parent", "2"}, []string{"parent", "3"}), nil
	}

	_, err := repo.Query(context.Background(), &index.Query{
		Filter: mustExpr(t, mustNested(t, index.ScopeLocations, mustMatch(t, index.FieldAvailable, "true"))),
		Limit:  10,
	})
	if !errors.Is(err, domain.ErrQueryTooBroad) {
		t.Errorf("expected ErrQueryTooBroad, got %v", err)
	}
}

func TestQuery_BroadNestedJoinSucceeds(t *testing.T) {
	repo, ms := newTestRepo(t)

	const parents = 2500
	ms.aggregateAllFn = func(_ context.Context, q *db.AggregateQuery, limit int) (*db.SearchResult, error) {
		if limit != DefaultMaxNestedJoin {
			t.Errorf("join ceiling = %d", limit)
		}
		res := &db.SearchResult{Total: parents}
		for i := 1; i <= parents; i++ {
			res.Entries = append(res.Entries, db.SearchEntry{
				Fields: map[string]string{index.FieldParent: strconv.Itoa(i)},
			})
		}
		return res, nil
	}
	var counted *db.AggregateQuery
	ms.searchCountFn = func(_ context.Context, q *db.AggregateQuery) (int, error) {
		counted = q
		return parents, nil
	}

	page, err := repo.Query(context.Background(), &index.Query{
		Filter: mustExpr(t, mustNested(t, index.ScopeLocations, mustMatch(t, index.FieldAvailable, "true"))),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != parents {
		t.Errorf("total = %d", page.Total)
	}
	if got := counted.Filters.Must()[0].Values(); len(got) != parents {
		t.Errorf("resolved %d parent keys, want %d", len(got), parents)
	}
}

func TestQuery_IndependentScopesJoined(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.aggregateFn = func(_ context.Context, q *db.AggregateQuery) (*db.SearchResult, error) {
		switch q.IndexName {
		case "cdx:idx:locations":
			return rows([]string{"parent", "1"}), nil
		case "cdx:idx:broadcasts":
			return rows([]string{"parent", "2"}), nil
		}
		return rows(), nil
	}

	var counted *db.AggregateQuery
	ms.searchCountFn = func(_ context.Context, q *db.AggregateQuery) (int, error) {
		counted = q
		return 0, nil
	}

	should := []filter.Condition{
		mustNested(t, index.ScopeLocations, mustMatch(t, index.FieldAvailable, "true")),
		mustNested(t, index.ScopeBroadcasts, mustMatch(t, index.FieldActive, "true")),
	}
	expr, err := filter.NewExpression(nil, should, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Query(context.Background(), &index.Query{Filter: expr}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := counted.Filters.Should()
	if len(got) != 2 || got[0].Match() != "1" || got[1].Match() != "2" {
		t.Errorf("should clauses not resolved in order: %+v", got)
	}
}

func TestPageQuery_DefaultOrdering(t *testing.T) {
	repo, _ := newTestRepo(t)

	agg, err := repo.pageQuery(&index.Query{
		Precedence: []domcontent.Publisher{domcontent.BBC, domcontent.PA},
		Offset:     20,
		Limit:      10,
	}, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []db.SortField{{Field: fieldRank}, {Field: index.FieldID}, {Field: index.FieldKey}}
	if !slices.Equal(agg.SortBy, want) {
		t.Errorf("SortBy = %+v, want %+v", agg.SortBy, want)
	}
	if agg.AddScores {
		t.Error("scores are only needed for fuzzy queries")
	}
	if agg.Offset != 20 || agg.Limit != 10 {
		t.Errorf("unexpected window %d/%d", agg.Offset, agg.Limit)
	}
}

func TestPageQuery_SortNullsLast(t *testing.T) {
	repo, _ := newTestRepo(t)

	agg, err := repo.pageQuery(&index.Query{
		Sort:  []index.SortKey{{Field: index.FieldYear, Desc: true}},
		Text:  "pottery",
		Limit: 10,
	}, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []db.SortField{
		{Field: "__has_year", Desc: true},
		{Field: index.FieldYear, Desc: true},
		{Field: index.FieldID},
		{Field: index.FieldKey},
	}
	if !slices.Equal(agg.SortBy, want) {
		t.Errorf("SortBy = %+v, want %+v", agg.SortBy, want)
	}
	if !slices.Contains(agg.Load, index.FieldYear) {
		t.Errorf("sort field not loaded: %v", agg.Load)
	}
	if len(agg.Apply) != 1 || agg.Apply[0].Expr != "exists(@year)" {
		t.Errorf("unexpected apply: %+v", agg.Apply)
	}
}

func TestPageQuery_RelevanceThenPrecedence(t *testing.T) {
	repo, _ := newTestRepo(t)

	agg, err := repo.pageQuery(&index.Query{
		Text:       "pottery",
		Precedence: []domcontent.Publisher{domcontent.BBC, domcontent.PA},
		Limit:      10,
	}, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []db.SortField{
		{Field: db.ScoreField, Desc: true},
		{Field: fieldRank},
		{Field: index.FieldID},
		{Field: index.FieldKey},
	}
	if !slices.Equal(agg.SortBy, want) {
		t.Errorf("SortBy = %+v, want %+v", agg.SortBy, want)
	}
	if !agg.AddScores {
		t.Error("expected ADDSCORES")
	}
}

func TestPageQuery_PrecedenceFirst(t *testing.T) {
	repo, _ := newTestRepo(t)

	agg, err := repo.pageQuery(&index.Query{
		Sort:            []index.SortKey{{Field: index.FieldTitleSort}},
		Precedence:      []domcontent.Publisher{domcontent.BBC, domcontent.PA},
		PrecedenceFirst: true,
		Limit:           10,
	}, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if agg.SortBy[0].Field != fieldRank {
		t.Errorf("precedence should lead, got %+v", agg.SortBy)
	}
	ranks := 0
	for _, f := range agg.SortBy {
		if f.Field == fieldRank {
			ranks++
		}
	}
	if ranks != 1 {
		t.Errorf("rank should appear once, got %d", ranks)
	}
}

func TestPageQuery_UnsortableField(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.pageQuery(&index.Query{
		Sort:  []index.SortKey{{Field: index.FieldGenres}},
		Limit: 10,
	}, filter.Expression{})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestPrecedenceRank(t *testing.T) {
	if _, ok := precedenceRank([]domcontent.Publisher{domcontent.BBC}); ok {
		t.Error("a single publisher needs no rank")
	}

	expr, ok := precedenceRank([]domcontent.Publisher{domcontent.BBC, domcontent.PA, domcontent.C4})
	if !ok {
		t.Fatal("expected rank expression")
	}
	want := `3-((@publisher=="bbc.co.uk")*3+(@publisher=="pressassociation.com")*2+(@publisher=="channel4.com")*1)`
	if expr != want {
		t.Errorf("rank = %s\nwant %s", expr, want)
	}
	if strings.Count(expr, "@publisher") != 3 {
		t.Errorf("unexpected expression %s", expr)
	}
}
