package memindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func newIndex(t *testing.T, docs ...*index.Document) *Index {
	t.Helper()
	x, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	for _, d := range docs {
		require.NoError(t, x.Put(context.Background(), d))
	}
	return x
}

func doc(id content.ID, p content.Publisher, title string) *index.Document {
	return &index.Document{ID: id, Kind: content.KindEpisode, Publisher: p, Active: true, Title: title}
}

func expr(t *testing.T, must, should, mustNot []filter.Condition) filter.Expression {
	t.Helper()
	e, err := filter.NewExpression(must, should, mustNot)
	require.NoError(t, err)
	return e
}

func match(t *testing.T, key string, values ...string) filter.Condition {
	t.Helper()
	c, err := filter.NewMatchAny(key, values...)
	require.NoError(t, err)
	return c
}

func between(t *testing.T, key string, gt, lt float64) filter.Condition {
	t.Helper()
	r, err := filter.NewRangeFilter(&gt, nil, &lt, nil)
	require.NoError(t, err)
	c, err := filter.NewRange(key, r)
	require.NoError(t, err)
	return c
}

func nested(t *testing.T, scope string, inner ...filter.Condition) filter.Condition {
	t.Helper()
	c, err := filter.NewNested(scope, expr(t, inner, nil, nil))
	require.NoError(t, err)
	return c
}

func ids(hits []result.RawHit) []content.ID {
	out := make([]content.ID, len(hits))
	for i, h := range hits {
		out[i] = h.ID()
	}
	return out
}

func TestPutGet_Copies(t *testing.T) {
	d := doc(1, content.BBC, "Doctor Who")
	d.Genres = []string{"drama"}
	x := newIndex(t, d)

	d.Genres[0] = "mutated"
	got, err := x.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"drama"}, got.Genres)

	got.Title = "changed"
	again, err := x.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Doctor Who", again.Title)

	_, err = x.Get(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrContentNotFound)
}

func TestQuery_TopLevelFilters(t *testing.T) {
	x := newIndex(t,
		doc(1, content.BBC, "Doctor Who"),
		doc(2, content.PA, "Doctor Who"),
		doc(3, content.BBC, "Dragons' Den"),
	)

	page, err := x.Query(context.Background(), &index.Query{
		Filter: expr(t, []filter.Condition{match(t, index.FieldPublisher, "bbc.co.uk")}, nil, nil),
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{1, 3}, ids(page.Hits))
	assert.Equal(t, 2, page.Total)

	prefix, err := filter.NewPrefix(index.FieldTitleSort, "doc")
	require.NoError(t, err)
	page, err = x.Query(context.Background(), &index.Query{
		Filter: expr(t, []filter.Condition{prefix}, nil, []filter.Condition{match(t, index.FieldKey, "2")}),
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{1}, ids(page.Hits))
}

func TestQuery_NestedMatchesOneSubDocumentJointly(t *testing.T) {
	// 1 has bbcone at t0 and bbctwo a day later; neither broadcast alone is
	// bbcone the day after.
	a := doc(1, content.BBC, "A")
	a.Broadcasts = []index.Broadcast{
		{Channel: "bbcone", Start: t0, Owner: 1, Active: true},
		{Channel: "bbctwo", Start: t0.Add(24 * time.Hour), Owner: 1, Active: true},
	}
	b := doc(2, content.BBC, "B")
	b.Broadcasts = []index.Broadcast{
		{Channel: "bbcone", Start: t0.Add(24 * time.Hour), Owner: 2, Active: true},
	}
	x := newIndex(t, a, b)

	from := float64(t0.Add(12 * time.Hour).Unix())
	to := float64(t0.Add(36 * time.Hour).Unix())
	page, err := x.Query(context.Background(), &index.Query{
		Filter: expr(t, []filter.Condition{
			nested(t, index.ScopeBroadcasts,
				match(t, index.FieldChannel, "bbcone"),
				between(t, index.FieldStart, from, to),
			),
		}, nil, nil),
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{2}, ids(page.Hits))
}

func TestQuery_ShouldAcrossScopes(t *testing.T) {
	watchable := doc(1, content.BBC, "A")
	watchable.Locations = []index.Location{{Available: true}}
	broadcast := doc(2, content.BBC, "B")
	broadcast.Broadcasts = []index.Broadcast{{Channel: "bbcone", Start: t0, Owner: 2, Active: true}}
	neither := doc(3, content.BBC, "C")
	x := newIndex(t, watchable, broadcast, neither)

	page, err := x.Query(context.Background(), &index.Query{
		Filter: expr(t, nil, []filter.Condition{
			nested(t, index.ScopeLocations, match(t, index.FieldAvailable, "true")),
			nested(t, index.ScopeBroadcasts, match(t, index.FieldActive, "true")),
		}, nil),
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{1, 2}, ids(page.Hits))
}

func TestQuery_SortNullsLast(t *testing.T) {
	a := doc(1, content.BBC, "A")
	a.Year = intPtr(2001)
	b := doc(2, content.BBC, "B")
	c := doc(3, content.BBC, "C")
	c.Year = intPtr(2010)
	x := newIndex(t, a, b, c)

	for _, desc := range []bool{false, true} {
		page, err := x.Query(context.Background(), &index.Query{
			Sort:  []index.SortKey{{Field: index.FieldYear, Desc: desc}},
			Limit: 10,
		})
		require.NoError(t, err)
		got := ids(page.Hits)
		assert.Equal(t, content.ID(2), got[2], "missing year must sort last (desc=%v)", desc)
	}
}

func TestQuery_PrecedenceTieBreak(t *testing.T) {
	x := newIndex(t,
		doc(1, content.PA, "A"),
		doc(2, content.BBC, "B"),
		doc(3, content.PA, "C"),
		doc(4, content.BBC, "D"),
	)

	page, err := x.Query(context.Background(), &index.Query{
		Precedence: []content.Publisher{content.BBC, content.PA},
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{2, 4, 1, 3}, ids(page.Hits))

	page, err = x.Query(context.Background(), &index.Query{
		Sort:            []index.SortKey{{Field: index.FieldTitleSort, Desc: true}},
		Precedence:      []content.Publisher{content.PA, content.BBC},
		PrecedenceFirst: true,
		Limit:           10,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{3, 1, 4, 2}, ids(page.Hits))
}

func TestQuery_FuzzyText(t *testing.T) {
	x := newIndex(t,
		doc(1, content.BBC, "The Great Pottery Throw Down"),
		doc(2, content.BBC, "Great British Bake Off"),
	)

	page, err := x.Query(context.Background(), &index.Query{Text: "potery", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{1}, ids(page.Hits))
	assert.Positive(t, page.Hits[0].Score())

	page, err = x.Query(context.Background(), &index.Query{Text: "great", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Hits, 2)
}

func TestQuery_Window(t *testing.T) {
	x := newIndex(t,
		doc(1, content.BBC, "A"),
		doc(2, content.BBC, "B"),
		doc(3, content.BBC, "C"),
	)

	page, err := x.Query(context.Background(), &index.Query{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []content.ID{2}, ids(page.Hits))
	assert.Equal(t, 3, page.Total)

	page, err = x.Query(context.Background(), &index.Query{Offset: 5, Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, page.Hits)
	assert.Equal(t, 3, page.Total)
}

func TestQuery_CancelledContext(t *testing.T) {
	x := newIndex(t, doc(1, content.BBC, "A"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Query(ctx, &index.Query{Limit: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateField(t *testing.T) {
	x := newIndex(t, doc(1, content.BBC, "A"))
	ctx := context.Background()

	require.NoError(t, x.UpdateField(ctx, 1, index.FieldCanonical, "9"))
	require.NoError(t, x.UpdateField(ctx, 1, index.FieldGroups, "5", "6"))

	got, err := x.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.Canonical)
	assert.Equal(t, content.ID(9), *got.Canonical)
	assert.Equal(t, []content.ID{5, 6}, got.Groups)

	assert.ErrorIs(t, x.UpdateField(ctx, 2, index.FieldCanonical, "9"), domain.ErrContentNotFound)
	assert.Error(t, x.UpdateField(ctx, 1, index.FieldTitle))
}

func TestGroupMembers(t *testing.T) {
	x := newIndex(t)
	ctx := context.Background()

	members, err := x.GroupMembers(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, x.SetGroupMembers(ctx, 5, []content.ID{1, 2}))
	members, err = x.GroupMembers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []content.ID{1, 2}, members)
}
