package content

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atlasmeta/contentdex/internal/db"
	domcontent "github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	mu sync.Mutex

	jsonSetFn      func(ctx context.Context, key, path string, data []byte) error
	jsonSetMultiFn func(ctx context.Context, items []db.JSONSetItem) error
	jsonGetFn      func(ctx context.Context, key string, paths ...string) ([]byte, error)
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	delFn          func(ctx context.Context, keys ...string) error
	getFn          func(ctx context.Context, key string) ([]byte, error)
	setFn          func(ctx context.Context, key string, value []byte) error
	saddFn         func(ctx context.Context, key string, members ...string) error
	smembersFn     func(ctx context.Context, key string) ([]string, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn    func(ctx context.Context, name string) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	aggregateFn    func(ctx context.Context, q *db.AggregateQuery) (*db.SearchResult, error)
	aggregateAllFn func(ctx context.Context, q *db.AggregateQuery, limit int) (*db.SearchResult, error)
	searchCountFn  func(ctx context.Context, q *db.AggregateQuery) (int, error)

	aggregates []*db.AggregateQuery
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	return nil
}

func (m *mockStore) JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error {
	if m.jsonSetMultiFn != nil {
		return m.jsonSetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) SAdd(ctx context.Context, key string, members ...string) error {
	if m.saddFn != nil {
		return m.saddFn(ctx, key, members...)
	}
	return nil
}

func (m *mockStore) SMembers(ctx context.Context, key string) ([]string, error) {
	if m.smembersFn != nil {
		return m.smembersFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

// Aggregate records every query; joins and page queries run concurrently.
func (m *mockStore) Aggregate(ctx context.Context, q *db.AggregateQuery) (*db.SearchResult, error) {
	m.mu.Lock()
	m.aggregates = append(m.aggregates, q)
	m.mu.Unlock()
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

// AggregateAll falls back to Aggregate, keeping at most limit+1 rows.
func (m *mockStore) AggregateAll(ctx context.Context, q *db.AggregateQuery, limit int) (*db.SearchResult, error) {
	if m.aggregateAllFn != nil {
		return m.aggregateAllFn(ctx, q, limit)
	}
	res, err := m.Aggregate(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) > limit+1 {
		res.Entries = res.Entries[:limit+1]
	}
	return res, nil
}

func (m *mockStore) SearchCount(ctx context.Context, q *db.AggregateQuery) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, q)
	}
	return 0, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "cdx:"), ms
}

func testEpisode(t *testing.T) *index.Document {
	t.Helper()
	start := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	year := 2024
	return &index.Document{
		ID:        42,
		Kind:      domcontent.KindEpisode,
		Publisher: domcontent.BBC,
		Active:    true,
		Title:     "The Great Pottery Throw Down",
		Genres:    []string{"factual", "craft"},
		Year:      &year,
		Series:    domcontent.Ref(7),
		Broadcasts: []index.Broadcast{
			{Channel: "bbctwo", Start: start, End: start.Add(time.Hour), Owner: 42, Active: true},
			{Channel: "bbcfour", Start: start.AddDate(0, 0, 3), End: start.AddDate(0, 0, 3).Add(time.Hour), Owner: 42, Active: true},
		},
		Locations: []index.Location{{Available: true, Platform: "ios"}},
	}
}
