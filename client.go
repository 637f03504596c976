// Package contentdex embeds the content index in-process: index publisher
// records, project groups and equivalence classes, and run canonical
// searches without the HTTP server.
package contentdex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/db"
	dbRedis "github.com/atlasmeta/contentdex/internal/db/redis"
	dombatch "github.com/atlasmeta/contentdex/internal/domain/batch"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	logpkg "github.com/atlasmeta/contentdex/internal/logger"
	contentrepo "github.com/atlasmeta/contentdex/internal/repository/content"
	"github.com/atlasmeta/contentdex/internal/repository/content/memindex"
	"github.com/atlasmeta/contentdex/internal/repository/equivalence"
	"github.com/atlasmeta/contentdex/internal/usecase/canonical"
	indexeruc "github.com/atlasmeta/contentdex/internal/usecase/indexer"
	searchuc "github.com/atlasmeta/contentdex/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Re-exported domain types.
type (
	// ID identifies a content record or group.
	ID = content.ID
	// Content is a publisher's record of an item, episode, film, series or brand.
	Content = content.Content
	// Group is an ordered collection of content.
	Group = content.Group
	// Publisher is the source tag of a content record.
	Publisher = content.Publisher
	// Document is the stored index projection of a content record.
	Document = index.Document
)

type backend interface {
	indexeruc.Index
	searchuc.Index
}

// Client is the contentdex entry point.
type Client struct {
	store     db.Store
	closer    io.Closer
	idx       backend
	indexer   *indexeruc.Service
	engine    *searchuc.Service
	canonical *canonical.Service
	log       *zap.Logger

	defaultLimit int
	maxLimit     int
}

// New creates a Client. One of WithRedis or WithMemory is required.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	switch cfg.driver {
	case "redis":
		if len(cfg.addrs) == 0 || cfg.addrs[0] == "" {
			return nil, errors.New("contentdex: redis address required")
		}
		store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("contentdex: create redis store: %w", err)
		}
		ctx := context.Background()
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("contentdex: database not ready: %w", err)
		}
		repo := contentrepo.New(store, cfg.keyPrefix)
		if cfg.maxNestedJoin > 0 {
			repo = repo.WithMaxNestedJoin(cfg.maxNestedJoin)
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("contentdex: ensure indexes: %w", err)
		}
		if cfg.equivalence == nil {
			cfg.equivalence = equivalence.New(store, cfg.keyPrefix)
		}
		c := wireClient(repo, cfg)
		c.store = store
		return c, nil
	case "memory":
		mem, err := memindex.New()
		if err != nil {
			return nil, fmt.Errorf("contentdex: create memory index: %w", err)
		}
		if cfg.equivalence == nil {
			cfg.equivalence = equivalence.NewMemory()
		}
		c := wireClient(mem, cfg)
		c.closer = mem
		return c, nil
	case "":
		return nil, errors.New("contentdex: storage required (use WithRedis or WithMemory)")
	default:
		return nil, fmt.Errorf("contentdex: unknown driver %q", cfg.driver)
	}
}

func wireClient(idx backend, cfg *clientConfig) *Client {
	engine := searchuc.New(idx, cfg.equivalence)
	canonicalSvc := canonical.New(engine, cfg.equivalence).WithPolicy(cfg.policy)
	if cfg.queryTimeout > 0 {
		canonicalSvc = canonicalSvc.WithTimeout(cfg.queryTimeout)
	}
	indexSvc := indexeruc.New(idx).WithEquivalence(cfg.equivalence)
	if cfg.maxBatchSize > 0 {
		indexSvc = indexSvc.WithMaxBatchSize(cfg.maxBatchSize)
	}

	log := cfg.logger
	if log == nil {
		log = zap.NewNop()
	}
	defaultLimit, maxLimit := cfg.defaultLimit, cfg.maxLimit
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	return &Client{
		idx:          idx,
		indexer:      indexSvc,
		engine:       engine,
		canonical:    canonicalSvc,
		log:          log,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.closer != nil {
		_ = c.closer.Close()
	}
}

// Ping checks database connectivity. Always nil for the memory backend.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Index projects one content record into the index.
func (c *Client) Index(ctx context.Context, item *Content) error {
	if err := c.indexer.Index(c.withLogger(ctx), item); err != nil {
		return fmt.Errorf("index %d: %w", item.ID, err)
	}
	return nil
}

// BatchResult is the outcome of one IndexBatch item.
type BatchResult struct {
	ID  ID
	Err error
}

// IndexBatch indexes items independently and reports one result per item.
func (c *Client) IndexBatch(ctx context.Context, items []Content) []BatchResult {
	results := c.indexer.IndexBatch(c.withLogger(ctx), items)
	if _, failed := dombatch.Tally(results); failed > 0 {
		c.log.Debug("batch items not indexed",
			zap.Int("failed", failed),
			zap.Int("total", len(results)),
		)
	}
	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{ID: r.ID()}
		if !r.OK() {
			out[i].Err = r.Err()
		}
	}
	return out
}

// IndexGroup projects group membership onto member documents and returns
// how many members are not indexed yet.
func (c *Client) IndexGroup(ctx context.Context, g *Group) (int, error) {
	skipped, err := c.indexer.IndexGroup(c.withLogger(ctx), g)
	if err != nil {
		return skipped, fmt.Errorf("index group %d: %w", g.ID, err)
	}
	return skipped, nil
}

// AssignEquivalence makes members equivalent to canonical and rewrites the
// canonical ids cached on their documents.
func (c *Client) AssignEquivalence(ctx context.Context, canonicalID ID, members []ID) (int, error) {
	skipped, err := c.indexer.AssignEquivalence(c.withLogger(ctx), canonicalID, members)
	if err != nil {
		return skipped, fmt.Errorf("assign equivalence %d: %w", canonicalID, err)
	}
	return skipped, nil
}

// Get returns the stored document for id.
func (c *Client) Get(ctx context.Context, id ID) (*Document, error) {
	doc, err := c.idx.Get(c.withLogger(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("get %d: %w", id, err)
	}
	return doc, nil
}

// Search starts a query over the given publishers.
func (c *Client) Search(publishers ...Publisher) *SearchBuilder {
	return &SearchBuilder{client: c, publishers: publishers, equivalent: true}
}

func (c *Client) withLogger(ctx context.Context) context.Context {
	if _, ok := logpkg.Lookup(ctx); ok {
		return ctx
	}
	return logpkg.ContextWithLogger(ctx, c.log)
}
