package contentdex

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// Option configures a Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// Equivalence is an external equivalence backend (for example the MongoDB
// resolver). Ids without a mapping are absent from Lookup results.
type Equivalence interface {
	Lookup(ctx context.Context, ids []content.ID) (map[content.ID]content.ID, error)
	ReverseLookup(ctx context.Context, canonical content.ID) ([]content.ID, error)
	Assign(ctx context.Context, canonical content.ID, members []content.ID) (class, detached []content.ID, err error)
}

type clientConfig struct {
	driver   string // "redis" or "memory"
	addrs    []string
	password string

	keyPrefix     string
	maxNestedJoin int
	maxBatchSize  int
	defaultLimit  int
	maxLimit      int

	policy       domain.WideningPolicy
	queryTimeout time.Duration
	equivalence  Equivalence
	logger       *zap.Logger
}

// WithRedis stores the index in Redis with the search and JSON modules.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMemory keeps the index and equivalence classes in process memory.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
	})
}

// WithKeyPrefix sets the Redis key prefix (default "cdx:").
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) { c.keyPrefix = prefix })
}

// WithMaxNestedJoin caps the parents a nested clause may join.
func WithMaxNestedJoin(n int) Option {
	return optionFunc(func(c *clientConfig) { c.maxNestedJoin = n })
}

// WithMaxBatchSize caps IndexBatch.
func WithMaxBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) { c.maxBatchSize = n })
}

// WithPageSize sets the default and maximum search page size.
func WithPageSize(defaultLimit, maxLimit int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultLimit = defaultLimit
		c.maxLimit = maxLimit
	})
}

// WithWidening tunes canonical over-fetching. Zero fields keep their defaults.
func WithWidening(initialFactor, growthFactor float64, maxRounds, maxWindow int) Option {
	return optionFunc(func(c *clientConfig) {
		c.policy = domain.WideningPolicy{
			InitialFactor: initialFactor,
			GrowthFactor:  growthFactor,
			MaxRounds:     maxRounds,
			MaxWindow:     maxWindow,
		}
	})
}

// WithQueryTimeout bounds every canonical search.
func WithQueryTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) { c.queryTimeout = d })
}

// WithEquivalence replaces the built-in equivalence store.
func WithEquivalence(eq Equivalence) Option {
	return optionFunc(func(c *clientConfig) { c.equivalence = eq })
}

// WithLogger sets the logger used by the client's services.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) { c.logger = l })
}
