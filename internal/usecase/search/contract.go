package search

import (
	"context"

	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

// Index executes native queries against the per-record index.
type Index interface {
	Query(ctx context.Context, q *index.Query) (result.Page, error)
}

// Equivalence expands a brand scope to every member of its class.
type Equivalence interface {
	Lookup(ctx context.Context, ids []content.ID) (map[content.ID]content.ID, error)
	ReverseLookup(ctx context.Context, canonical content.ID) ([]content.ID, error)
}
