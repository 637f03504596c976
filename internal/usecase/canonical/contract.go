package canonical

import (
	"context"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/query"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

// Engine executes raw per-record queries.
type Engine interface {
	Query(
		ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
		sel query.Selection, params *query.IndexQueryParams,
	) (result.Page, error)
}

// Resolver maps raw ids to canonical ids in one batch. Ids without a mapping
// are absent from the result.
type Resolver interface {
	Lookup(ctx context.Context, ids []content.ID) (map[content.ID]content.ID, error)
}

// Observer receives per-query measurements. Optional.
type Observer interface {
	ObserveQuery(engine, status string)
	ObserveWidening(rounds, raw, canonical int)
	ObserveLookup(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, string) {}

func (nopObserver) ObserveWidening(int, int, int) {}

func (nopObserver) ObserveLookup(time.Duration, error) {}
