package indexer

import (
	"context"
	"fmt"

	"github.com/atlasmeta/contentdex/internal/domain"
	dombatch "github.com/atlasmeta/contentdex/internal/domain/batch"
	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// MaxBatchSize is the default maximum number of records per batch.
const MaxBatchSize = 100

// IndexBatch indexes items in order with per-item error reporting. An
// oversized batch fails every item without writing any of them; once ctx is
// done the remaining items fail with its error.
func (s *Service) IndexBatch(ctx context.Context, items []content.Content) []dombatch.Result {
	results := make([]dombatch.Result, len(items))

	if len(items) > s.maxBatchSize {
		for i, item := range items {
			results[i] = dombatch.NewError(
				item.ID,
				fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrInvalidContent),
			)
		}
		return results
	}

	for i := range items {
		item := &items[i]
		if err := ctx.Err(); err != nil {
			results[i] = dombatch.NewError(item.ID, fmt.Errorf("index: %w", err))
			continue
		}
		if err := s.Index(ctx, item); err != nil {
			results[i] = dombatch.NewError(item.ID, fmt.Errorf("index: %w", err))
			continue
		}
		results[i] = dombatch.NewOK(item.ID)
	}
	return results
}
