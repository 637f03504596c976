package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/query"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

// Service is the per-publisher ("unequivalent") query engine: every raw
// record is its own hit.
type Service struct {
	index Index
	eq    Equivalence
}

// New creates a query engine.
func New(idx Index, eq Equivalence) *Service {
	return &Service{index: idx, eq: eq}
}

// Query returns the raw hits in window sel plus the total number of
// matching records. A zero sel.Limit only counts.
func (s *Service) Query(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (result.Page, error) {
	nq, err := s.Translate(ctx, qs, publishers, sel, params)
	if err != nil {
		return result.Page{}, err
	}

	page, err := s.index.Query(ctx, nq)
	if err != nil {
		return result.Page{}, queryFailed(err)
	}
	return page, nil
}

// Results runs Query and wraps the window as an unequivalent result where
// every raw id is its own group.
func (s *Service) Results(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (*result.IndexQueryResult, error) {
	page, err := s.Query(ctx, qs, publishers, sel, params)
	if err != nil {
		return nil, err
	}
	return result.FromPage(&page, 0, len(page.Hits)), nil
}

// queryFailed marks index failures as ErrQueryFailed. Validation errors and
// ErrQueryTooBroad pass through unchanged.
func queryFailed(err error) error {
	if errors.Is(err, domain.ErrInvalidQuery) || errors.Is(err, domain.ErrQueryTooBroad) ||
		errors.Is(err, domain.ErrQueryFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrQueryFailed, err)
}
