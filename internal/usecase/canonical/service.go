// Package canonical collapses per-publisher hits into one canonical id per
// equivalence class while keeping pagination over the collapsed sequence.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/query"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
	"github.com/atlasmeta/contentdex/internal/logger"
)

const engineName = "canonical"

// Service is the canonicalizing query orchestrator. It holds no per-query
// state; every call builds a fresh result.
type Service struct {
	engine   Engine
	resolver Resolver
	policy   domain.WideningPolicy
	timeout  time.Duration
	obs      Observer
}

// New creates an orchestrator with the default widening policy and no timeout.
func New(engine Engine, resolver Resolver) *Service {
	return &Service{
		engine:   engine,
		resolver: resolver,
		policy:   domain.DefaultWideningPolicy(),
		obs:      nopObserver{},
	}
}

// WithPolicy overrides the widening policy; zero fields keep their defaults.
func (s *Service) WithPolicy(p domain.WideningPolicy) *Service {
	def := domain.DefaultWideningPolicy()
	if p.InitialFactor < 1 {
		p.InitialFactor = def.InitialFactor
	}
	if p.GrowthFactor < 1 {
		p.GrowthFactor = def.GrowthFactor
	}
	if p.MaxRounds <= 0 {
		p.MaxRounds = def.MaxRounds
	}
	if p.MaxWindow <= 0 {
		p.MaxWindow = def.MaxWindow
	}
	s.policy = p
	return s
}

// WithTimeout bounds the whole pipeline (every round and lookup) by d.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// WithObserver attaches a metrics observer.
func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.obs = o
	}
	return s
}

// Query returns the canonical ids in window sel. The total is the raw
// engine total, an upper bound on the number of distinct canonical ids.
func (s *Service) Query(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (*result.IndexQueryResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.run(ctx, qs, publishers, sel, params)
	switch {
	case err != nil:
		s.obs.ObserveQuery(engineName, "error")
	case res.Incomplete():
		s.obs.ObserveQuery(engineName, "incomplete")
	default:
		s.obs.ObserveQuery(engineName, "ok")
	}
	return res, err
}

func (s *Service) run(
	ctx context.Context, qs query.AttributeQuerySet, publishers []content.Publisher,
	sel query.Selection, params *query.IndexQueryParams,
) (*result.IndexQueryResult, error) {
	if sel.Offset < 0 || sel.Limit < 0 {
		return nil, domain.NewQueryError("selection", "offset and limit must not be negative")
	}
	if sel.Limit == 0 {
		page, err := s.engine.Query(ctx, qs, publishers, query.Selection{}, params)
		if err != nil {
			return nil, firstRoundError(err)
		}
		return result.Empty(page.Total), nil
	}

	need := sel.End()
	window := s.initialWindow(need)
	b := result.NewBuilder()
	fetched, total, rounds := 0, 0, 0

	for {
		rounds++
		page, err := s.engine.Query(ctx, qs, publishers, query.Selection{Offset: fetched, Limit: window - fetched}, params)
		if err == nil {
			err = s.collapse(ctx, b, page.Hits)
		}
		if err != nil {
			return s.partial(ctx, b, sel, total, rounds, err)
		}
		total = page.Total
		fetched += len(page.Hits)

		if b.Len() >= need || fetched >= total || len(page.Hits) == 0 {
			s.obs.ObserveWidening(rounds, b.Raw(), b.Len())
			return b.Build(sel.Offset, sel.Limit, total, false), nil
		}
		if rounds >= s.policy.MaxRounds || window >= s.policy.MaxWindow {
			s.obs.ObserveWidening(rounds, b.Raw(), b.Len())
			logger.FromContext(ctx).Info("canonical page cut short",
				zap.Int("rounds", rounds),
				zap.Int("raw", b.Raw()),
				zap.Int("canonical", b.Len()),
				zap.Int("need", need))
			return b.Build(sel.Offset, sel.Limit, total, true), nil
		}
		window = s.nextWindow(need, window, total, b)
	}
}

// collapse resolves one round's hits with a single lookup and groups them.
// Misses are singleton classes.
func (s *Service) collapse(ctx context.Context, b *result.Builder, hits []result.RawHit) error {
	if len(hits) == 0 {
		return nil
	}
	ids := make([]content.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID()
	}

	start := time.Now()
	canon, err := s.resolver.Lookup(ctx, ids)
	s.obs.ObserveLookup(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("equivalence lookup: %w", err)
	}

	for _, id := range ids {
		c, ok := canon[id]
		if !ok {
			c = id
		}
		b.Add(c, id)
	}
	return nil
}

// partial returns what earlier rounds gathered, marked incomplete. With
// nothing gathered yet the error is returned instead.
func (s *Service) partial(
	ctx context.Context, b *result.Builder, sel query.Selection, total, rounds int, err error,
) (*result.IndexQueryResult, error) {
	if b.Raw() == 0 {
		return nil, firstRoundError(err)
	}
	s.obs.ObserveWidening(rounds, b.Raw(), b.Len())
	logger.FromContext(ctx).Warn("widening round failed, returning partial result",
		zap.Int("round", rounds),
		zap.Int("raw", b.Raw()),
		zap.Error(err))
	return b.Build(sel.Offset, sel.Limit, total, true), nil
}

func (s *Service) initialWindow(need int) int {
	w := int(math.Ceil(s.policy.InitialFactor * float64(need)))
	return min(max(w, need), s.policy.MaxWindow)
}

// nextWindow grows the raw window by the collapse ratio observed so far.
func (s *Service) nextWindow(need, window, total int, b *result.Builder) int {
	ratio := 1.0
	if b.Len() > 0 {
		ratio = float64(b.Raw()) / float64(b.Len())
	}
	next := int(math.Ceil(float64(need) * ratio * s.policy.GrowthFactor))
	next = max(next, window+1)
	return min(next, total, s.policy.MaxWindow)
}

func firstRoundError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrQueryTooBroad):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrQueryTimeout, err)
	case errors.Is(err, domain.ErrQueryFailed):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrQueryFailed, err)
}
