// Package indexer turns content records into index documents and keeps the
// fields written by other paths (series broadcasts, groups, canonical ids)
// consistent without re-indexing whole hierarchies.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/logger"
)

// Operation kinds reported to the observer.
const (
	KindContent     = "content"
	KindGroup       = "group"
	KindEquivalence = "equivalence"
)

// Service is the content indexer.
type Service struct {
	idx          Index
	eq           EquivalenceWriter
	obs          Observer
	maxBatchSize int
}

// New creates an indexer writing to idx.
func New(idx Index) *Service {
	return &Service{idx: idx, obs: nopObserver{}, maxBatchSize: MaxBatchSize}
}

// WithEquivalence enables AssignEquivalence.
func (s *Service) WithEquivalence(w EquivalenceWriter) *Service {
	s.eq = w
	return s
}

// WithObserver attaches a metrics observer.
func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.obs = o
	}
	return s
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Index writes the document for c. An episode also refreshes the broadcast
// facts of its parent, and of its previous parent when it moved.
func (s *Service) Index(ctx context.Context, c *content.Content) error {
	err := s.index(ctx, c)
	s.obs.ObserveIndex(KindContent, err)
	return err
}

func (s *Service) index(ctx context.Context, c *content.Content) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidContent, err)
	}

	existing, err := s.idx.Get(ctx, c.ID)
	switch {
	case errors.Is(err, domain.ErrContentNotFound):
		existing = nil
	case err != nil:
		return fmt.Errorf("get %d: %w", c.ID, err)
	}

	if err := s.idx.Put(ctx, Project(c, existing)); err != nil {
		return fmt.Errorf("put %d: %w", c.ID, err)
	}

	if old, ok := previousParent(existing); ok {
		if parent, _ := c.Parent(); c.Kind != content.KindEpisode || parent != old {
			gone := *c
			gone.Kind = content.KindEpisode
			gone.ActivelyPublished = false
			gone.Series = content.Ref(old)
			if err := s.denormalize(ctx, old, &gone); err != nil {
				return err
			}
		}
	}

	if c.Kind != content.KindEpisode {
		return nil
	}
	parent, ok := c.Parent()
	if !ok {
		return nil
	}
	return s.denormalize(ctx, parent, c)
}

// denormalize rewrites the broadcast facts of parent for episode. A parent
// that is not indexed yet is skipped.
func (s *Service) denormalize(ctx context.Context, parent content.ID, episode *content.Content) error {
	doc, err := s.idx.Get(ctx, parent)
	if errors.Is(err, domain.ErrContentNotFound) {
		logger.FromContext(ctx).Debug("parent not indexed, skipping denormalization",
			zap.Int64("episode", int64(episode.ID)),
			zap.Int64("parent", int64(parent)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get parent %d of %d: %w", parent, episode.ID, err)
	}
	if !doc.Kind.IsContainer() {
		return fmt.Errorf("%w: parent %d of episode %d is a %s", domain.ErrInvalidContent, parent, episode.ID, doc.Kind)
	}

	facts, err := Denormalize(episode, doc.Broadcasts)
	if err != nil {
		return err
	}
	if sameFacts(facts, doc.Broadcasts) {
		return nil
	}
	doc.Broadcasts = facts
	if err := s.idx.Put(ctx, doc); err != nil {
		return fmt.Errorf("put parent %d of %d: %w", parent, episode.ID, err)
	}
	return nil
}

func previousParent(doc *index.Document) (content.ID, bool) {
	if doc == nil || doc.Kind != content.KindEpisode {
		return 0, false
	}
	if doc.Series != nil {
		return *doc.Series, true
	}
	if doc.Container != nil {
		return *doc.Container, true
	}
	return 0, false
}

// IndexGroup projects the group id onto its members' documents. Members
// dropped since the last projection lose the id. Members not indexed yet are
// skipped; the count is returned.
func (s *Service) IndexGroup(ctx context.Context, g *content.Group) (int, error) {
	skipped, err := s.indexGroup(ctx, g)
	s.obs.ObserveIndex(KindGroup, err)
	return skipped, err
}

func (s *Service) indexGroup(ctx context.Context, g *content.Group) (int, error) {
	if g == nil {
		return 0, fmt.Errorf("%w: group is nil", domain.ErrInvalidContent)
	}
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrInvalidContent, err)
	}

	previous, err := s.idx.GroupMembers(ctx, g.ID)
	if err != nil {
		return 0, fmt.Errorf("group %d members: %w", g.ID, err)
	}
	members := distinct(g.Members)

	skipped := 0
	for _, id := range previous {
		if slices.Contains(members, id) {
			continue
		}
		if _, err := s.editGroups(ctx, id, g.ID, false); err != nil {
			return skipped, err
		}
	}
	for _, id := range members {
		found, err := s.editGroups(ctx, id, g.ID, true)
		if err != nil {
			return skipped, err
		}
		if !found {
			skipped++
		}
	}

	if err := s.idx.SetGroupMembers(ctx, g.ID, members); err != nil {
		return skipped, fmt.Errorf("set group %d members: %w", g.ID, err)
	}
	if skipped > 0 {
		logger.FromContext(ctx).Info("group members not indexed",
			zap.Int64("group", int64(g.ID)),
			zap.Int("skipped", skipped))
	}
	return skipped, nil
}

// editGroups adds or removes group on one document. found is false when the
// document is not indexed.
func (s *Service) editGroups(ctx context.Context, id, group content.ID, add bool) (bool, error) {
	doc, err := s.idx.Get(ctx, id)
	if errors.Is(err, domain.ErrContentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %d: %w", id, err)
	}

	has := slices.Contains(doc.Groups, group)
	if has == add {
		return true, nil
	}
	groups := slices.DeleteFunc(slices.Clone(doc.Groups), func(g content.ID) bool { return g == group })
	if add {
		groups = append(groups, group)
	}
	if err := s.idx.UpdateField(ctx, id, index.FieldGroups, content.Strings(groups)...); err != nil {
		return true, fmt.Errorf("update groups of %d: %w", id, err)
	}
	return true, nil
}

// UpdateCanonicalIDs sets the cached canonical id of every indexed member.
// Members not indexed yet are skipped; the count is returned.
func (s *Service) UpdateCanonicalIDs(ctx context.Context, canonical content.ID, members []content.ID) (int, error) {
	if canonical <= 0 {
		return 0, fmt.Errorf("%w: canonical id must be positive, got %d", domain.ErrInvalidContent, canonical)
	}
	return s.rewriteCanonical(ctx, members, canonical.String())
}

// ClearCanonicalIDs removes the cached canonical id of every indexed member.
func (s *Service) ClearCanonicalIDs(ctx context.Context, members []content.ID) (int, error) {
	return s.rewriteCanonical(ctx, members)
}

func (s *Service) rewriteCanonical(ctx context.Context, members []content.ID, value ...string) (int, error) {
	skipped := 0
	for _, id := range distinct(members) {
		err := s.idx.UpdateField(ctx, id, index.FieldCanonical, value...)
		if errors.Is(err, domain.ErrContentNotFound) {
			skipped++
			continue
		}
		if err != nil {
			return skipped, fmt.Errorf("update canonical of %d: %w", id, err)
		}
	}
	return skipped, nil
}

// AssignEquivalence replaces the class of canonical with members, then
// rewrites the cached canonical ids of joined and detached documents.
func (s *Service) AssignEquivalence(ctx context.Context, canonical content.ID, members []content.ID) (int, error) {
	skipped, err := s.assign(ctx, canonical, members)
	s.obs.ObserveIndex(KindEquivalence, err)
	return skipped, err
}

func (s *Service) assign(ctx context.Context, canonical content.ID, members []content.ID) (int, error) {
	if s.eq == nil {
		return 0, fmt.Errorf("equivalence writer: %w", domain.ErrNotImplemented)
	}
	if canonical <= 0 {
		return 0, fmt.Errorf("%w: canonical id must be positive, got %d", domain.ErrInvalidContent, canonical)
	}
	for _, m := range members {
		if m <= 0 {
			return 0, fmt.Errorf("%w: member id must be positive, got %d", domain.ErrInvalidContent, m)
		}
	}

	class, detached, err := s.eq.Assign(ctx, canonical, members)
	if err != nil {
		return 0, fmt.Errorf("assign %d: %w", canonical, err)
	}

	skipped, err := s.UpdateCanonicalIDs(ctx, canonical, class)
	if err != nil {
		return skipped, err
	}
	if _, err := s.ClearCanonicalIDs(ctx, detached); err != nil {
		return skipped, err
	}
	return skipped, nil
}

// distinct drops repeated ids, keeping first-seen order.
func distinct(ids []content.ID) []content.ID {
	out := make([]content.ID, 0, len(ids))
	seen := make(map[content.ID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
