// Package equivalence resolves content ids to the canonical id of their
// equivalence class.
package equivalence

import (
	"context"
	"fmt"
	"slices"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// store is the consumer interface for equivalence records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HMGet(ctx context.Context, key string, fields ...string) ([]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Store keeps the id → canonical mapping in one hash and each class's
// members in a set keyed by its canonical id.
type Store struct {
	store  store
	prefix string
}

// New creates a Redis-backed resolver writing under prefix.
func New(s store, prefix string) *Store {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	return &Store{store: s, prefix: prefix}
}

func (s *Store) canonicalKey() string { return s.prefix + "eq:canonical" }

func (s *Store) membersKey(canonical content.ID) string {
	return s.prefix + "eq:members:" + canonical.String()
}

// Lookup returns the canonical id of every id that has one. Ids without a
// mapping are absent from the result.
func (s *Store) Lookup(ctx context.Context, ids []content.ID) (map[content.ID]content.ID, error) {
	out := make(map[content.ID]content.ID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	vals, err := s.store.HMGet(ctx, s.canonicalKey(), content.Strings(ids)...)
	if err != nil {
		return nil, fmt.Errorf("equivalence lookup: %w", err)
	}
	for i, v := range vals {
		if v == "" {
			continue
		}
		c, err := content.ParseID(v)
		if err != nil {
			return nil, fmt.Errorf("equivalence lookup %d: %w", ids[i], err)
		}
		out[ids[i]] = c
	}
	return out, nil
}

// ReverseLookup returns the members of canonical's class in ascending order.
// The canonical id is always a member of its own class.
func (s *Store) ReverseLookup(ctx context.Context, canonical content.ID) ([]content.ID, error) {
	raw, err := s.store.SMembers(ctx, s.membersKey(canonical))
	if err != nil {
		return nil, fmt.Errorf("equivalence reverse lookup %d: %w", canonical, err)
	}
	members, err := parseIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("equivalence reverse lookup %d: %w", canonical, err)
	}
	return withCanonical(canonical, members), nil
}

// Assign makes members (plus canonical itself) the whole class of canonical
// and returns that class. Members are moved out of any class they belonged to
// before; a member that was itself a canonical brings its class along.
// Previous members of canonical's class that are not listed become singletons
// and are returned as detached.
func (s *Store) Assign(ctx context.Context, canonical content.ID, members []content.ID) (class, detached []content.ID, err error) {
	class = withCanonical(canonical, members)

	oldRaw, err := s.store.SMembers(ctx, s.membersKey(canonical))
	if err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}
	old, err := parseIDs(oldRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}

	prev, err := s.Lookup(ctx, class)
	if err != nil {
		return nil, nil, err
	}
	stale := []string{s.membersKey(canonical)}
	absorbed := make(map[content.ID]bool)
	moved := make(map[content.ID][]string)
	for _, m := range class {
		p, ok := prev[m]
		if !ok || p == canonical {
			continue
		}
		if p != m {
			moved[p] = append(moved[p], m.String())
			continue
		}
		raw, err := s.store.SMembers(ctx, s.membersKey(m))
		if err != nil {
			return nil, nil, fmt.Errorf("equivalence assign %d: absorb %d: %w", canonical, m, err)
		}
		ids, err := parseIDs(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("equivalence assign %d: absorb %d: %w", canonical, m, err)
		}
		class = append(class, ids...)
		absorbed[m] = true
		stale = append(stale, s.membersKey(m))
	}
	class = withCanonical(canonical, class)
	for p, ms := range moved {
		if absorbed[p] {
			continue
		}
		if err := s.store.SRem(ctx, s.membersKey(p), ms...); err != nil {
			return nil, nil, fmt.Errorf("equivalence assign %d: detach from %d: %w", canonical, p, err)
		}
	}

	detached = detachedMembers(old, class)
	if len(detached) > 0 {
		if err := s.store.HDel(ctx, s.canonicalKey(), content.Strings(detached)...); err != nil {
			return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
		}
	}

	mapping := make(map[string]string, len(class))
	for _, m := range class {
		mapping[m.String()] = canonical.String()
	}
	if err := s.store.HSet(ctx, s.canonicalKey(), mapping); err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}
	if err := s.store.Del(ctx, stale...); err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}
	if err := s.store.SAdd(ctx, s.membersKey(canonical), content.Strings(class)...); err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}
	return class, detached, nil
}

func parseIDs(raw []string) ([]content.ID, error) {
	ids := make([]content.ID, 0, len(raw))
	for _, r := range raw {
		id, err := content.ParseID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// withCanonical returns the sorted, distinct union of members and canonical.
func withCanonical(canonical content.ID, members []content.ID) []content.ID {
	out := append([]content.ID{canonical}, members...)
	slices.Sort(out)
	return slices.Compact(out)
}

// detachedMembers returns the ids of old that are not in current, ascending.
func detachedMembers(old, current []content.ID) []content.ID {
	var out []content.ID
	for _, o := range old {
		if !slices.Contains(current, o) {
			out = append(out, o)
		}
	}
	slices.Sort(out)
	return out
}
