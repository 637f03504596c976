package equivalence

import (
	"context"
	"sync"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// Memory is an in-process resolver with the same semantics as Store.
type Memory struct {
	mu        sync.RWMutex
	canonical map[content.ID]content.ID
	members   map[content.ID][]content.ID
}

// NewMemory creates an empty in-process resolver.
func NewMemory() *Memory {
	return &Memory{
		canonical: make(map[content.ID]content.ID),
		members:   make(map[content.ID][]content.ID),
	}
}

// Lookup returns the canonical id of every id that has one.
func (m *Memory) Lookup(_ context.Context, ids []content.ID) (map[content.ID]content.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[content.ID]content.ID, len(ids))
	for _, id := range ids {
		if c, ok := m.canonical[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

// ReverseLookup returns the members of canonical's class in ascending order.
func (m *Memory) ReverseLookup(_ context.Context, canonical content.ID) ([]content.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return withCanonical(canonical, m.members[canonical]), nil
}

// Assign replaces canonical's class and returns the resulting class and the
// members it detached. A listed member that is itself a canonical brings its
// class along.
func (m *Memory) Assign(_ context.Context, canonical content.ID, members []content.ID) (class, detached []content.ID, err error) {
	class = withCanonical(canonical, members)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range class {
		if id != canonical && m.canonical[id] == id {
			class = append(class, m.members[id]...)
			delete(m.members, id)
		}
	}
	class = withCanonical(canonical, class)

	for _, id := range class {
		p, ok := m.canonical[id]
		if !ok || p == canonical {
			continue
		}
		old, live := m.members[p]
		if !live {
			continue
		}
		var kept []content.ID
		for _, o := range old {
			if o != id {
				kept = append(kept, o)
			}
		}
		m.members[p] = kept
	}

	detached = detachedMembers(m.members[canonical], class)
	for _, d := range detached {
		delete(m.canonical, d)
	}
	for _, id := range class {
		m.canonical[id] = canonical
	}
	m.members[canonical] = class
	return class, detached, nil
}
