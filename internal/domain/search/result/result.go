package result

import "github.com/atlasmeta/contentdex/internal/domain/content"

// RawHit is a single per-record index hit.
type RawHit struct {
	id        content.ID
	score     float64
	publisher content.Publisher
}

// NewRawHit creates a raw hit.
func NewRawHit(id content.ID, score float64, publisher content.Publisher) RawHit {
	return RawHit{id: id, score: score, publisher: publisher}
}

// ID returns the record identifier.
func (h RawHit) ID() content.ID { return h.id }

// Score returns the relevance score (zero when the query had no fuzzy term).
func (h RawHit) Score() float64 { return h.score }

// Publisher returns the source publisher of the record.
func (h RawHit) Publisher() content.Publisher { return h.publisher }

// Page is an ordered window of raw hits plus the total number of matching records.
type Page struct {
	Hits  []RawHit
	Total int
}

// IndexQueryResult is the ordered, de-duplicated result of a query.
//
// ids holds canonical ids for equivalence-aware queries and raw ids otherwise.
// groups maps each result id to the raw ids that collapsed into it,
// in first-seen order. total is an upper bound on the number of distinct ids.
type IndexQueryResult struct {
	ids        []content.ID
	groups     map[content.ID][]content.ID
	total      int
	incomplete bool
}

// IDs returns the ordered result ids.
func (r *IndexQueryResult) IDs() []content.ID { return r.ids }

// Members returns the raw ids grouped under result id.
func (r *IndexQueryResult) Members(id content.ID) []content.ID { return r.groups[id] }

// Groups returns the full result id → raw ids multimap.
func (r *IndexQueryResult) Groups() map[content.ID][]content.ID { return r.groups }

// Total returns the total-count estimate.
func (r *IndexQueryResult) Total() int { return r.total }

// Incomplete reports whether the result was cut short by a widening limit,
// a timeout, or a failed widening round.
func (r *IndexQueryResult) Incomplete() bool { return r.incomplete }

// Empty returns a result with no ids.
func Empty(total int) *IndexQueryResult {
	return &IndexQueryResult{groups: map[content.ID][]content.ID{}, total: total}
}

// FromPage builds an unequivalent result where every raw id is its own group.
func FromPage(p *Page, offset, limit int) *IndexQueryResult {
	b := NewBuilder()
	for _, h := range p.Hits {
		b.Add(h.ID(), h.ID())
	}
	return b.Build(offset, limit, p.Total, false)
}

// Builder groups raw ids under their canonical ids preserving first-seen order.
// A Builder is not safe for concurrent use.
type Builder struct {
	order  []content.ID
	groups map[content.ID][]content.ID
	seen   map[content.ID]struct{}
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		groups: make(map[content.ID][]content.ID),
		seen:   make(map[content.ID]struct{}),
	}
}

// Add records raw under canonical. Adding the same raw id twice is a no-op.
func (b *Builder) Add(canonical, raw content.ID) {
	if _, dup := b.seen[raw]; dup {
		return
	}
	b.seen[raw] = struct{}{}
	if _, ok := b.groups[canonical]; !ok {
		b.order = append(b.order, canonical)
	}
	b.groups[canonical] = append(b.groups[canonical], raw)
}

// Len returns the number of distinct canonical ids gathered so far.
func (b *Builder) Len() int { return len(b.order) }

// Raw returns the number of distinct raw ids gathered so far.
func (b *Builder) Raw() int { return len(b.seen) }

// Build applies offset/limit to the canonical sequence and snapshots the result.
// The returned value shares no state with the Builder.
func (b *Builder) Build(offset, limit, total int, incomplete bool) *IndexQueryResult {
	start := min(max(offset, 0), len(b.order))
	end := len(b.order)
	if limit >= 0 {
		end = min(start+limit, len(b.order))
	}

	ids := make([]content.ID, end-start)
	copy(ids, b.order[start:end])

	groups := make(map[content.ID][]content.ID, len(ids))
	for _, id := range ids {
		members := make([]content.ID, len(b.groups[id]))
		copy(members, b.groups[id])
		groups[id] = members
	}

	// The raw total can undercount when the index changed between rounds.
	total = max(total, len(b.order))

	return &IndexQueryResult{ids: ids, groups: groups, total: total, incomplete: incomplete}
}
