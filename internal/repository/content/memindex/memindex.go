// Package memindex is an in-process index client. It evaluates native queries
// directly against stored documents and scores fuzzy text with an in-memory
// bleve index.
package memindex

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
	"github.com/atlasmeta/contentdex/internal/domain/search/result"
)

const (
	docType   = "content"
	fieldText = "text"
)

// textDoc is what the bleve index sees of a document.
type textDoc struct {
	Text string `json:"text"`
}

// Index is a concurrency-safe in-memory index client.
type Index struct {
	mu     sync.RWMutex
	docs   map[content.ID]*index.Document
	groups map[content.ID][]content.ID
	text   bleve.Index
}

// New creates an empty index.
func New() (*Index, error) {
	text, err := bleve.NewMemOnly(textMapping())
	if err != nil {
		return nil, fmt.Errorf("create text index: %w", err)
	}
	return &Index{
		docs:   make(map[content.ID]*index.Document),
		groups: make(map[content.ID][]content.ID),
		text:   text,
	}, nil
}

func textMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	dm := bleve.NewDocumentMapping()
	tf := bleve.NewTextFieldMapping()
	tf.Store = false
	tf.Index = true
	tf.Analyzer = standard.Name
	dm.AddFieldMappingsAt(fieldText, tf)

	im.AddDocumentMapping(docType, dm)
	im.DefaultType = docType
	return im
}

// Close releases the text index.
func (x *Index) Close() error {
	return x.text.Close()
}

// Put stores a copy of doc, replacing any previous version.
func (x *Index) Put(_ context.Context, doc *index.Document) error {
	stored := clone(doc)

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.text.Index(doc.ID.String(), textDoc{Text: doc.Title + " " + doc.Description}); err != nil {
		return fmt.Errorf("index text %d: %w", doc.ID, err)
	}
	x.docs[doc.ID] = stored
	return nil
}

// Get returns a copy of the stored document, or domain.ErrContentNotFound.
func (x *Index) Get(_ context.Context, id content.ID) (*index.Document, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	doc, ok := x.docs[id]
	if !ok {
		return nil, domain.ErrContentNotFound
	}
	return clone(doc), nil
}

// UpdateField rewrites canonical_id or groups of an existing document.
func (x *Index) UpdateField(_ context.Context, id content.ID, field string, values ...string) error {
	ids := make([]content.ID, 0, len(values))
	for _, v := range values {
		parsed, err := content.ParseID(v)
		if err != nil {
			return fmt.Errorf("update %s of %d: %w", field, id, err)
		}
		ids = append(ids, parsed)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	doc, ok := x.docs[id]
	if !ok {
		return domain.ErrContentNotFound
	}
	updated := clone(doc)
	switch field {
	case index.FieldCanonical:
		switch len(ids) {
		case 0:
			updated.Canonical = nil
		case 1:
			updated.Canonical = &ids[0]
		default:
			return fmt.Errorf("update %s of %d: expected one value, got %d", field, id, len(ids))
		}
	case index.FieldGroups:
		updated.Groups = ids
	default:
		return fmt.Errorf("field %q is not updatable", field)
	}
	x.docs[id] = updated
	return nil
}

// GroupMembers returns the membership recorded by the last SetGroupMembers.
func (x *Index) GroupMembers(_ context.Context, group content.ID) ([]content.ID, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.groups[group]), nil
}

// SetGroupMembers replaces the recorded membership of group.
func (x *Index) SetGroupMembers(_ context.Context, group content.ID, members []content.ID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.groups[group] = slices.Clone(members)
	return nil
}

type candidate struct {
	doc   *index.Document
	score float64
}

// Query evaluates q over every stored document.
func (x *Index) Query(ctx context.Context, q *index.Query) (result.Page, error) {
	if err := ctx.Err(); err != nil {
		return result.Page{}, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var scores map[content.ID]float64
	if q.Text != "" {
		var err error
		if scores, err = x.textScores(q.Text); err != nil {
			return result.Page{}, err
		}
	}

	var matched []candidate
	for _, d := range x.docs {
		score := 0.0
		if scores != nil {
			s, ok := scores[d.ID]
			if !ok {
				continue
			}
			score = s
		}
		ok, err := matches(q.Filter, d.Field, d.Elements)
		if err != nil {
			return result.Page{}, err
		}
		if ok {
			matched = append(matched, candidate{doc: d, score: score})
		}
	}

	slices.SortFunc(matched, comparator(q))

	page := result.Page{Total: len(matched)}
	if q.Offset >= len(matched) || q.Limit <= 0 {
		return page, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	for _, c := range matched[q.Offset:end] {
		page.Hits = append(page.Hits, result.NewRawHit(c.doc.ID, c.score, c.doc.Publisher))
	}
	return page, nil
}

// textScores returns the relevance of every document matching all terms of
// text within edit distance 1.
func (x *Index) textScores(text string) (map[content.ID]float64, error) {
	n, err := x.text.DocCount()
	if err != nil {
		return nil, fmt.Errorf("text doc count: %w", err)
	}
	scores := make(map[content.ID]float64)
	if n == 0 {
		return scores, nil
	}

	mq := bleve.NewMatchQuery(text)
	mq.SetField(fieldText)
	mq.SetFuzziness(1)
	mq.SetOperator(query.MatchQueryOperatorAnd)

	res, err := x.text.Search(bleve.NewSearchRequestOptions(mq, int(n), 0, false))
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	for _, h := range res.Hits {
		id, err := content.ParseID(h.ID)
		if err != nil {
			continue
		}
		scores[id] = h.Score
	}
	return scores, nil
}

// matches evaluates expr against one document or sub-document. elems is nil
// inside a nested scope.
func matches(expr filter.Expression, get index.Getter, elems func(string) []index.Getter) (bool, error) {
	for _, c := range expr.Must() {
		ok, err := matchCondition(c, get, elems)
		if err != nil || !ok {
			return false, err
		}
	}

	if should := expr.Should(); len(should) > 0 {
		hit := false
		for _, c := range should {
			ok, err := matchCondition(c, get, elems)
			if err != nil {
				return false, err
			}
			if ok {
				hit = true
				break
			}
		}
		if !hit {
			return false, nil
		}
	}

	for _, c := range expr.MustNot() {
		ok, err := matchCondition(c, get, elems)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(c filter.Condition, get index.Getter, elems func(string) []index.Getter) (bool, error) {
	if c.IsNested() {
		if elems == nil {
			return false, fmt.Errorf("%w: nested scope %q inside a nested scope", domain.ErrInvalidQuery, c.Key())
		}
		for _, e := range elems(c.Key()) {
			ok, err := matches(*c.Nested(), e, nil)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	v, ok := get(c.Key())
	if !ok {
		return false, nil
	}

	switch {
	case c.IsMatch():
		for _, tag := range v.Tags {
			for _, want := range c.Values() {
				if strings.EqualFold(tag, want) {
					return true, nil
				}
			}
		}
		return false, nil
	case c.IsPrefix():
		prefix := strings.ToLower(c.Prefix())
		for _, tag := range v.Tags {
			if strings.HasPrefix(strings.ToLower(tag), prefix) {
				return true, nil
			}
		}
		return false, nil
	case c.IsRange():
		return v.IsNum && c.Range().Contains(v.Num), nil
	}
	return false, nil
}

// comparator orders candidates the way the Redis index client does.
func comparator(q *index.Query) func(a, b candidate) int {
	ranked := len(q.Precedence) > 1
	rank := func(a, b candidate) int {
		return cmp.Compare(
			content.Precedence(q.Precedence, a.doc.Publisher),
			content.Precedence(q.Precedence, b.doc.Publisher),
		)
	}

	return func(a, b candidate) int {
		if ranked && q.PrecedenceFirst {
			if c := rank(a, b); c != 0 {
				return c
			}
		}
		for _, k := range q.Sort {
			if c := compareField(a.doc, b.doc, k); c != 0 {
				return c
			}
		}
		if q.ScoresByRelevance() {
			if c := cmp.Compare(b.score, a.score); c != 0 {
				return c
			}
		}
		if ranked && !q.PrecedenceFirst {
			if c := rank(a, b); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.doc.ID, b.doc.ID)
	}
}

// compareField sorts documents missing the field last in both directions.
func compareField(a, b *index.Document, k index.SortKey) int {
	va, okA := a.Field(k.Field)
	vb, okB := b.Field(k.Field)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}

	var c int
	if va.IsNum {
		c = cmp.Compare(va.Num, vb.Num)
	} else {
		c = strings.Compare(first(va.Tags), first(vb.Tags))
	}
	if k.Desc {
		return -c
	}
	return c
}

func first(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}

func clone(d *index.Document) *index.Document {
	c := *d
	c.Genres = slices.Clone(d.Genres)
	c.Groups = slices.Clone(d.Groups)
	c.Broadcasts = slices.Clone(d.Broadcasts)
	c.Locations = slices.Clone(d.Locations)
	c.Topics = slices.Clone(d.Topics)
	return &c
}
