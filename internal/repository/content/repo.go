// Package content stores index documents in Redis JSON and queries them
// through RediSearch.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/atlasmeta/contentdex/internal/db"
	"github.com/atlasmeta/contentdex/internal/domain"
	domcontent "github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// DefaultMaxNestedJoin caps the parents a single nested clause may resolve to.
const DefaultMaxNestedJoin = 50000

// joinBatch is the number of parents read per cursor round trip.
const joinBatch = 1000

// store is the consumer interface for index documents (ISP).
//
//nolint:interfacebloat // index client needs json + hash + set + index + search
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Aggregate(ctx context.Context, q *db.AggregateQuery) (*db.SearchResult, error)
	AggregateAll(ctx context.Context, q *db.AggregateQuery, limit int) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.AggregateQuery) (int, error)
}

// Repo is the Redis index client.
type Repo struct {
	store   store
	keys    keys
	maxJoin int
}

// New creates an index client writing under prefix.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	return &Repo{store: s, keys: keys{prefix: prefix}, maxJoin: DefaultMaxNestedJoin}
}

// WithMaxNestedJoin overrides the nested join cap.
func (r *Repo) WithMaxNestedJoin(n int) *Repo {
	if n > 0 {
		r.maxJoin = n
	}
	return r
}

// Put writes doc and its nested sub-documents, replacing any previous version.
// Sub-documents left over from a longer previous version are deleted.
func (r *Repo) Put(ctx context.Context, doc *index.Document) error {
	id := doc.ID
	data, err := json.Marshal(toStored(doc))
	if err != nil {
		return fmt.Errorf("marshal document %d: %w", id, err)
	}

	items := []db.JSONSetItem{{Key: r.keys.doc(id), Path: "$", Data: data}}
	counts := make(map[string]string, len(index.Scopes()))
	for _, scope := range index.Scopes() {
		elems := doc.Elements(scope)
		for i, get := range elems {
			child, err := json.Marshal(toChild(doc, get, scope))
			if err != nil {
				return fmt.Errorf("marshal %s of %d: %w", scope, id, err)
			}
			items = append(items, db.JSONSetItem{Key: r.keys.child(scope, id, i), Path: "$", Data: child})
		}
		counts[scope] = strconv.Itoa(len(elems))
	}

	previous, err := r.store.HGetAll(ctx, r.keys.children(id))
	if err != nil {
		return fmt.Errorf("hgetall children %d: %w", id, err)
	}

	if err := r.store.JSONSetMulti(ctx, items); err != nil {
		return fmt.Errorf("json.set %d: %w", id, err)
	}

	var stale []string
	for _, scope := range index.Scopes() {
		was, _ := strconv.Atoi(previous[scope])
		now, _ := strconv.Atoi(counts[scope])
		for i := now; i < was; i++ {
			stale = append(stale, r.keys.child(scope, id, i))
		}
	}
	if err := r.store.Del(ctx, stale...); err != nil {
		return fmt.Errorf("del stale children %d: %w", id, err)
	}

	if err := r.store.HSet(ctx, r.keys.children(id), counts); err != nil {
		return fmt.Errorf("hset children %d: %w", id, err)
	}
	return nil
}

// Get returns the stored document, or domain.ErrContentNotFound.
func (r *Repo) Get(ctx context.Context, id domcontent.ID) (*index.Document, error) {
	raw, err := r.store.JSONGet(ctx, r.keys.doc(id), "$."+fieldDoc)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrContentNotFound
		}
		return nil, fmt.Errorf("json.get %d: %w", id, err)
	}

	// JSONPath reads come back wrapped in an array.
	var docs []index.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("unmarshal document %d: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrContentNotFound
	}
	return &docs[0], nil
}

// UpdateField rewrites one field of an existing document without touching its
// sub-documents. Only fields owned by other writers can be updated:
// canonical_id (zero or one value) and groups.
func (r *Repo) UpdateField(ctx context.Context, id domcontent.ID, field string, values ...string) error {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	ids := make([]domcontent.ID, 0, len(values))
	for _, v := range values {
		parsed, err := domcontent.ParseID(v)
		if err != nil {
			return fmt.Errorf("update %s of %d: %w", field, id, err)
		}
		ids = append(ids, parsed)
	}

	switch field {
	case index.FieldCanonical:
		switch len(ids) {
		case 0:
			doc.Canonical = nil
		case 1:
			doc.Canonical = &ids[0]
		default:
			return fmt.Errorf("update %s of %d: expected one value, got %d", field, id, len(ids))
		}
	case index.FieldGroups:
		doc.Groups = ids
	default:
		return fmt.Errorf("field %q is not updatable", field)
	}

	data, err := json.Marshal(toStored(doc))
	if err != nil {
		return fmt.Errorf("marshal document %d: %w", id, err)
	}
	if err := r.store.JSONSet(ctx, r.keys.doc(id), "$", data); err != nil {
		return fmt.Errorf("json.set %d: %w", id, err)
	}
	return nil
}

// GroupMembers returns the membership recorded by the last SetGroupMembers.
func (r *Repo) GroupMembers(ctx context.Context, group domcontent.ID) ([]domcontent.ID, error) {
	members, err := r.store.SMembers(ctx, r.keys.group(group))
	if err != nil {
		return nil, fmt.Errorf("smembers group %d: %w", group, err)
	}
	ids := make([]domcontent.ID, 0, len(members))
	for _, m := range members {
		id, err := domcontent.ParseID(m)
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", group, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetGroupMembers replaces the recorded membership of group.
func (r *Repo) SetGroupMembers(ctx context.Context, group domcontent.ID, members []domcontent.ID) error {
	key := r.keys.group(group)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del group %d: %w", group, err)
	}
	if err := r.store.SAdd(ctx, key, domcontent.Strings(members)...); err != nil {
		return fmt.Errorf("sadd group %d: %w", group, err)
	}
	return nil
}

// keys builds every Redis key and index name the client uses:
//
//	<prefix>content:<id>             top-level document
//	<prefix><scope>:<id>:<n>         nested sub-document n
//	<prefix>children:<id>            sub-document counts per scope
//	<prefix>group:<id>:members       last projected group membership
//	<prefix>idx:content, idx:<scope> search indexes
type keys struct {
	prefix string
}

func (k keys) doc(id domcontent.ID) string { return k.docPrefix() + id.String() }

func (k keys) docPrefix() string { return k.prefix + "content:" }

func (k keys) child(scope string, parent domcontent.ID, n int) string {
	return fmt.Sprintf("%s%s:%d", k.childPrefix(scope), parent, n)
}

func (k keys) childPrefix(scope string) string { return k.prefix + scope + ":" }

func (k keys) children(id domcontent.ID) string { return k.prefix + "children:" + id.String() }

func (k keys) group(id domcontent.ID) string { return k.prefix + "group:" + id.String() + ":members" }

func (k keys) schema() string { return k.prefix + "schema" }

func (k keys) contentIndex() string { return k.prefix + "idx:content" }

func (k keys) scopeIndex(scope string) string { return k.prefix + "idx:" + scope }
