package content

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/atlasmeta/contentdex/internal/db"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// tagSeparator keeps single-valued tags such as titles from being split on
// commas. Multi-valued tags are stored as JSON arrays.
const tagSeparator = "\x1f"

// EnsureIndexes creates the content index and one index per nested scope.
// When the stored schema version differs from the current definitions the
// indexes are dropped (documents are kept) and rebuilt; otherwise only the
// missing ones are created.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	defs, err := buildIndexes(r.keys)
	if err != nil {
		return fmt.Errorf("build indexes: %w", err)
	}
	version := schemaVersion(defs)

	current, err := r.store.Get(ctx, r.keys.schema())
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("get schema version: %w", err)
	}
	stale := string(current) != version

	for _, def := range defs {
		if stale {
			if err := r.store.DropIndex(ctx, def.Name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
				return fmt.Errorf("drop index %s: %w", def.Name, err)
			}
		} else {
			exists, err := r.store.IndexExists(ctx, def.Name)
			if err != nil {
				return fmt.Errorf("check index %s: %w", def.Name, err)
			}
			if exists {
				continue
			}
		}
		// Another replica may create it first.
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
	}

	if stale {
		if err := r.store.Set(ctx, r.keys.schema(), []byte(version)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}
	return nil
}

func buildIndexes(k keys) ([]*db.IndexDefinition, error) {
	defs := make([]*db.IndexDefinition, 0, 1+len(index.Scopes()))

	b := db.NewIndex(k.contentIndex()).OnJSON().Prefix(k.docPrefix()).WithoutStopwords()
	addFields(b, index.Fields(""))
	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	defs = append(defs, def)

	for _, scope := range index.Scopes() {
		b := db.NewIndex(k.scopeIndex(scope)).OnJSON().Prefix(k.childPrefix(scope)).
			TagWithOpts("$."+index.FieldParent, tagSeparator, false).As(index.FieldParent).
			TagWithOpts("$."+fieldParentPublisher, tagSeparator, false).As(fieldParentPublisher).
			TagWithOpts("$."+fieldParentActive, tagSeparator, false).As(fieldParentActive)
		addFields(b, index.Fields(scope))
		def, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", scope, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func addFields(b *db.IndexBuilder, specs []index.FieldSpec) {
	for _, f := range specs {
		path := "$." + f.Name
		switch f.Type {
		case index.Numeric:
			b.Numeric(path)
		case index.Text:
			b.Text(path)
		default:
			if f.Multi {
				path += "[*]"
			}
			b.TagWithOpts(path, tagSeparator, false)
		}
		b.As(f.Name)
		if f.Sortable {
			b.Sortable()
		}
	}
}

// schemaVersion fingerprints the definitions so that any schema change
// triggers a rebuild.
func schemaVersion(defs []*db.IndexDefinition) string {
	h := fnv.New64a()
	for _, def := range defs {
		_, _ = h.Write([]byte(def.String()))
		_, _ = h.Write([]byte{'\n'})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
