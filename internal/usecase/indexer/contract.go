package indexer

import (
	"context"

	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// Index stores index documents and the per-group membership projection.
type Index interface {
	Put(ctx context.Context, doc *index.Document) error
	Get(ctx context.Context, id content.ID) (*index.Document, error)
	UpdateField(ctx context.Context, id content.ID, field string, values ...string) error
	GroupMembers(ctx context.Context, group content.ID) ([]content.ID, error)
	SetGroupMembers(ctx context.Context, group content.ID, members []content.ID) error
}

// EquivalenceWriter replaces an equivalence class and returns the class as
// written together with the ids that left it.
type EquivalenceWriter interface {
	Assign(ctx context.Context, canonical content.ID, members []content.ID) (class, detached []content.ID, err error)
}

// Observer counts index operations by kind. Optional.
type Observer interface {
	ObserveIndex(kind string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveIndex(string, error) {}
