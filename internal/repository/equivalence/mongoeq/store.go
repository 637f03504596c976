// Package mongoeq keeps equivalence classes in a MongoDB collection with one
// document per member: {_id: member, canonical: canonical}.
package mongoeq

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "equivalence"

const fieldCanonical = "canonical"

type record struct {
	ID        int64 `bson:"_id"`
	Canonical int64 `bson:"canonical"`
}

// Store is a MongoDB-backed resolver.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri, verifies the connection and ensures the canonical index.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client.Database(database), collection)
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{coll: db.Collection(collection)}
}

// EnsureIndexes creates the index ReverseLookup reads through.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldCanonical, Value: 1}},
		Options: options.Index().SetUnique(false),
	})
	if err != nil {
		return fmt.Errorf("mongo ensure canonical index: %w", err)
	}
	return nil
}

// Close disconnects a client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks the server behind the collection.
func (s *Store) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

// Lookup returns the canonical id of every id that has one.
func (s *Store) Lookup(ctx context.Context, ids []content.ID) (map[content.ID]content.ID, error) {
	out := make(map[content.ID]content.ID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	recs, err := s.find(ctx, lookupFilter(ids))
	if err != nil {
		return nil, fmt.Errorf("equivalence lookup: %w", err)
	}
	for _, r := range recs {
		out[content.ID(r.ID)] = content.ID(r.Canonical)
	}
	return out, nil
}

// ReverseLookup returns the members of canonical's class in ascending order,
// canonical included.
func (s *Store) ReverseLookup(ctx context.Context, canonical content.ID) ([]content.ID, error) {
	members, err := s.members(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("equivalence reverse lookup %d: %w", canonical, err)
	}
	return withCanonical(canonical, members), nil
}

// Assign makes members (plus canonical) the whole class of canonical in one
// unordered bulk write. Members already heading a class bring that class
// along. It returns the class and the previous members it detached.
func (s *Store) Assign(ctx context.Context, canonical content.ID, members []content.ID) (class, detached []content.ID, err error) {
	class = withCanonical(canonical, members)
	if f, ok := absorbFilter(canonical, class); ok {
		recs, err := s.find(ctx, f)
		if err != nil {
			return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
		}
		for _, r := range recs {
			class = append(class, content.ID(r.ID))
		}
		class = withCanonical(canonical, class)
	}

	old, err := s.members(ctx, canonical)
	if err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}
	detached = detachedMembers(old, class)

	opts := options.BulkWrite().SetOrdered(false)
	if _, err := s.coll.BulkWrite(ctx, assignModels(canonical, class, detached), opts); err != nil {
		return nil, nil, fmt.Errorf("equivalence assign %d: %w", canonical, err)
	}
	return class, detached, nil
}

func (s *Store) members(ctx context.Context, canonical content.ID) ([]content.ID, error) {
	recs, err := s.find(ctx, bson.M{fieldCanonical: int64(canonical)})
	if err != nil {
		return nil, err
	}
	ids := make([]content.ID, len(recs))
	for i, r := range recs {
		ids[i] = content.ID(r.ID)
	}
	return ids, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]record, error) {
	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []record
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func lookupFilter(ids []content.ID) bson.M {
	in := make(bson.A, len(ids))
	for i, id := range ids {
		in[i] = int64(id)
	}
	return bson.M{"_id": bson.M{"$in": in}}
}

// absorbFilter matches the records of every class headed by a listed member
// other than canonical.
func absorbFilter(canonical content.ID, class []content.ID) (bson.M, bool) {
	in := make(bson.A, 0, len(class))
	for _, id := range class {
		if id != canonical {
			in = append(in, int64(id))
		}
	}
	if len(in) == 0 {
		return nil, false
	}
	return bson.M{fieldCanonical: bson.M{"$in": in}}, true
}

// assignModels upserts every member onto canonical and deletes the detached.
// Upserting by _id also moves a member out of its previous class.
func assignModels(canonical content.ID, members, detached []content.ID) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(members)+len(detached))
	for _, m := range members {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": int64(m)}).
			SetUpdate(bson.M{"$set": bson.M{fieldCanonical: int64(canonical)}}).
			SetUpsert(true))
	}
	for _, d := range detached {
		models = append(models, mongo.NewDeleteOneModel().
			SetFilter(bson.M{"_id": int64(d), fieldCanonical: int64(canonical)}))
	}
	return models
}

func withCanonical(canonical content.ID, members []content.ID) []content.ID {
	out := append([]content.ID{canonical}, members...)
	slices.Sort(out)
	return slices.Compact(out)
}

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
