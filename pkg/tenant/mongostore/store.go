// Package mongostore persists tenants in a MongoDB collection keyed by tenant id.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/ghlmux/pkg/tenant"
)

// DefaultCollection is the collection used when none is given.
const DefaultCollection = "tenants"

// Store is a tenant.Store backed by one collection.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ tenant.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(db *mongo.Database, collection string, opts ...Option) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	s := &Store{coll: db.Collection(collection), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BSON dates carry millisecond precision.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	return normalize(&t), nil
}

func (s *Store) GetAll(ctx context.Context) ([]*tenant.Tenant, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*tenant.Tenant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for _, t := range out {
		normalize(t)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	rec, err := tenant.PrepareCreate(t, s.timestamp())
	if err != nil {
		return nil, err
	}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, tenant.ErrAlreadyExists
		}
		return nil, err
	}
	return rec, nil
}

// Update applies u to the stored document. The write is conditioned on the
// UpdatedAt value that was read, so a concurrent update makes it retry.
func (s *Store) Update(ctx context.Context, id string, u tenant.Update) (*tenant.Tenant, error) {
	for {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		u.Apply(next, s.timestamp())

		res, err := s.coll.ReplaceOne(ctx, bson.D{
			{Key: "_id", Value: id},
			{Key: "updated_at", Value: cur.UpdatedAt},
		}, next)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	return n > 0, err
}

// normalize converts decoded documents to the shapes other stores return.
func normalize(t *tenant.Tenant) *tenant.Tenant {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.Settings = plain(t.Settings)
	t.Metadata = plain(t.Metadata)
	return t
}

// plain turns nested bson.D values into maps so callers see JSON-like data.
func plain(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = plainValue(v)
	}
	return m
}

func plainValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.M:
		return plain(map[string]any(x))
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
