package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tabworks/authflow/domain"
)

// StateStore implements domain.StateStore on a MongoDB collection. Expiry is
// enforced in every query filter, backed by a TTL index; consumption uses
// FindOneAndDelete so a token can never be read twice, even by concurrent
// callback retries.
type StateStore struct {
	states *mongo.Collection
	now    func() time.Time
}

// NewStateStore creates the store and ensures its indexes: a unique
// compound index on kind+token (the four keyspaces) and a TTL index on
// expires_at so the server reaps expired rows on its own.
func NewStateStore(ctx context.Context, db *mongo.Database) (*StateStore, error) {
	coll := db.Collection(StatesCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create state indexes: %w", err)
	}

	return &StateStore{states: coll, now: time.Now}, nil
}

// SetClock overrides the time source. Tests use it to simulate expiry.
func (s *StateStore) SetClock(now func() time.Time) { s.now = now }

func (s *StateStore) liveFilter(kind domain.StateKind, token string) bson.M {
	return bson.M{
		"kind":       kind,
		"token":      token,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}
}

// Put implements domain.StateStore.
func (s *StateStore) Put(ctx context.Context, rec *domain.StateRecord) error {
	if _, err := s.states.InsertOne(ctx, rec); err != nil {
		log.Error().Err(err).Str("kind", string(rec.Kind)).Msg("Failed to store auth state")
		return fmt.Errorf("store auth state: %w", err)
	}
	return nil
}

// Get implements domain.StateStore. The expiry bound lives in the filter,
// so an expired row is indistinguishable from a missing one.
func (s *StateStore) Get(ctx context.Context, kind domain.StateKind, token string) (*domain.StateRecord, error) {
	var rec domain.StateRecord
	err := s.states.FindOne(ctx, s.liveFilter(kind, token)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrStateNotFound
		}
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to read auth state")
		return nil, fmt.Errorf("read auth state: %w", err)
	}
	return &rec, nil
}

// Consume implements domain.StateStore. FindOneAndDelete is a single
// server-side operation, so there is no read-then-delete window for a
// second consumer to slip through.
func (s *StateStore) Consume(ctx context.Context, kind domain.StateKind, token string) (*domain.StateRecord, error) {
	var rec domain.StateRecord
	err := s.states.FindOneAndDelete(ctx, s.liveFilter(kind, token)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrStateNotFound
		}
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to consume auth state")
		return nil, fmt.Errorf("consume auth state: %w", err)
	}
	return &rec, nil
}

// Delete implements domain.StateStore.
func (s *StateStore) Delete(ctx context.Context, kind domain.StateKind, token string) error {
	if _, err := s.states.DeleteOne(ctx, bson.M{"kind": kind, "token": token}); err != nil {
		return fmt.Errorf("delete auth state: %w", err)
	}
	return nil
}

// SweepExpired implements domain.StateStore. The TTL index already reaps
// rows in the background; the sweep keeps growth bounded when the TTL
// monitor lags.
func (s *StateStore) SweepExpired(ctx context.Context) error {
	res, err := s.states.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now().UTC()}})
	if err != nil {
		return fmt.Errorf("sweep expired auth states: %w", err)
	}
	if res.DeletedCount > 0 {
		log.Debug().Int64("deleted", res.DeletedCount).Msg("Swept expired auth states")
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
