package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabworks/authflow/domain"
)

// StateStore implements domain.StateStore on Redis. Expiry is native: every
// key is written with the record's remaining TTL, and consumption uses
// GETDEL so a token can only ever be read once.
type StateStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewStateStore creates a Redis-backed state store. The prefix namespaces
// the keys, e.g. "authflow".
func NewStateStore(client *redis.Client, prefix string) *StateStore {
	return &StateStore{client: client, prefix: prefix, now: time.Now}
}

func (s *StateStore) key(kind domain.StateKind, token string) string {
	return fmt.Sprintf("%s:state:%s:%s", s.prefix, kind, token)
}

// Put implements domain.StateStore.
func (s *StateStore) Put(ctx context.Context, rec *domain.StateRecord) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal state record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.Kind, rec.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store state record: %w", err)
	}
	return nil
}

// Get implements domain.StateStore.
func (s *StateStore) Get(ctx context.Context, kind domain.StateKind, token string) (*domain.StateRecord, error) {
	payload, err := s.client.Get(ctx, s.key(kind, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrStateNotFound
		}
		return nil, fmt.Errorf("read state record: %w", err)
	}
	return s.decode(payload)
}

// Consume implements domain.StateStore. GETDEL is atomic on the Redis side,
// so concurrent consumers of one token see at most one success.
func (s *StateStore) Consume(ctx context.Context, kind domain.StateKind, token string) (*domain.StateRecord, error) {
	payload, err := s.client.GetDel(ctx, s.key(kind, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrStateNotFound
		}
		return nil, fmt.Errorf("consume state record: %w", err)
	}
	return s.decode(payload)
}

// Delete implements domain.StateStore.
func (s *StateStore) Delete(ctx context.Context, kind domain.StateKind, token string) error {
	if err := s.client.Del(ctx, s.key(kind, token)).Err(); err != nil {
		return fmt.Errorf("delete state record: %w", err)
	}
	return nil
}

// SweepExpired implements domain.StateStore. Redis expires keys natively.
func (s *StateStore) SweepExpired(context.Context) error { return nil }

func (s *StateStore) decode(payload string) (*domain.StateRecord, error) {
	var rec domain.StateRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal state record: %w", err)
	}
	if rec.Expired(s.now()) {
		return nil, domain.ErrStateNotFound
	}
	return &rec, nil
}

var _ domain.StateStore = (*StateStore)(nil)
