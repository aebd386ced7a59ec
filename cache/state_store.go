package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/tabworks/authflow/domain"
)

// DefaultCapacity bounds each keyspace of the in-memory store. When a
// keyspace is full the least recently used record is evicted, which a
// client observes as an invalid state and recovers from by restarting
// the flow.
const DefaultCapacity = 500

// MemoryStateStore implements domain.StateStore with one ttlcache per
// state kind, so tokens from different kinds can never observe each other.
type MemoryStateStore struct {
	mu     sync.Mutex
	caches map[domain.StateKind]*ttlcache.Cache[string, *domain.StateRecord]
	now    func() time.Time
}

// NewMemoryStateStore creates an in-memory store with per-kind capacity and
// automatic expiry cleanup.
func NewMemoryStateStore(capacity uint64) *MemoryStateStore {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	caches := make(map[domain.StateKind]*ttlcache.Cache[string, *domain.StateRecord])
	for _, kind := range []domain.StateKind{
		domain.StateKindOAuthInit,
		domain.StateKindSignUp,
		domain.StateKindSignIn,
		domain.StateKindPermission,
	} {
		c := ttlcache.New(
			ttlcache.WithTTL[string, *domain.StateRecord](domain.StateTTL),
			ttlcache.WithCapacity[string, *domain.StateRecord](capacity),
			ttlcache.WithDisableTouchOnHit[string, *domain.StateRecord](),
		)
		go c.Start()
		caches[kind] = c
	}
	return &MemoryStateStore{caches: caches, now: time.Now}
}

// SetClock overrides the time source. Tests use it to simulate expiry.
func (s *MemoryStateStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put implements domain.StateStore.
func (s *MemoryStateStore) Put(_ context.Context, rec *domain.StateRecord) error {
	cache, ok := s.caches[rec.Kind]
	if !ok {
		return domain.ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	cache.Set(rec.Token, rec, ttl)
	return nil
}

// Get implements domain.StateStore. Expired records report not found.
func (s *MemoryStateStore) Get(_ context.Context, kind domain.StateKind, token string) (*domain.StateRecord, error) {
	cache, ok := s.caches[kind]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item := cache.Get(token)
	if item == nil || item.Value().Expired(s.now()) {
		return nil, domain.ErrStateNotFound
	}
	return item.Value(), nil
}

// Consume implements domain.StateStore. The lookup and the delete happen
// under one lock, so two racing consumers of the same token cannot both
// succeed.
func (s *MemoryStateStore) Consume(_ context.Context, kind domain.StateKind, token string) (*domain.StateRecord, error) {
	cache, ok := s.caches[kind]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item := cache.Get(token)
	if item == nil {
		return nil, domain.ErrStateNotFound
	}
	rec := item.Value()
	cache.Delete(token)
	if rec.Expired(s.now()) {
		return nil, domain.ErrStateNotFound
	}
	return rec, nil
}

// Delete implements domain.StateStore.
func (s *MemoryStateStore) Delete(_ context.Context, kind domain.StateKind, token string) error {
	if cache, ok := s.caches[kind]; ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		cache.Delete(token)
	}
	return nil
}

// SweepExpired implements domain.StateStore. ttlcache already expires
// entries on its own; this forces an immediate pass.
func (s *MemoryStateStore) SweepExpired(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cache := range s.caches {
		cache.DeleteExpired()
	}
	return nil
}

// Len reports the number of live records in one keyspace.
func (s *MemoryStateStore) Len(kind domain.StateKind) int {
	if cache, ok := s.caches[kind]; ok {
		return cache.Len()
	}
	return 0
}

// Close stops the background cleanup goroutines.
func (s *MemoryStateStore) Close() error {
	for _, cache := range s.caches {
		cache.Stop()
	}
	return nil
}

var _ domain.StateStore = (*MemoryStateStore)(nil)
