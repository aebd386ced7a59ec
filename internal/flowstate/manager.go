package flowstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/tabworks/authflow/domain"
)

// tokenBytes is the entropy of every state token: 32 random bytes, 256 bits.
const tokenBytes = 32

// Manager mints and consumes single-use flow state tokens against an
// injected store. It is the only component that generates tokens, and
// ValidateAndConsume is the only way to read one back.
type Manager struct {
	store domain.StateStore
	now   func() time.Time
	ttl   time.Duration
}

// NewManager creates a Manager over the given store.
func NewManager(store domain.StateStore) *Manager {
	return &Manager{store: store, now: time.Now, ttl: domain.StateTTL}
}

// SetClock overrides the time source. Tests use it to simulate expiry.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Generate fills in the token, kind and expiry of the record, stores it,
// and returns the token. The payload fields of rec must already be set and
// match kind.
func (m *Manager) Generate(ctx context.Context, kind domain.StateKind, rec *domain.StateRecord) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("invalid state kind %q", kind)
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := m.now().UTC()
	rec.Token = token
	rec.Kind = kind
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(m.ttl)

	if err := m.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("store %s state: %w", kind, err)
	}
	return token, nil
}

// ValidateAndConsume atomically consumes a token under the given kind. When
// expectedProvider is non-empty, a stored record bound to any other
// provider is reported exactly like a missing token; the record is already
// gone by then, so a mismatched token is also burned.
func (m *Manager) ValidateAndConsume(ctx context.Context, token string, kind domain.StateKind, expectedProvider domain.Provider) (*domain.StateRecord, error) {
	if token == "" || !kind.Valid() {
		return nil, domain.ErrStateNotFound
	}
	rec, err := m.store.Consume(ctx, kind, token)
	if err != nil {
		return nil, err
	}
	if expectedProvider != "" && rec.Provider != expectedProvider {
		return nil, domain.ErrStateNotFound
	}
	return rec, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
