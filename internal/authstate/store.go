// Package authstate keeps short-lived, single-use records for in-flight
// authorization attempts. Each record binds a state token to the attempt
// and, for PKCE flows, to its code verifier.
package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dcamposv/pulsehub/internal/cache"
)

// DefaultTTL is how long a pending authorization stays valid.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "authstate:"

// ErrInvalidState covers unknown, expired and already-consumed states.
// One error for the three cases on purpose: callbacks must not learn which.
var ErrInvalidState = errors.New("authstate: invalid or expired state")

type record struct {
	Owner     string    `json:"owner"`
	Verifier  string    `json:"verifier,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists pending authorizations in a cache backend.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Store. ttl <= 0 uses DefaultTTL.
func New(c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: c, ttl: ttl, now: time.Now}
}

// Begin records a new pending authorization under state, bound to the owner
// that started it. verifier may be empty for confidential-client flows.
func (s *Store) Begin(ctx context.Context, state, owner, verifier string) error {
	now := s.now().UTC()
	rec := record{
		Owner:     owner,
		Verifier:  verifier,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, keyPrefix+state, buf, s.ttl)
}

// Consume atomically retrieves and deletes the record for state, returning
// the bound verifier. At most one call per state ever succeeds, and only for
// the owner that called Begin: a state minted under one session must not
// complete under another.
func (s *Store) Consume(ctx context.Context, state, owner string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	buf, ok := s.cache.Take(ctx, keyPrefix+state)
	if !ok {
		return "", ErrInvalidState
	}
	var rec record
	if err := json.Unmarshal(buf, &rec); err != nil {
		return "", ErrInvalidState
	}
	if rec.Owner != owner {
		return "", ErrInvalidState
	}
	// Belt over the cache TTL: backends expire lazily.
	if s.now().UTC().After(rec.ExpiresAt) {
		return "", ErrInvalidState
	}
	return rec.Verifier, nil
}
