package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps credentials in-process. Development and tests; it is
// also the reference semantics the SQL/Redis backends must match.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential), now: time.Now}
}

func storeKey(owner string, provider Provider) string {
	return owner + "|" + string(provider)
}

func (s *MemoryStore) Get(_ context.Context, owner string, provider Provider) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[storeKey(owner, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(cred, s.creds[storeKey(cred.Owner, cred.Provider)])
	return nil
}

func (s *MemoryStore) Update(_ context.Context, cred *Credential, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.creds[storeKey(cred.Owner, cred.Provider)]
	if !ok {
		return ErrNotFound
	}
	if prev.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.write(cred, prev)
	return nil
}

// write asume lock tomado.
func (s *MemoryStore) write(cred, prev *Credential) {
	cp := *cred
	cp.Scopes = append([]string(nil), cred.Scopes...)
	now := s.now().UTC()
	merge(prev, &cp)
	if prev == nil {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.creds[storeKey(cp.Owner, cp.Provider)] = &cp
}

func (s *MemoryStore) Delete(_ context.Context, owner string, provider Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, storeKey(owner, provider))
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

var _ Store = (*MemoryStore)(nil)
