// Package memory implementa cache.Cache en memoria (patrickmn/go-cache).
package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dcamposv/pulsehub/internal/cache"
)

type Mem struct {
	c      *gocache.Cache
	prefix string

	// mu serializa Take: go-cache no ofrece get-and-delete atómico.
	mu sync.Mutex
}

func New(prefix string, defaultTTL time.Duration) cache.Cache {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &Mem{c: gocache.New(defaultTTL, time.Minute), prefix: prefix}
}

func (m *Mem) key(k string) string { return m.prefix + k }

func (m *Mem) Get(_ context.Context, k string) ([]byte, bool) {
	v, ok := m.c.Get(m.key(k))
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(_ context.Context, k string, v []byte, ttl time.Duration) error {
	m.c.Set(m.key(k), v, ttl)
	return nil
}

func (m *Mem) Take(_ context.Context, k string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(m.key(k))
	if !ok {
		return nil, false
	}
	m.c.Delete(m.key(k))
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Delete(_ context.Context, k string) error {
	m.c.Delete(m.key(k))
	return nil
}

func (m *Mem) Ping(context.Context) error { return nil }
func (m *Mem) Close() error               { return nil }
