// Package redis implementa cache.Cache sobre Redis (go-redis/v9).
package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dcamposv/pulsehub/internal/cache"
)

type Cache struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

func New(addr string, db int, prefix string, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &Cache{
		c:          rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (r *Cache) key(k string) string { return r.prefix + k }

func (r *Cache) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.c.Get(ctx, r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(ctx context.Context, k string, v []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.c.Set(ctx, r.key(k), v, ttl).Err()
}

// Take usa GETDEL: atómico en el servidor, sin WATCH.
func (r *Cache) Take(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.c.GetDel(ctx, r.key(k)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Cache) Delete(ctx context.Context, k string) error {
	return r.c.Del(ctx, r.key(k)).Err()
}

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }
func (r *Cache) Close() error                   { return r.c.Close() }

var _ cache.Cache = (*Cache)(nil)
