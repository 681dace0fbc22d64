package credential

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisStore persiste credenciales como JSON en Redis. Las escrituras
// condicionales usan WATCH/MULTI (optimistic locking).
type RedisStore struct {
	c      *rdb.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(addr string, db int, prefix string) *RedisStore {
	return &RedisStore{
		c:      rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(owner string, provider Provider) string {
	return s.prefix + "cred:" + owner + ":" + string(provider)
}

func (s *RedisStore) Get(ctx context.Context, owner string, provider Provider) (*Credential, error) {
	buf, err := s.c.Get(ctx, s.key(owner, provider)).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var c Credential
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisStore) Put(ctx context.Context, cred *Credential) error {
	key := s.key(cred.Owner, cred.Provider)
	// WATCH para que el merge lea el estado que la escritura reemplaza.
	return s.c.Watch(ctx, func(tx *rdb.Tx) error {
		prev, err := s.readTx(tx, ctx, key)
		if err != nil {
			return err
		}
		next := *cred
		now := s.now().UTC()
		merge(prev, &next)
		if prev == nil {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		buf, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Update(ctx context.Context, cred *Credential, expectedVersion int64) error {
	key := s.key(cred.Owner, cred.Provider)
	err := s.c.Watch(ctx, func(tx *rdb.Tx) error {
		prev, err := s.readTx(tx, ctx, key)
		if err != nil {
			return err
		}
		if prev == nil {
			return ErrNotFound
		}
		if prev.Version != expectedVersion {
			return ErrVersionConflict
		}
		next := *cred
		merge(prev, &next)
		next.UpdatedAt = s.now().UTC()
		buf, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, rdb.TxFailedErr) {
		// Alguien escribió entre WATCH y EXEC: mismo significado.
		return ErrVersionConflict
	}
	return err
}

func (s *RedisStore) readTx(tx *rdb.Tx, ctx context.Context, key string) (*Credential, error) {
	buf, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var c Credential
	if err := json.Unmarshal(buf, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisStore) Delete(ctx context.Context, owner string, provider Provider) error {
	return s.c.Del(ctx, s.key(owner, provider)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }
func (s *RedisStore) Close() error                   { return s.c.Close() }

var _ Store = (*RedisStore)(nil)
