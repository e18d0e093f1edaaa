// Package redisstore keeps client records in Redis under a key prefix. Staged writes
// are flushed in a single MULTI/EXEC on Save.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-access-client/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client  redis.UniversalClient
	prefix  string
	pending store.Pending
}

// New wraps an existing client. Keys are stored as prefix+key.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	if op, ok := s.pending.Lookup(key); ok {
		if op.Delete {
			return false, nil
		}
		return true, store.Decode(key, op.Value, dst)
	}

	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "redisstore.Get")
	}
	return true, store.Decode(key, raw, dst)
}

func (s *Store) Set(_ context.Context, key string, value any) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	b, err := store.Encode(key, value)
	if err != nil {
		return err
	}
	s.pending.Stage(key, b)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	s.pending.StageDelete(key)
	return nil
}

func (s *Store) Save(ctx context.Context) error {
	ops := s.pending.Drain()
	if len(ops) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, op := range ops {
			if op.Delete {
				pipe.Del(ctx, s.key(k))
				continue
			}
			pipe.Set(ctx, s.key(k), op.Value, 0)
		}
		return nil
	})
	if err != nil {
		s.pending.Restore(ops)
		return errors.Wrap(err, "redisstore.Save")
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
