// Package pgstore keeps client records in a PostgreSQL table of JSONB values.
package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-access-client/store"
	"github.com/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// ErrInvalidInput is returned for a nil pool or a blank table name.
var ErrInvalidInput = errors.New("pgstore: invalid input")

type Store struct {
	pool    *pgxpool.Pool
	table   string
	pending store.Pending
}

// Option configures Store.
type Option func(*Store) error

// WithTable sets the table name (default "client_kv").
func WithTable(table string) Option {
	return func(s *Store) error {
		table = strings.TrimSpace(table)
		if table == "" {
			return ErrInvalidInput
		}
		s.table = table
		return nil
	}
}

func New(pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	s := &Store{pool: pool, table: "client_kv"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, ErrInvalidInput
	}
	return s, nil
}

// Open builds a pool for dsn and checks a connection can be acquired.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore.Open")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pgstore.Open ping")
	}
	return pool, nil
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// EnsureSchema creates the backing table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.ident()+` (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return errors.Wrap(err, "pgstore.EnsureSchema")
}

func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	if op, ok := s.pending.Lookup(key); ok {
		if op.Delete {
			return false, nil
		}
		return true, store.Decode(key, op.Value, dst)
	}

	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM `+s.ident()+` WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "pgstore.Get")
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

// Save applies every staged write in one transaction.
func (s *Store) Save(ctx context.Context) error {
	ops := s.pending.Drain()
	if len(ops) == 0 {
		return nil
	}
	table := s.ident()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for k, op := range ops {
			if op.Delete {
				if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE key = $1`, k); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO `+table+` (key, value, updated_at) VALUES ($1, $2, now())
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
				k, string(op.Value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.pending.Restore(ops)
		return errors.Wrap(err, "pgstore.Save")
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
