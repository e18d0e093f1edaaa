package app

import (
	"context"

	"github.com/jrsteele09/go-access-client/internal/config"
	clienterrors "github.com/jrsteele09/go-access-client/internal/errors"
	"github.com/jrsteele09/go-access-client/store"
	"github.com/jrsteele09/go-access-client/store/filestore"
	"github.com/jrsteele09/go-access-client/store/pgstore"
	"github.com/jrsteele09/go-access-client/store/redisstore"
	"github.com/rs/zerolog/log"
)

// openStore builds the store selected by c. The returned func releases it.
func openStore(ctx context.Context, c config.StoreConfig) (store.Store, func() error, error) {
	switch c.GetStoreKind() {
	case config.StoreRedis:
		s, err := redisstore.Dial(ctx, c.GetRedisAddr(), c.GetRedisPrefix())
		if err != nil {
			return nil, nil, clienterrors.Wrapf(err, "[openStore] failed to connect to redis at %s", c.GetRedisAddr())
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis store")
		return s, s.Close, nil

	case config.StorePostgres:
		pool, err := pgstore.Open(ctx, c.GetPostgresDSN())
		if err != nil {
			return nil, nil, clienterrors.Wrapf(err, "[openStore] failed to connect to postgres")
		}
		s, err := pgstore.New(pool, pgstore.WithTable(c.GetPostgresTable()))
		if err != nil {
			pool.Close()
			return nil, nil, clienterrors.Wrapf(err, "[openStore] invalid postgres store settings")
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, nil, clienterrors.Wrapf(err, "[openStore] failed to create postgres table")
		}
		log.Info().Str("table", c.GetPostgresTable()).Msg("using postgres store")
		return s, s.Close, nil

	default:
		s := filestore.New(c.GetStoreFile())
		log.Info().Str("path", s.Path()).Msg("using file store")
		return s, func() error { return nil }, nil
	}
}
