package config

import (
	"path/filepath"
	"strings"
)

const (
	storeKindVar     = "ACCESS_STORE"
	redisAddrVar     = "ACCESS_REDIS_ADDR"
	redisPrefixVar   = "ACCESS_REDIS_PREFIX"
	postgresDSNVar   = "ACCESS_POSTGRES_DSN"
	postgresTableVar = "ACCESS_POSTGRES_TABLE"
)

// StoreKind selects the persistent key-value backend.
type StoreKind string

const (
	StoreFile     StoreKind = "file"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
)

type Store struct {
	file *FileValues
}

var _ StoreConfig = Store{}

func (s Store) GetStoreKind() StoreKind {
	kind := strings.ToLower(GetEnv(storeKindVar, s.file.str(func(f *FileValues) string { return f.Store.Kind }, string(StoreFile))))
	switch StoreKind(kind) {
	case StoreRedis, StorePostgres:
		return StoreKind(kind)
	default:
		return StoreFile
	}
}

// GetStoreFile is the JSON document used by the file store.
func (s Store) GetStoreFile() string {
	return filepath.Join(EnvVars(s).GetDataFolder(), "settings.json")
}

func (s Store) GetRedisAddr() string {
	return GetEnv(redisAddrVar, s.file.str(func(f *FileValues) string { return f.Store.RedisAddr }, "localhost:6379"))
}

func (s Store) GetRedisPrefix() string {
	return GetEnv(redisPrefixVar, s.file.str(func(f *FileValues) string { return f.Store.RedisPrefix }, "access-client:"))
}

func (s Store) GetPostgresDSN() string {
	return GetEnv(postgresDSNVar, s.file.str(func(f *FileValues) string { return f.Store.PostgresDSN }, ""))
}

func (s Store) GetPostgresTable() string {
	return GetEnv(postgresTableVar, s.file.str(func(f *FileValues) string { return f.Store.PostgresTable }, "client_kv"))
}
