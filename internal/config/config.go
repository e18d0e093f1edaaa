package config

import "time"

// Config is the full set of settings the client reads at startup.
type Config interface {
	EnvConfig
	SessionConfig
	StoreConfig
	PollConfig
}

type EnvConfig interface {
	GetAppName() string
	GetServerURL() string
	GetAPIPrefix() string
	GetDataFolder() string
	GetLogLevel() string
	GetMetricsAddr() string
	GetEnv() string
}

type SessionConfig interface {
	GetRefreshLeadTime() time.Duration
	GetHealthCheckTimeout() time.Duration
	GetRequestTimeout() time.Duration
}

type StoreConfig interface {
	GetStoreKind() StoreKind
	GetStoreFile() string
	GetRedisAddr() string
	GetRedisPrefix() string
	GetPostgresDSN() string
	GetPostgresTable() string
}

type PollConfig interface {
	GetPollInterval() time.Duration
}

type mainConfig struct {
	EnvVars
	Session
	Store
	Poll
}

// New returns a Config backed by environment variables only.
func New() Config {
	return newConfig(nil)
}

func newConfig(file *FileValues) Config {
	return mainConfig{
		EnvVars: EnvVars{file: file},
		Session: Session{file: file},
		Store:   Store{file: file},
		Poll:    Poll{file: file},
	}
}
