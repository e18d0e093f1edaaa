// Package settings holds user preferences that live in the store, currently the
// backend server URL.
package settings

import (
	"context"
	"strings"
	"sync"

	"github.com/jrsteele09/go-access-client/backend"
	"github.com/jrsteele09/go-access-client/internal/config"
	"github.com/jrsteele09/go-access-client/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	serverURLKey     = "server_url"
	DefaultServerURL = config.DefaultServerURL
)

var (
	ErrInvalidURL  = errors.New("url must start with http:// or https://")
	ErrTimedOut    = errors.New("connection timed out")
	ErrUnreachable = errors.New("could not reach server health endpoint")
	ErrSaveFailed  = errors.New("failed to save configuration")
)

var messages = map[error]string{
	ErrInvalidURL:  "URL must start with http:// or https://",
	ErrTimedOut:    "Connection timed out",
	ErrUnreachable: "Could not reach server health endpoint",
	ErrSaveFailed:  "Failed to save configuration to disk",
}

// Message is the user-facing text for an UpdateServerURL failure.
func Message(err error) string {
	for target, msg := range messages {
		if errors.Is(err, target) {
			return msg
		}
	}
	if err != nil {
		return "Request Failed"
	}
	return ""
}

// HealthChecker probes a candidate server before it is saved.
type HealthChecker interface {
	CheckHealth(ctx context.Context, baseURL string) error
}

var _ HealthChecker = (*backend.Client)(nil)

type Settings struct {
	store      store.Store
	checker    HealthChecker
	defaultURL string
	logger     zerolog.Logger

	mu        sync.RWMutex
	serverURL string
}

type Option func(*Settings)

// WithDefaultURL sets the server URL used when none has been saved.
func WithDefaultURL(url string) Option {
	return func(s *Settings) {
		if url != "" {
			s.defaultURL = url
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Settings) {
		s.logger = logger
	}
}

func New(st store.Store, checker HealthChecker, opts ...Option) *Settings {
	s := &Settings{
		store:      st,
		checker:    checker,
		defaultURL: DefaultServerURL,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.serverURL = s.defaultURL
	return s
}

// Load reads the saved server URL, falling back to the default.
func (s *Settings) Load(ctx context.Context) error {
	var saved string
	found, err := s.store.Get(ctx, serverURLKey, &saved)
	if err != nil {
		return errors.Wrap(err, "Settings.Load store.Get")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if found && saved != "" {
		s.serverURL = saved
	} else {
		s.serverURL = s.defaultURL
	}
	return nil
}

func (s *Settings) ServerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverURL
}

// UpdateServerURL checks that candidate answers its health endpoint and saves it
// without a trailing slash.
func (s *Settings) UpdateServerURL(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, "http") {
		return ErrInvalidURL
	}

	if err := s.checker.CheckHealth(ctx, candidate); err != nil {
		s.logger.Warn().Err(err).Str("url", candidate).Msg("health check failed")
		if errors.Is(err, backend.ErrTimedOut) {
			return ErrTimedOut
		}
		return errors.Wrap(ErrUnreachable, err.Error())
	}

	clean := strings.TrimSuffix(candidate, "/")
	s.mu.Lock()
	s.serverURL = clean
	s.mu.Unlock()

	if err := store.Put(ctx, s.store, serverURLKey, clean); err != nil {
		s.logger.Error().Err(err).Msg("failed to save server url")
		return errors.Wrap(ErrSaveFailed, err.Error())
	}
	s.logger.Info().Str("url", clean).Msg("server url updated")
	return nil
}
