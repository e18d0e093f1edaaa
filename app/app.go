// Package app wires one instance of every client component for a process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-access-client/backend"
	"github.com/jrsteele09/go-access-client/internal/config"
	clienterrors "github.com/jrsteele09/go-access-client/internal/errors"
	"github.com/jrsteele09/go-access-client/metrics"
	"github.com/jrsteele09/go-access-client/servers"
	"github.com/jrsteele09/go-access-client/sessions"
	"github.com/jrsteele09/go-access-client/settings"
	"github.com/jrsteele09/go-access-client/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type App struct {
	env    string
	config config.Config
	logger zerolog.Logger

	store      store.Store
	closeStore func() error

	Metrics  *metrics.Metrics
	Settings *settings.Settings
	Backend  *backend.Client
	Sessions *sessions.Manager
	Servers  *servers.Registry

	mux    *http.ServeMux
	routes []string
}

type Option func(*App)

// WithStore uses s instead of the store selected by config.
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.store = s
		a.closeStore = func() error { return nil }
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// New builds the components in dependency order. Nothing is loaded until Start.
func New(ctx context.Context, c config.Config, opts ...Option) (*App, error) {
	a := &App{
		env:    c.GetEnv(),
		config: c,
		logger: log.Logger,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		s, closeStore, err := openStore(ctx, c)
		if err != nil {
			return nil, clienterrors.Wrapf(err, "[App New] failed to open store")
		}
		a.store, a.closeStore = s, closeStore
	}

	a.Metrics = metrics.New()

	// The backend reads the server URL from settings on every call, and settings
	// uses the backend for its health check.
	a.Backend = backend.New(
		func() string { return a.Settings.ServerURL() },
		backend.WithHTTPClient(&http.Client{Timeout: c.GetRequestTimeout()}),
		backend.WithAPIPrefix(c.GetAPIPrefix()),
		backend.WithHealthTimeout(c.GetHealthCheckTimeout()),
		backend.WithLogger(a.logger),
		backend.WithMetrics(a.Metrics),
	)
	a.Settings = settings.New(a.store, a.Backend,
		settings.WithDefaultURL(c.GetServerURL()),
		settings.WithLogger(a.logger),
	)

	a.Sessions = sessions.New(a.store, a.Backend,
		sessions.WithLeadTime(c.GetRefreshLeadTime()),
		sessions.WithLogger(a.logger),
		sessions.WithMetrics(a.Metrics),
	)
	a.Backend.SetTokenSource(a.Sessions.TokenSource())

	a.Servers = servers.New(a.store, a.Backend,
		servers.WithAuthenticated(func() bool { return a.Sessions.State().Authenticated() }),
		servers.WithLogger(a.logger),
		servers.WithMetrics(a.Metrics),
	)

	a.initRoutes()
	return a, nil
}

// Start loads settings, restores the session and loads the saved servers, in that order.
func (a *App) Start(ctx context.Context) error {
	// Step 1: server URL, needed before any backend call
	if err := a.Settings.Load(ctx); err != nil {
		return clienterrors.Wrapf(err, "[App Start] failed to load settings")
	}

	// Step 2: restore or refresh the session
	if err := a.Sessions.Init(ctx); err != nil {
		return clienterrors.Wrapf(err, "[App Start] failed to restore session")
	}

	// Step 3: saved servers, all idle until checked
	if err := a.Servers.Load(ctx); err != nil {
		return clienterrors.Wrapf(err, "[App Start] failed to load servers")
	}

	st := a.Sessions.State()
	a.logger.Info().
		Str("server_url", a.Settings.ServerURL()).
		Str("session", string(st.Status)).
		Int("servers", len(a.Servers.List())).
		Msg("client started")
	return nil
}

// Watch polls server status until ctx is done.
func (a *App) Watch(ctx context.Context) {
	a.Servers.Poll(ctx, a.config.GetPollInterval())
}

// Close stops timers and subscriptions and releases the store. The session stays
// persisted for the next run.
func (a *App) Close() error {
	a.Sessions.Close()
	a.Servers.Close()
	if err := a.closeStore(); err != nil {
		return clienterrors.Wrapf(err, "[App Close] failed to close store")
	}
	return nil
}

// statusResponse is served on /status.
type statusResponse struct {
	Session   string          `json:"session"`
	User      string          `json:"user,omitempty"`
	Message   string          `json:"message,omitempty"`
	ServerURL string          `json:"server_url"`
	Servers   []serverSummary `json:"servers"`
	Refresh   string          `json:"next_refresh,omitempty"`
}

type serverSummary struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	TimeRemaining string `json:"time_remaining,omitempty"`
}

func (a *App) status() statusResponse {
	st := a.Sessions.State()
	resp := statusResponse{
		Session:   string(st.Status),
		User:      st.Identifier,
		Message:   st.Message,
		ServerURL: a.Settings.ServerURL(),
		Servers:   []serverSummary{},
	}
	if d, ok := a.Sessions.NextRefresh(); ok {
		resp.Refresh = d.Round(time.Second).String()
	}
	for _, rec := range a.Servers.List() {
		resp.Servers = append(resp.Servers, serverSummary{
			ID:            rec.ID,
			Status:        string(rec.Status),
			TimeRemaining: servers.FormatRemaining(rec.TimeRemaining),
		})
	}
	return resp
}
