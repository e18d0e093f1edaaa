package sessions

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-access-client/backend"
	clienterrors "github.com/jrsteele09/go-access-client/internal/errors"
	"github.com/jrsteele09/go-access-client/internal/broadcast"
	"github.com/jrsteele09/go-access-client/metrics"
	"github.com/jrsteele09/go-access-client/store"
	"github.com/jrsteele09/go-access-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultLeadTime = 30 * time.Second

var (
	ErrNoSession          = clienterrors.ErrNoSession
	ErrMissingCredentials = clienterrors.ErrMissingCredentials
)

// Manager is the single owner of the session. Only one Manager should exist per process.
type Manager struct {
	store    store.Store
	backend  Backend
	leadTime time.Duration
	nowFunc  func() time.Time
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	session  *Session
	epoch    uint64 // bumped whenever the session is replaced or cleared
	state    State
	timer    *time.Timer
	timerGen uint64
	due      time.Time
	closed   bool

	// persistMu orders write-through so the store always ends with the latest session.
	persistMu sync.Mutex

	refreshing atomic.Bool
	states     broadcast.Broadcaster[State]
}

type ManagerOption func(*Manager)

// WithLeadTime sets how long before access token expiry the refresh fires.
func WithLeadTime(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.leadTime = d
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func New(s store.Store, client Backend, options ...ManagerOption) *Manager {
	m := &Manager{
		store:    s,
		backend:  client,
		leadTime: DefaultLeadTime,
		nowFunc:  time.Now,
		logger:   log.Logger,
		state:    State{Status: StatusUnauthenticated},
	}
	for _, opt := range options {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Init restores the persisted session. An access token that has expired, or whose
// expiry cannot be read, is refreshed before the manager reports Authenticated.
func (m *Manager) Init(ctx context.Context) error {
	var persisted Session
	found, err := m.store.Get(ctx, storeKey, &persisted)
	if err != nil {
		return errors.Wrap(err, "Manager.Init store.Get")
	}
	if !found {
		m.setState(State{Status: StatusUnauthenticated})
		return nil
	}
	if !persisted.Valid() {
		m.logger.Warn().Msg("discarding incomplete persisted session")
		m.clear(ctx, "")
		return nil
	}

	if expiry, ok := token.ExpiryOf(persisted.AccessToken); ok && expiry.After(m.nowFunc()) {
		m.install(persisted, nil)
		return nil
	}

	m.mu.Lock()
	m.session = &persisted
	m.epoch++
	m.mu.Unlock()

	// A cancelled refresh here still discards the stale session.
	if _, err := m.refresh(ctx, ExpiredMessage, false); err != nil {
		m.logger.Info().Err(err).Msg("stored session could not be refreshed")
	}
	return nil
}

// Login exchanges identifier and secret for a session. On failure the state message
// carries the user-facing text and the returned error carries the backend code.
func (m *Manager) Login(ctx context.Context, identifier, secret string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return ErrMissingCredentials
	}

	pair, err := m.backend.Login(ctx, identifier, secret)
	if err != nil {
		err = backend.Normalize(err)
		m.mu.Lock()
		st := m.state
		if m.session == nil {
			st = State{Status: StatusUnauthenticated}
		}
		st.Message = backend.LoginMessage(err)
		m.setStateLocked(st)
		m.mu.Unlock()
		return err
	}

	m.install(Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, Identifier: identifier}, nil)
	m.persist(ctx)
	m.logger.Info().Str("identifier", identifier).Msg("logged in")
	return nil
}

// Refresh renews the session. Only one refresh runs at a time: a call made while
// another is in flight returns (false, nil) without contacting the backend. A failed
// refresh logs the user out and returns (true, err).
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	return m.refresh(ctx, "", true)
}

// refresh runs one single-flight refresh. keepOnCancel leaves the session in place
// when ctx is cancelled mid-refresh; otherwise cancellation counts as a failure.
func (m *Manager) refresh(ctx context.Context, failureMessage string, keepOnCancel bool) (bool, error) {
	m.mu.Lock()
	hasSession := m.session != nil
	m.mu.Unlock()
	if !hasSession {
		return false, ErrNoSession
	}

	if !m.refreshing.CompareAndSwap(false, true) {
		m.metrics.ObserveRefresh(metrics.RefreshSkipped)
		return false, nil
	}
	defer m.refreshing.Store(false)

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return false, ErrNoSession
	}
	current := *m.session
	epoch := m.epoch
	m.setStateLocked(State{Status: StatusRefreshing, Identifier: current.Identifier})
	m.mu.Unlock()

	pair, err := m.backend.Refresh(ctx, current.Identifier, current.RefreshToken)
	if err != nil {
		err = backend.Normalize(err)
		m.metrics.ObserveRefresh(metrics.RefreshFailure)
		m.logger.Warn().Err(err).Str("identifier", current.Identifier).Msg("session refresh failed")
		if !m.sameEpoch(epoch) || (keepOnCancel && ctx.Err() != nil) {
			// Cancelled or superseded: the session is not ours to clear.
			m.restoreState()
			return true, err
		}
		msg := failureMessage
		if msg == "" {
			msg = backend.Message(err)
		}
		m.logout(ctx, msg)
		return true, err
	}

	next := Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, Identifier: current.Identifier}
	if !m.install(next, &epoch) {
		m.logger.Debug().Msg("session changed during refresh, discarding result")
		return true, nil
	}
	m.persist(ctx)
	m.metrics.ObserveRefresh(metrics.RefreshSuccess)
	return true, nil
}

// Logout tells the backend to revoke the refresh token, then clears the session
// whatever the backend said. It never fails.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx, "")
}

func (m *Manager) logout(ctx context.Context, message string) {
	m.mu.Lock()
	previous := m.session
	m.mu.Unlock()

	if previous != nil {
		if err := m.backend.Logout(ctx, previous.RefreshToken); err != nil {
			m.logger.Warn().Err(backend.Normalize(err)).Msg("backend logout failed")
		}
	}
	m.clear(context.WithoutCancel(ctx), message)
}

// clear drops the session from memory and the store and cancels the timer.
func (m *Manager) clear(ctx context.Context, message string) {
	m.mu.Lock()
	m.session = nil
	m.epoch++
	m.stopTimerLocked()
	m.setStateLocked(State{Status: StatusUnauthenticated, Message: message})
	m.mu.Unlock()
	m.persist(ctx)
}

// install makes s the current session and arms the refresh timer. When epoch is
// set, s is only installed if the session has not changed since epoch was read.
func (m *Manager) install(s Session, epoch *uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != nil && *epoch != m.epoch {
		return false
	}
	m.session = &s
	m.epoch++
	m.setStateLocked(State{Status: StatusAuthenticated, Identifier: s.Identifier})

	expiry, ok := token.ExpiryOf(s.AccessToken)
	if !ok {
		m.stopTimerLocked()
		m.logger.Warn().Msg("access token has no readable expiry, refresh timer not armed")
		return true
	}
	m.armLocked(expiry)
	return true
}

// persist writes the current in-memory session through to the store.
func (m *Manager) persist(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	var current *Session
	if m.session != nil {
		s := *m.session
		current = &s
	}
	m.mu.Unlock()

	var err error
	if current == nil {
		err = store.Remove(ctx, m.store, storeKey)
	} else {
		err = store.Put(ctx, m.store, storeKey, current)
	}
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to persist session")
	}
}

func (m *Manager) armLocked(expiry time.Time) {
	m.stopTimerLocked()
	if m.closed {
		return
	}
	delay := expiry.Sub(m.nowFunc()) - m.leadTime
	if delay < 0 {
		delay = 0
	}
	m.timerGen++
	gen := m.timerGen
	m.due = m.nowFunc().Add(delay)
	m.timer = time.AfterFunc(delay, func() { m.fire(gen) })
	m.logger.Debug().Dur("delay", delay).Msg("refresh timer armed")
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	m.due = time.Time{}
}

// fire runs when the refresh timer elapses. The persisted session is re-read in case
// it holds credentials the in-memory copy missed.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.due = time.Time{}
	m.mu.Unlock()

	ctx := m.ctx
	var persisted Session
	found, err := m.store.Get(ctx, storeKey, &persisted)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to read persisted session, using in-memory copy")
	} else if !found || persisted.RefreshToken == "" {
		m.logout(ctx, ExpiredMessage)
		return
	}

	m.mu.Lock()
	if m.closed || m.session == nil {
		m.mu.Unlock()
		return
	}
	if err == nil {
		if persisted.Identifier == "" {
			persisted.Identifier = m.session.Identifier
		}
		m.session = &persisted
	}
	m.mu.Unlock()

	if _, err := m.refresh(ctx, ExpiredMessage, true); err != nil {
		m.logger.Info().Err(err).Msg("automatic refresh failed")
	}
}

// Token returns the current access token, or "" when signed out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// Session returns a copy of the current session.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe streams state changes, starting with the current state.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states.Subscribe(m.state)
}

// NextRefresh reports how long until the refresh timer fires.
func (m *Manager) NextRefresh() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		return 0, false
	}
	d := m.due.Sub(m.nowFunc())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Close stops the refresh timer and cancels any automatic refresh in progress.
// The session itself is left in place for the next run.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()
	m.cancel()
	m.states.Close()
}

func (m *Manager) sameEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

// restoreState puts the state back in line with the session after an abandoned refresh.
func (m *Manager) restoreState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusRefreshing {
		return
	}
	if m.session == nil {
		m.setStateLocked(State{Status: StatusUnauthenticated})
		return
	}
	m.setStateLocked(State{Status: StatusAuthenticated, Identifier: m.session.Identifier})
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(st)
}

func (m *Manager) setStateLocked(st State) {
	m.state = st
	m.metrics.SetAuthenticated(st.Status == StatusAuthenticated)
	m.states.Publish(st)
}
