package sessions_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-access-client/backend"
	"github.com/jrsteele09/go-access-client/backend/backendfake"
	"github.com/jrsteele09/go-access-client/metrics"
	"github.com/jrsteele09/go-access-client/sessions"
	"github.com/jrsteele09/go-access-client/store/storefake"
	"github.com/jrsteele09/go-access-client/token/tokenfake"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store   *storefake.FakeStore
	backend *backendfake.FakeClient
	metrics *metrics.Metrics
	now     time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return &testFixture{
		store:   storefake.NewFakeStore(),
		backend: backendfake.NewFakeClient(),
		metrics: metrics.New(),
		now:     time.Now().Truncate(time.Second),
	}
}

func (f *testFixture) manager(t *testing.T, opts ...sessions.ManagerOption) *sessions.Manager {
	t.Helper()
	opts = append([]sessions.ManagerOption{sessions.WithMetrics(f.metrics)}, opts...)
	m := sessions.New(f.store, f.backend, opts...)
	t.Cleanup(m.Close)
	return m
}

func (f *testFixture) fixedNow() sessions.ManagerOption {
	return sessions.WithNowFunc(func() time.Time { return f.now })
}

func (f *testFixture) durableSession(t *testing.T) (sessions.Session, bool) {
	t.Helper()
	var s sessions.Session
	found, err := f.store.Durable("session", &s)
	require.NoError(t, err)
	return s, found
}

func refreshReturns(access, refresh string) func(context.Context, string, string) (backend.TokenPair, error) {
	return func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
	}
}

func TestInitWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	m := f.manager(t)

	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, sessions.StatusUnauthenticated, m.State().Status)
	require.Empty(t, m.Token())
	require.Zero(t, f.backend.TotalCalls())
}

func TestInitRestoresLiveSession(t *testing.T) {
	f := setupTestFixture(t)
	access := tokenfake.ExpiringAt("alice", f.now.Add(time.Hour))
	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: access, RefreshToken: "r1", Identifier: "alice"}))
	m := f.manager(t, f.fixedNow())

	require.NoError(t, m.Init(context.Background()))

	st := m.State()
	require.Equal(t, sessions.StatusAuthenticated, st.Status)
	require.Equal(t, "alice", st.Identifier)
	require.Equal(t, access, m.Token())
	require.Zero(t, f.backend.Calls("Refresh"))

	delay, armed := m.NextRefresh()
	require.True(t, armed)
	require.Equal(t, time.Hour-sessions.DefaultLeadTime, delay)
}

func TestInitRefreshesExpiredSession(t *testing.T) {
	f := setupTestFixture(t)
	stale := tokenfake.ExpiringAt("alice", f.now.Add(-time.Minute))
	fresh := tokenfake.ExpiringAt("alice", f.now.Add(time.Hour))
	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: stale, RefreshToken: "r1", Identifier: "alice"}))

	var statusDuringRefresh sessions.Status
	m := f.manager(t, f.fixedNow())
	f.backend.RefreshFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		statusDuringRefresh = m.State().Status
		return backend.TokenPair{AccessToken: fresh, RefreshToken: "r2"}, nil
	}

	require.NoError(t, m.Init(context.Background()))

	require.Equal(t, 1, f.backend.Calls("Refresh"))
	require.Equal(t, []string{"alice", "r1"}, f.backend.LastArgs("Refresh"))
	require.Equal(t, sessions.StatusRefreshing, statusDuringRefresh)
	require.Equal(t, sessions.StatusAuthenticated, m.State().Status)

	persisted, found := f.durableSession(t)
	require.True(t, found)
	require.Equal(t, sessions.Session{AccessToken: fresh, RefreshToken: "r2", Identifier: "alice"}, persisted)
}

func TestInitRefreshesSessionWithoutExpiry(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: tokenfake.WithoutExpiry("alice"), RefreshToken: "r1", Identifier: "alice"}))
	f.backend.RefreshFunc = refreshReturns(tokenfake.ExpiringIn("alice", time.Hour), "r2")
	m := f.manager(t)

	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, 1, f.backend.Calls("Refresh"))
	require.True(t, m.State().Authenticated())
}

func TestInitClearsSessionWhenRefreshFails(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: tokenfake.ExpiringIn("alice", -time.Hour), RefreshToken: "r1", Identifier: "alice"}))
	f.backend.RefreshFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{}, backend.FromStatus(401)
	}
	m := f.manager(t)

	require.NoError(t, m.Init(context.Background()))

	st := m.State()
	require.Equal(t, sessions.StatusUnauthenticated, st.Status)
	require.Equal(t, sessions.ExpiredMessage, st.Message)
	require.False(t, f.store.HasDurable("session"))
	_, armed := m.NextRefresh()
	require.False(t, armed)
}

func TestInitCancelledRefreshLeavesUnauthenticated(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: tokenfake.ExpiringIn("alice", -time.Hour), RefreshToken: "r1", Identifier: "alice"}))
	f.backend.RefreshFunc = func(ctx context.Context, _, _ string) (backend.TokenPair, error) {
		return backend.TokenPair{}, ctx.Err()
	}
	m := f.manager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Init(ctx))

	st := m.State()
	require.Equal(t, sessions.StatusUnauthenticated, st.Status)
	require.Equal(t, sessions.ExpiredMessage, st.Message)
	require.Empty(t, m.Token())
	require.False(t, f.store.HasDurable("session"))
	_, armed := m.NextRefresh()
	require.False(t, armed)
}

func TestInitDiscardsIncompleteSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), Identifier: "alice"}))
	m := f.manager(t)

	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, sessions.StatusUnauthenticated, m.State().Status)
	require.False(t, f.store.HasDurable("session"))
	require.Zero(t, f.backend.TotalCalls())
}

func TestInitStoreFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.store.GetErr = errors.New("disk unreadable")
	m := f.manager(t)

	require.Error(t, m.Init(context.Background()))
	require.Equal(t, sessions.StatusUnauthenticated, m.State().Status)
}

func TestLoginPersistsAndArmsTimer(t *testing.T) {
	f := setupTestFixture(t)
	access := tokenfake.ExpiringAt("alice", f.now.Add(3600*time.Second))
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: access, RefreshToken: "r1"}, nil
	}
	m := f.manager(t, f.fixedNow(), sessions.WithLeadTime(30*time.Second))

	require.NoError(t, m.Login(context.Background(), " alice ", "secret"))

	require.Equal(t, []string{"alice", "secret"}, f.backend.LastArgs("Login"))
	persisted, found := f.durableSession(t)
	require.True(t, found)
	require.Equal(t, sessions.Session{AccessToken: access, RefreshToken: "r1", Identifier: "alice"}, persisted)

	delay, armed := m.NextRefresh()
	require.True(t, armed)
	require.InDelta(t, 3570, delay.Seconds(), 1)
	require.Equal(t, sessions.State{Status: sessions.StatusAuthenticated, Identifier: "alice"}, m.State())
}

func TestLoginRejectedCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{}, backend.FromStatus(401)
	}
	m := f.manager(t)

	err := m.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, backend.ErrAuth)

	st := m.State()
	require.Equal(t, sessions.StatusUnauthenticated, st.Status)
	require.Equal(t, "Incorrect username or password.", st.Message)
	require.False(t, f.store.HasDurable("session"))
	require.Zero(t, f.store.SaveCount())
}

func TestLoginBackendFailureMessage(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{}, errors.New("connection refused")
	}
	m := f.manager(t)

	err := m.Login(context.Background(), "alice", "secret")
	require.Equal(t, backend.CodeNetwork, backend.CodeOf(err))
	require.Equal(t, "Backend Offline", m.State().Message)
}

func TestLoginRequiresCredentials(t *testing.T) {
	f := setupTestFixture(t)
	m := f.manager(t)

	require.ErrorIs(t, m.Login(context.Background(), "  ", "secret"), sessions.ErrMissingCredentials)
	require.ErrorIs(t, m.Login(context.Background(), "alice", ""), sessions.ErrMissingCredentials)
	require.Zero(t, f.backend.TotalCalls())
}

func TestRefreshWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	m := f.manager(t)

	performed, err := m.Refresh(context.Background())
	require.False(t, performed)
	require.ErrorIs(t, err, sessions.ErrNoSession)
	require.Zero(t, f.backend.TotalCalls())
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), RefreshToken: "r1"}, nil
	}
	started := make(chan struct{})
	release := make(chan struct{})
	fresh := tokenfake.ExpiringIn("alice", 2*time.Hour)
	f.backend.RefreshFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		close(started)
		<-release
		return backend.TokenPair{AccessToken: fresh, RefreshToken: "r2"}, nil
	}
	m := f.manager(t)
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	type result struct {
		performed bool
		err       error
	}
	first := make(chan result, 1)
	go func() {
		performed, err := m.Refresh(context.Background())
		first <- result{performed, err}
	}()
	<-started

	performed, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.False(t, performed)

	close(release)
	r := <-first
	require.NoError(t, r.err)
	require.True(t, r.performed)
	require.Equal(t, 1, f.backend.Calls("Refresh"))
	require.Equal(t, fresh, m.Token())

	expected := `
# HELP access_client_session_refresh_total Session refresh attempts by outcome.
# TYPE access_client_session_refresh_total counter
access_client_session_refresh_total{outcome="skipped"} 1
access_client_session_refresh_total{outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "access_client_session_refresh_total"))
}

func TestRefreshFailureLogsOut(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), RefreshToken: "r1"}, nil
	}
	f.backend.RefreshFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{}, backend.FromStatus(500)
	}
	m := f.manager(t)
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	performed, err := m.Refresh(context.Background())
	require.True(t, performed)
	require.ErrorIs(t, err, backend.ErrServer)

	require.Equal(t, sessions.State{Status: sessions.StatusUnauthenticated, Message: "Server Error"}, m.State())
	require.Empty(t, m.Token())
	require.False(t, f.store.HasDurable("session"))
	_, armed := m.NextRefresh()
	require.False(t, armed)
}

func TestCancelledRefreshKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), RefreshToken: "r1"}, nil
	}
	f.backend.RefreshFunc = func(ctx context.Context, _, _ string) (backend.TokenPair, error) {
		return backend.TokenPair{}, ctx.Err()
	}
	m := f.manager(t)
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	performed, err := m.Refresh(ctx)
	require.True(t, performed)
	require.Error(t, err)
	require.True(t, m.State().Authenticated())
	require.True(t, f.store.HasDurable("session"))
}

func TestLogoutClearsStateWhenBackendFails(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), RefreshToken: "r1"}, nil
	}
	f.backend.LogoutFunc = func(context.Context, string) error {
		return errors.New("network unreachable")
	}
	m := f.manager(t)
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))
	require.True(t, f.store.HasDurable("session"))

	m.Logout(context.Background())

	require.Equal(t, []string{"r1"}, f.backend.LastArgs("Logout"))
	require.Equal(t, sessions.StatusUnauthenticated, m.State().Status)
	require.Empty(t, m.Token())
	require.False(t, f.store.HasDurable("session"))
	_, armed := m.NextRefresh()
	require.False(t, armed)
}

func TestLogoutWithoutSessionSkipsBackend(t *testing.T) {
	f := setupTestFixture(t)
	m := f.manager(t)

	m.Logout(context.Background())
	require.Zero(t, f.backend.Calls("Logout"))
	require.Equal(t, sessions.StatusUnauthenticated, m.State().Status)
}

func TestTimerRefreshUsesPersistedSession(t *testing.T) {
	f := setupTestFixture(t)
	expiry := f.now.Add(time.Hour)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringAt("alice", expiry), RefreshToken: "r1"}, nil
	}
	f.backend.RefreshFunc = refreshReturns(tokenfake.ExpiringIn("alice", 48*time.Hour), "r3")

	// Clock sits 300ms before the refresh point.
	clock := expiry.Add(-sessions.DefaultLeadTime - 300*time.Millisecond)
	m := f.manager(t, sessions.WithNowFunc(func() time.Time { return clock }))
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	require.NoError(t, f.store.Seed("session", sessions.Session{
		AccessToken:  tokenfake.ExpiringAt("alice", expiry),
		RefreshToken: "r2",
		Identifier:   "alice",
	}))

	require.Eventually(t, func() bool {
		return f.backend.Calls("Refresh") == 1 && m.State().Authenticated()
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"alice", "r2"}, f.backend.LastArgs("Refresh"))

	require.Eventually(t, func() bool {
		s, _ := f.durableSession(t)
		return s.RefreshToken == "r3"
	}, time.Second, 10*time.Millisecond)
}

func TestTimerLogsOutWithoutRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	expiry := f.now.Add(time.Hour)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringAt("alice", expiry), RefreshToken: "r1"}, nil
	}
	clock := expiry.Add(-sessions.DefaultLeadTime - 300*time.Millisecond)
	m := f.manager(t, sessions.WithNowFunc(func() time.Time { return clock }))
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	require.NoError(t, f.store.Seed("session", sessions.Session{AccessToken: "a", Identifier: "alice"}))

	require.Eventually(t, func() bool {
		return m.State() == sessions.State{Status: sessions.StatusUnauthenticated, Message: sessions.ExpiredMessage}
	}, 3*time.Second, 10*time.Millisecond)
	require.Zero(t, f.backend.Calls("Refresh"))
	require.Equal(t, []string{"r1"}, f.backend.LastArgs("Logout"))
}

func TestTimerRefreshFailureSetsExpiredMessage(t *testing.T) {
	f := setupTestFixture(t)
	expiry := f.now.Add(time.Hour)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringAt("alice", expiry), RefreshToken: "r1"}, nil
	}
	f.backend.RefreshFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{}, backend.FromStatus(401)
	}
	clock := expiry.Add(-sessions.DefaultLeadTime - 200*time.Millisecond)
	m := f.manager(t, sessions.WithNowFunc(func() time.Time { return clock }))
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	require.Eventually(t, func() bool {
		return m.State() == sessions.State{Status: sessions.StatusUnauthenticated, Message: sessions.ExpiredMessage}
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, f.backend.Calls("Refresh"))
	require.Eventually(t, func() bool { return !f.store.HasDurable("session") }, time.Second, 10*time.Millisecond)
}

func TestCloseStopsTimer(t *testing.T) {
	f := setupTestFixture(t)
	expiry := f.now.Add(time.Hour)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringAt("alice", expiry), RefreshToken: "r1"}, nil
	}
	clock := expiry.Add(-sessions.DefaultLeadTime - 100*time.Millisecond)
	m := f.manager(t, sessions.WithNowFunc(func() time.Time { return clock }))
	require.NoError(t, m.Login(context.Background(), "alice", "secret"))

	m.Close()
	time.Sleep(300 * time.Millisecond)

	require.Zero(t, f.backend.Calls("Refresh"))
	require.True(t, f.store.HasDurable("session"))
	_, armed := m.NextRefresh()
	require.False(t, armed)
}

func TestTokenSource(t *testing.T) {
	f := setupTestFixture(t)
	expiry := f.now.Add(time.Hour)
	access := tokenfake.ExpiringAt("alice", expiry)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: access, RefreshToken: "r1"}, nil
	}
	m := f.manager(t)
	ts := m.TokenSource()

	_, err := ts.Token()
	require.ErrorIs(t, err, sessions.ErrNoSession)

	require.NoError(t, m.Login(context.Background(), "alice", "secret"))
	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, access, tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
	require.True(t, expiry.Equal(tok.Expiry))
}

func TestSubscribe(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), RefreshToken: "r1"}, nil
	}
	m := f.manager(t)

	updates, cancel := m.Subscribe()
	defer cancel()
	require.Equal(t, sessions.StatusUnauthenticated, (<-updates).Status)

	require.NoError(t, m.Login(context.Background(), "alice", "secret"))
	require.Equal(t, sessions.State{Status: sessions.StatusAuthenticated, Identifier: "alice"}, <-updates)

	m.Logout(context.Background())
	require.Equal(t, sessions.StatusUnauthenticated, (<-updates).Status)
}

func TestAuthenticatedGauge(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.LoginFunc = func(context.Context, string, string) (backend.TokenPair, error) {
		return backend.TokenPair{AccessToken: tokenfake.ExpiringIn("alice", time.Hour), RefreshToken: "r1"}, nil
	}
	m := f.manager(t)

	require.NoError(t, m.Login(context.Background(), "alice", "secret"))
	expected := `
# HELP access_client_session_authenticated 1 while a session is held, 0 otherwise.
# TYPE access_client_session_authenticated gauge
access_client_session_authenticated 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "access_client_session_authenticated"))
}
