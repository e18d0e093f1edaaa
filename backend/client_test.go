package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-access-client/backend"
	"github.com/jrsteele09/go-access-client/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type recordedRequest struct {
	Method    string
	Path      string
	RawPath   string
	Auth      string
	RequestID string
	Body      map[string]any
}

type testFixture struct {
	server   *httptest.Server
	client   *backend.Client
	metrics  *metrics.Metrics
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func setupTestFixture(t *testing.T, opts ...backend.Option) *testFixture {
	t.Helper()
	f := &testFixture{metrics: metrics.New()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			RawPath:   r.URL.EscapedPath(),
			Auth:      r.Header.Get("Authorization"),
			RequestID: r.Header.Get("X-Request-ID"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		handler := f.handler
		f.mu.Unlock()
		if handler == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)

	opts = append([]backend.Option{backend.WithMetrics(f.metrics)}, opts...)
	f.client = backend.New(func() string { return f.server.URL + "/" }, opts...)
	return f
}

func (f *testFixture) respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *testFixture) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `{"access_token":"a1","refresh_token":"r1"}`)

	pair, err := f.client.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, backend.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, pair)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, "/login", reqs[0].Path)
	require.Equal(t, map[string]any{"username": "alice", "password": "secret"}, reqs[0].Body)
	require.NotEmpty(t, reqs[0].RequestID)
	require.Empty(t, reqs[0].Auth)
}

func TestLoginRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusUnauthorized, `{"detail":"bad credentials"}`)

	_, err := f.client.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, backend.ErrAuth)
	require.NotContains(t, backend.LoginMessage(err), "bad credentials")
}

func TestLoginMissingTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `{"access_token":"a1"}`)

	_, err := f.client.Login(context.Background(), "alice", "secret")
	require.Equal(t, backend.CodeNetwork, backend.CodeOf(err))
}

func TestRefreshSendsUsernameAndToken(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `{"access_token":"a2","refresh_token":"r2"}`)

	pair, err := f.client.Refresh(context.Background(), "alice", "r1")
	require.NoError(t, err)
	require.Equal(t, "a2", pair.AccessToken)

	reqs := f.recorded()
	require.Equal(t, "/token/refresh", reqs[0].Path)
	require.Equal(t, map[string]any{"username": "alice", "refresh_token": "r1"}, reqs[0].Body)
}

func TestLogoutToleratesEmptyBody(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusNoContent, "")

	require.NoError(t, f.client.Logout(context.Background(), "r1"))
	require.Equal(t, map[string]any{"refresh_token": "r1"}, f.recorded()[0].Body)
}

func TestServerExistsEscapesPath(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `{"exists":true}`)

	exists, err := f.client.ServerExists(context.Background(), "web/01 a")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "/servers/web%2F01%20a/exists", f.recorded()[0].RawPath)
}

func TestAccessStatus(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `{"server":"web-1","ip":"10.0.0.1","is_active":true,"expiration":1700000000,"time_remaining":"65"}`)

	status, err := f.client.AccessStatus(context.Background(), "web-1")
	require.NoError(t, err)
	require.True(t, status.IsActive)
	require.Equal(t, "10.0.0.1", status.IP)
	require.NotNil(t, status.TimeRemaining)
	require.Equal(t, "65", *status.TimeRemaining)
	require.Equal(t, "/access/web-1/status", f.recorded()[0].Path)
}

func TestAccessStatusFractionalExpiration(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `{"is_active":true,"expiration":1712345678.5,"time_remaining":"45"}`)

	status, err := f.client.AccessStatus(context.Background(), "web-1")
	require.NoError(t, err)
	require.True(t, status.IsActive)
	require.NotNil(t, status.Expiration)
	require.InDelta(t, 1712345678.5, *status.Expiration, 0.001)
	require.Equal(t, "45", *status.TimeRemaining)
}

func TestGetUndecodableBodyIsNetwork(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, `<html>`)

	_, err := f.client.AccessStatus(context.Background(), "web-1")
	require.ErrorIs(t, err, backend.ErrNetwork)
}

func TestRequestAccess(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusOK, "")

	require.NoError(t, f.client.RequestAccess(context.Background(), "web-1"))
	reqs := f.recorded()
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, "/access", reqs[0].Path)
	require.Equal(t, map[string]any{"server_id": "web-1"}, reqs[0].Body)
}

func TestStatusMapping(t *testing.T) {
	f := setupTestFixture(t)
	for status, want := range map[int]backend.Code{
		401: backend.CodeAuth,
		403: backend.CodeForbidden,
		404: backend.CodeNotFound,
		500: backend.CodeServer,
		502: backend.CodeOffline,
		503: backend.CodeOffline,
		409: backend.CodeUnknown,
	} {
		f.respond(status, "")
		err := f.client.RequestAccess(context.Background(), "web-1")
		require.Equal(t, want, backend.CodeOf(err), "status %d", status)
	}
}

func TestBearerFromTokenSource(t *testing.T) {
	f := setupTestFixture(t, backend.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc"})))
	f.respond(http.StatusOK, `{"exists":false}`)

	_, err := f.client.ServerExists(context.Background(), "web-1")
	require.NoError(t, err)
	require.Equal(t, "Bearer abc", f.recorded()[0].Auth)

	f.client.SetTokenSource(oauth2.StaticTokenSource(&oauth2.Token{}))
	_, err = f.client.ServerExists(context.Background(), "web-1")
	require.NoError(t, err)
	require.Empty(t, f.recorded()[1].Auth)
}

func TestAPIPrefix(t *testing.T) {
	f := setupTestFixture(t, backend.WithAPIPrefix("api/v1/"))
	f.respond(http.StatusOK, `{"exists":true}`)

	_, err := f.client.ServerExists(context.Background(), "web-1")
	require.NoError(t, err)
	require.Equal(t, "/api/v1/servers/web-1/exists", f.recorded()[0].Path)
}

func TestEmptyBaseURLIsOffline(t *testing.T) {
	client := backend.New(func() string { return "  " })
	_, err := client.ServerExists(context.Background(), "web-1")
	require.ErrorIs(t, err, backend.ErrOffline)
}

func TestTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := backend.New(func() string { return url })
	err := client.RequestAccess(context.Background(), "web-1")
	require.ErrorIs(t, err, backend.ErrNetwork)
	require.Equal(t, "Backend Offline", backend.Message(err))
}

func TestRequestMetrics(t *testing.T) {
	f := setupTestFixture(t)
	f.respond(http.StatusServiceUnavailable, "")
	_ = f.client.RequestAccess(context.Background(), "web-1")
	f.respond(http.StatusOK, "")
	_ = f.client.RequestAccess(context.Background(), "web-1")

	expected := `
# HELP access_client_backend_requests_total Backend requests by endpoint and outcome code.
# TYPE access_client_backend_requests_total counter
access_client_backend_requests_total{endpoint="request_access",outcome="OFFLINE"} 1
access_client_backend_requests_total{endpoint="request_access",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "access_client_backend_requests_total"))
}

func TestCheckHealth(t *testing.T) {
	var hits []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client := backend.New(nil)
	require.NoError(t, client.CheckHealth(context.Background(), srv.URL+"/"))
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"/health"}, hits)
}

func TestCheckHealthTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := backend.New(nil, backend.WithHealthTimeout(50*time.Millisecond))
	err := client.CheckHealth(context.Background(), srv.URL)
	require.ErrorIs(t, err, backend.ErrTimedOut)
}

func TestCheckHealthBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	err := backend.New(nil).CheckHealth(context.Background(), srv.URL)
	require.Error(t, err)
	require.NotErrorIs(t, err, backend.ErrTimedOut)
}
