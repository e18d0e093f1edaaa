// Package backendfake is an in-memory stand-in for the backend client.
package backendfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-access-client/backend"
)

// FakeClient answers from per-call functions and counts calls. A nil function
// answers with a zero value and no error.
type FakeClient struct {
	mu    sync.Mutex
	calls map[string]int
	last  map[string][]string

	LoginFunc         func(ctx context.Context, username, password string) (backend.TokenPair, error)
	RefreshFunc       func(ctx context.Context, username, refreshToken string) (backend.TokenPair, error)
	LogoutFunc        func(ctx context.Context, refreshToken string) error
	ServerExistsFunc  func(ctx context.Context, serverID string) (bool, error)
	AccessStatusFunc  func(ctx context.Context, serverID string) (backend.AccessStatus, error)
	RequestAccessFunc func(ctx context.Context, serverID string) error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		calls: make(map[string]int),
		last:  make(map[string][]string),
	}
}

func (f *FakeClient) record(name string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.last[name] = args
}

// Calls returns how many times the named method ran, e.g. "Refresh".
func (f *FakeClient) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls counts every call made.
func (f *FakeClient) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// LastArgs returns the string arguments of the most recent call to name.
func (f *FakeClient) LastArgs(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.last[name]...)
}

func (f *FakeClient) Login(ctx context.Context, username, password string) (backend.TokenPair, error) {
	f.record("Login", username, password)
	if f.LoginFunc == nil {
		return backend.TokenPair{}, nil
	}
	return f.LoginFunc(ctx, username, password)
}

func (f *FakeClient) Refresh(ctx context.Context, username, refreshToken string) (backend.TokenPair, error) {
	f.record("Refresh", username, refreshToken)
	if f.RefreshFunc == nil {
		return backend.TokenPair{}, nil
	}
	return f.RefreshFunc(ctx, username, refreshToken)
}

func (f *FakeClient) Logout(ctx context.Context, refreshToken string) error {
	f.record("Logout", refreshToken)
	if f.LogoutFunc == nil {
		return nil
	}
	return f.LogoutFunc(ctx, refreshToken)
}

func (f *FakeClient) ServerExists(ctx context.Context, serverID string) (bool, error) {
	f.record("ServerExists", serverID)
	if f.ServerExistsFunc == nil {
		return false, nil
	}
	return f.ServerExistsFunc(ctx, serverID)
}

func (f *FakeClient) AccessStatus(ctx context.Context, serverID string) (backend.AccessStatus, error) {
	f.record("AccessStatus", serverID)
	if f.AccessStatusFunc == nil {
		return backend.AccessStatus{}, nil
	}
	return f.AccessStatusFunc(ctx, serverID)
}

func (f *FakeClient) RequestAccess(ctx context.Context, serverID string) error {
	f.record("RequestAccess", serverID)
	if f.RequestAccessFunc == nil {
		return nil
	}
	return f.RequestAccessFunc(ctx, serverID)
}
