// Package sessions owns the signed-in user's credentials: it restores them at
// startup, keeps them fresh ahead of expiry and clears them on logout.
package sessions

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-access-client/backend"
)

// storeKey is where the session record is persisted.
const storeKey = "session"

// Session is the credential pair issued by the backend plus the account it belongs to.
// A Session is only ever replaced wholesale.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Identifier   string `json:"identifier"`
}

// Valid reports whether every field is set.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && strings.TrimSpace(s.Identifier) != ""
}

// Backend is the part of the backend client the manager calls.
type Backend interface {
	Login(ctx context.Context, username, password string) (backend.TokenPair, error)
	Refresh(ctx context.Context, username, refreshToken string) (backend.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

var _ Backend = (*backend.Client)(nil)
