package sessions

import (
	"github.com/jrsteele09/go-access-client/token"
	"golang.org/x/oauth2"
)

// TokenSource exposes the manager's access token as an oauth2.TokenSource. It never
// refreshes on its own; renewal stays with the manager's timer.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return managerTokenSource{m: m}
}

type managerTokenSource struct {
	m *Manager
}

func (ts managerTokenSource) Token() (*oauth2.Token, error) {
	s, ok := ts.m.Session()
	if !ok {
		return nil, ErrNoSession
	}
	tok := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
	}
	if expiry, ok := token.ExpiryOf(s.AccessToken); ok {
		tok.Expiry = expiry
	}
	return tok, nil
}
