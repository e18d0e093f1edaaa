package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var errMissingTokens = errors.New("response is missing tokens")

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, "login", http.MethodPost, pathLogin, LoginRequest{Username: username, Password: password}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, &Error{Code: CodeNetwork, Err: errMissingTokens}
	}
	return pair, nil
}

// Refresh exchanges the refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, username, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, "refresh", http.MethodPost, pathRefresh, RefreshRequest{Username: username, RefreshToken: refreshToken}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, &Error{Code: CodeNetwork, Err: errMissingTokens}
	}
	return pair, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, "logout", http.MethodPost, pathLogout, LogoutRequest{RefreshToken: refreshToken}, nil)
}

// ServerExists reports whether the backend knows serverID.
func (c *Client) ServerExists(ctx context.Context, serverID string) (bool, error) {
	var resp ExistsResponse
	if err := c.do(ctx, "server_exists", http.MethodGet, "/servers/"+url.PathEscape(serverID)+"/exists", nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) AccessStatus(ctx context.Context, serverID string) (AccessStatus, error) {
	var status AccessStatus
	if err := c.do(ctx, "access_status", http.MethodGet, pathAccess+"/"+url.PathEscape(serverID)+"/status", nil, &status); err != nil {
		return AccessStatus{}, err
	}
	return status, nil
}

func (c *Client) RequestAccess(ctx context.Context, serverID string) error {
	return c.do(ctx, "request_access", http.MethodPost, pathAccess, AccessRequest{ServerID: serverID}, nil)
}

// CheckHealth probes {baseURL}/health with the client's health timeout. It does not
// use the configured base URL or API prefix, so a candidate URL can be checked before
// it is saved. A passed deadline returns ErrTimedOut.
func (c *Client) CheckHealth(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	target := strings.TrimRight(strings.TrimSpace(baseURL), "/") + pathHealth
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "Client.CheckHealth http.NewRequestWithContext")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimedOut
		}
		return errors.Wrap(err, "Client.CheckHealth httpClient.Do")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FromStatus(resp.StatusCode)
	}
	return nil
}
