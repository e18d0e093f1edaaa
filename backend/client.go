// Package backend is the HTTP client for the access backend. Every failure it
// returns is tagged with a Code from the fixed taxonomy in errors.go.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-access-client/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	headerRequestID       = "X-Request-ID"
	defaultHealthTimeout  = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	outcomeOK             = "ok"
)

var errNoServerURL = errors.New("no server url configured")

type Client struct {
	baseURL       func() string
	apiPrefix     string
	httpClient    *http.Client
	healthTimeout time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics

	mu     sync.RWMutex
	tokens oauth2.TokenSource
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTokenSource sets where the bearer token comes from. See also SetTokenSource.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(cl *Client) {
		cl.tokens = ts
	}
}

// WithAPIPrefix inserts prefix between the base URL and every endpoint path.
func WithAPIPrefix(prefix string) Option {
	return func(cl *Client) {
		cl.apiPrefix = prefix
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

func WithHealthTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.healthTimeout = d
	}
}

// New creates a client. baseURL is consulted on every request so settings changes
// take effect without rebuilding the client.
func New(baseURL func() string, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: defaultRequestTimeout},
		healthTimeout: defaultHealthTimeout,
		logger:        log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == nil {
		c.baseURL = func() string { return "" }
	}
	c.apiPrefix = normalizePrefix(c.apiPrefix)
	return c
}

// SetTokenSource replaces the bearer token source. The session manager needs a client
// before it can hand one out, so the two are usually joined after construction.
func (c *Client) SetTokenSource(ts oauth2.TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) tokenSource() oauth2.TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

func (c *Client) endpointURL(path string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.baseURL()), "/")
	if base == "" {
		return "", &Error{Code: CodeOffline, Err: errNoServerURL}
	}
	return base + c.apiPrefix + path, nil
}

// do sends one JSON request. A nil out skips decoding. GET responses that cannot be
// decoded are NETWORK failures; an empty POST response body is accepted.
func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) (err error) {
	started := time.Now()
	defer func() {
		outcome := outcomeOK
		if err != nil {
			outcome = CodeOf(err).String()
		}
		c.metrics.ObserveRequest(endpoint, outcome, time.Since(started))
	}()

	target, err := c.endpointURL(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return &Error{Code: CodeNetwork, Err: errors.Wrap(err, "Client.do json.Marshal")}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &Error{Code: CodeNetwork, Err: errors.Wrap(err, "Client.do http.NewRequestWithContext")}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	logger := c.logger.With().Str("endpoint", endpoint).Str("request_id", requestID).Logger()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("backend request failed")
		return &Error{Code: CodeNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		tagged := FromStatus(resp.StatusCode)
		logger.Debug().Int("status", resp.StatusCode).Str("code", tagged.Code.String()).Msg("backend request rejected")
		return tagged
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: CodeNetwork, Err: errors.Wrap(err, "Client.do io.ReadAll")}
	}
	if method != http.MethodGet && len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Debug().Err(err).Msg("backend response undecodable")
		return &Error{Code: CodeNetwork, Err: errors.Wrap(err, "Client.do json.Unmarshal")}
	}
	return nil
}

// authorize attaches the bearer token when a session exists.
func (c *Client) authorize(req *http.Request) {
	ts := c.tokenSource()
	if ts == nil {
		return
	}
	tok, err := ts.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return
	}
	tok.SetAuthHeader(req)
}
