// Package apiclient is the outbound HTTP client. It attaches the session's bearer token
// and transparently recovers from access-token expiry with a single shared refresh.
package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultRefreshPath is the refresh endpoint relative to the base URL.
const DefaultRefreshPath = "/auth/refresh"

// SessionSource is the part of session.Manager the client reads and writes.
type SessionSource interface {
	Credentials() session.Credentials
	ApplyRefresh(generation, accessToken, refreshToken string) error
	Expire(generation string) bool
}

var _ SessionSource = (*session.Manager)(nil)

type Client struct {
	baseURL        *url.URL
	sessions       SessionSource
	httpClient     *http.Client
	refreshPath    string
	refreshTimeout time.Duration
	proactive      bool
	onExpired      func(error)
	metrics        *Metrics
	logger         zerolog.Logger

	mu       sync.Mutex
	inflight *refreshOperation
}

type Option func(*Client)

// WithHTTPClient replaces the transport client used for every call, refresh included.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRefreshTimeout bounds the refresh call. A timeout is treated as a refresh failure.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

func WithRefreshPath(path string) Option {
	return func(c *Client) {
		c.refreshPath = path
	}
}

// WithProactiveRefresh refreshes before sending when the access token's exp has passed,
// instead of waiting for the server's 401.
func WithProactiveRefresh(enabled bool) Option {
	return func(c *Client) {
		c.proactive = enabled
	}
}

// WithSessionExpiredHandler is called once per terminal refresh failure, after logout.
// The application boundary uses it to navigate to its login view.
func WithSessionExpiredHandler(fn func(error)) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, sessions SessionSource, options ...Option) (*Client, error) {
	if sessions == nil {
		return nil, errors.New("[apiclient.New] session source is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[apiclient.New] base URL must be absolute, got %q", baseURL)
	}

	c := &Client{
		baseURL:        u,
		sessions:       sessions,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		refreshPath:    DefaultRefreshPath,
		refreshTimeout: 10 * time.Second,
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "apiclient").Logger()
	return c, nil
}

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

// NewRequest builds a request for a path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.NewRequest]")
	}
	return req, nil
}

type callOption int

const (
	withoutCredentials callOption = iota + 1
	withoutRefresh
)

type callOptionKey struct{}

// WithoutCredentials marks calls made with ctx as anonymous: no bearer token is attached
// and a 401 is returned as-is. Used for login and registration.
func WithoutCredentials(ctx context.Context) context.Context {
	return context.WithValue(ctx, callOptionKey{}, withoutCredentials)
}

// WithoutRefresh attaches the bearer token but never enters the refresh protocol.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, callOptionKey{}, withoutRefresh)
}

func callOptionFrom(ctx context.Context) callOption {
	opt, _ := ctx.Value(callOptionKey{}).(callOption)
	return opt
}

// Do sends req with the current bearer token. A first 401 on an authenticated request
// is recovered through the shared refresh and replayed once; anything else, including a
// second 401, is returned as-is. Transport failures come back as *NetworkError, a failed
// refresh as *SessionExpiredError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	creds := c.sessions.Credentials()
	replay, err := newReplayable(req)
	if err != nil {
		return nil, err
	}

	switch callOptionFrom(req.Context()) {
	case withoutCredentials:
		return c.send(req.Context(), replay, nil, nil)
	case withoutRefresh:
		return c.send(req.Context(), replay, creds.Token, nil)
	}

	ctx, release := bindGeneration(req.Context(), creds.Context)

	var resp *http.Response
	if c.proactive && creds.Authenticated() && !creds.Token.Valid() {
		c.logger.Debug().Str("generation", creds.Generation).Msg("access token expired locally, refreshing before send")
		resp, err = c.recover(ctx, creds, replay)
	} else {
		resp, err = c.send(ctx, replay, creds.Token, nil)
		if err == nil && resp.StatusCode == http.StatusUnauthorized && creds.Authenticated() {
			drainAndClose(resp)
			resp, err = c.recover(ctx, creds, replay)
		}
	}

	if err != nil {
		release()
		return nil, err
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: release}
	return resp, nil
}

// send dispatches one attempt. dispatched, when non-nil, is closed once the request has
// been written to the connection, or when send returns, whichever comes first.
func (c *Client) send(ctx context.Context, replay *replayable, tok *oauth2.Token, dispatched chan struct{}) (*http.Response, error) {
	if dispatched != nil {
		var once sync.Once
		signal := func() { once.Do(func() { close(dispatched) }) }
		defer signal()
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
			WroteRequest: func(httptrace.WroteRequestInfo) { signal() },
		})
	}

	out, err := replay.build(ctx, tok)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(out)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrStaleSession) {
			return nil, ErrStaleSession
		}
		return nil, &NetworkError{Op: out.Method, URL: out.URL.Redacted(), Err: err}
	}
	return resp, nil
}

// bindGeneration derives a request context that is also cancelled when the session
// generation ends. release must be called once the response is no longer needed.
func bindGeneration(parent, gen context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if gen == nil {
		return ctx, func() { cancel(nil) }
	}
	stop := context.AfterFunc(gen, func() { cancel(ErrStaleSession) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
