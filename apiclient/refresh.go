package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/jrsteele09/tutorhub-session/token"
	"github.com/pkg/errors"
)

// refreshOperation is the single in-flight refresh of one session generation.
// Requests that hit a 401 meanwhile queue on it and are replayed in arrival order.
type refreshOperation struct {
	creds       session.Credentials
	initiatedAt time.Time
	pending     []*pendingRequest

	// failed is set once the refresh has failed and stays until the generation is expired.
	failed *SessionExpiredError
}

type result struct {
	resp *http.Response
	err  error
}

type pendingRequest struct {
	ctx    context.Context
	replay *replayable

	mu        sync.Mutex
	done      chan result
	abandoned bool
}

// deliver hands r to the waiter, or closes the body if the waiter has gone.
func (p *pendingRequest) deliver(r result) {
	p.mu.Lock()
	abandoned := p.abandoned
	if !abandoned {
		p.done <- r
	}
	p.mu.Unlock()

	if abandoned && r.resp != nil {
		drainAndClose(r.resp)
	}
}

// wait prefers an already delivered result over cancellation, so a refresh failure that
// also ends the generation is always reported as *SessionExpiredError.
func (p *pendingRequest) wait() (*http.Response, error) {
	select {
	case r := <-p.done:
		return r.resp, r.err
	case <-p.ctx.Done():
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case r := <-p.done:
		return r.resp, r.err
	default:
	}
	p.abandoned = true
	if cause := context.Cause(p.ctx); errors.Is(cause, ErrStaleSession) {
		return nil, ErrStaleSession
	}
	return nil, p.ctx.Err()
}

// recover runs the 401 protocol for one request that was sent with creds.
func (c *Client) recover(ctx context.Context, creds session.Credentials, replay *replayable) (*http.Response, error) {
	p := &pendingRequest{ctx: ctx, replay: replay, done: make(chan result, 1)}

	c.mu.Lock()
	current := c.sessions.Credentials()
	switch {
	case current.Generation != creds.Generation || !current.Authenticated():
		c.mu.Unlock()
		return nil, ErrStaleSession

	case c.inflight != nil && c.inflight.creds.Generation == creds.Generation && c.inflight.failed != nil:
		err := c.inflight.failed
		c.mu.Unlock()
		return nil, err

	case c.inflight != nil && c.inflight.creds.Generation == creds.Generation:
		c.inflight.pending = append(c.inflight.pending, p)
		c.mu.Unlock()
		c.metrics.waited()

	case current.Token.AccessToken != creds.Token.AccessToken:
		// Another request already refreshed this generation after we sent; replay with its token.
		c.mu.Unlock()
		c.metrics.replayed()
		return c.send(ctx, replay, current.Token, nil)

	default:
		op := &refreshOperation{creds: current, initiatedAt: time.Now(), pending: []*pendingRequest{p}}
		c.inflight = op
		c.mu.Unlock()
		c.metrics.waited()
		go c.runRefresh(op)
	}

	return p.wait()
}

func (c *Client) runRefresh(op *refreshOperation) {
	gen := op.creds.Generation
	logger := c.logger.With().Str("generation", gen).Logger()
	logger.Debug().Msg("refreshing access token")

	ctx, cancel := context.WithTimeout(op.creds.Context, c.refreshTimeout)
	access, rotated, err := c.callRefresh(ctx, op.creds.Token.RefreshToken)
	cancel()
	if err == nil {
		err = c.sessions.ApplyRefresh(gen, access, rotated)
	}
	took := time.Since(op.initiatedAt)

	outcome := OutcomeSuccess
	var expiredErr *SessionExpiredError
	if err != nil {
		outcome = OutcomeFailure
		if errors.Is(err, session.ErrStaleSession) || op.creds.Context.Err() != nil {
			outcome = OutcomeStale
		} else {
			expiredErr = &SessionExpiredError{Cause: err}
		}
	}

	// A failed refresh keeps the slot until Expire has run, so no 401 in between can
	// spend the rejected refresh token again.
	c.mu.Lock()
	if expiredErr != nil {
		op.failed = expiredErr
	} else if c.inflight == op {
		c.inflight = nil
	}
	waiters := op.pending
	op.pending = nil
	c.mu.Unlock()

	switch outcome {
	case OutcomeStale:
		c.metrics.refreshed(outcome, took)
		for _, p := range waiters {
			p.deliver(result{err: ErrStaleSession})
		}
		logger.Debug().Err(err).Msg("refresh abandoned, session ended")
		return

	case OutcomeFailure:
		c.metrics.refreshed(outcome, took)
		for _, p := range waiters {
			p.deliver(result{err: expiredErr})
		}
		expired := c.sessions.Expire(gen)

		c.mu.Lock()
		if c.inflight == op {
			c.inflight = nil
		}
		c.mu.Unlock()

		if expired {
			logger.Err(err).Int("waiters", len(waiters)).Msg("refresh failed, session logged out")
			if c.onExpired != nil {
				c.onExpired(expiredErr)
			}
		}
		return
	}

	c.metrics.refreshed(OutcomeSuccess, took)
	logger.Info().Int("waiters", len(waiters)).Bool("rotated", rotated != "").Dur("took", took).Msg("access token refreshed")

	tok := token.NewOAuth2Token(access, rotated)
	for _, p := range waiters {
		if err := p.ctx.Err(); err != nil {
			p.deliver(result{err: err})
			continue
		}
		// Each replay is written out before the next one starts.
		dispatched := make(chan struct{})
		go func(p *pendingRequest) {
			c.metrics.replayed()
			resp, err := c.send(p.ctx, p.replay, tok, dispatched)
			p.deliver(result{resp: resp, err: err})
		}(p)
		<-dispatched
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// refreshResponse accepts both a flat body and the {success, data} envelope.
type refreshResponse struct {
	refreshTokens
	Success *bool          `json:"success,omitempty"`
	Data    *refreshTokens `json:"data,omitempty"`
}

// callRefresh posts the refresh token. It goes straight to the transport and is never retried.
func (c *Client) callRefresh(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	if refreshToken == "" {
		return "", "", ErrNoRefreshToken
	}
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", errors.Wrap(err, "[Client.callRefresh] encode")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(c.refreshPath), bytes.NewReader(body))
	if err != nil {
		return "", "", errors.Wrap(err, "[Client.callRefresh] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", &NetworkError{Op: req.Method, URL: req.URL.Redacted(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", "", errors.Wrapf(ErrRefreshRejected, "status %d", resp.StatusCode)
	}

	var decoded refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", "", errors.Wrapf(ErrRefreshRejected, "decode response: %v", err)
	}
	if decoded.Success != nil && !*decoded.Success {
		return "", "", errors.Wrap(ErrRefreshRejected, "success=false")
	}

	tokens := decoded.refreshTokens
	if decoded.Data != nil && decoded.Data.AccessToken != "" {
		tokens = *decoded.Data
	}
	if tokens.AccessToken == "" {
		return "", "", errors.Wrap(ErrRefreshRejected, "response carries no access token")
	}
	return tokens.AccessToken, tokens.RefreshToken, nil
}
