package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// replayable can rebuild an outbound request any number of times.
type replayable struct {
	req     *http.Request
	getBody func() (io.ReadCloser, error)
}

func newReplayable(req *http.Request) (*replayable, error) {
	r := &replayable{req: req}
	switch {
	case req.Body == nil || req.Body == http.NoBody:
	case req.GetBody != nil:
		r.getBody = req.GetBody
	default:
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "[apiclient] buffer request body")
		}
		r.getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	}
	return r, nil
}

// build returns a copy of the request bound to ctx carrying tok as bearer credential.
// A nil or empty tok sends the request unauthenticated.
func (r *replayable) build(ctx context.Context, tok *oauth2.Token) (*http.Request, error) {
	out := r.req.Clone(ctx)
	if r.getBody != nil {
		body, err := r.getBody()
		if err != nil {
			return nil, errors.Wrap(err, "[apiclient] rewind request body")
		}
		out.Body = body
		out.GetBody = r.getBody
	}
	out.Header.Del("Authorization")
	if tok != nil && tok.AccessToken != "" {
		tok.SetAuthHeader(out)
	}
	return out, nil
}

// cancelOnClose releases the request context once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (b cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
