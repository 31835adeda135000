// Package transport is the single path for outbound calls to the Benkinet
// backend. Every authenticated request gets the bearer token and active-role
// header attached on the way out, and the 401 refresh-and-replay protocol
// applied on the way back.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Refresher obtains a fresh access token after the current one is rejected.
// Implementations must coalesce concurrent callers onto a single underlying
// refresh call and clear stored credentials on terminal failure.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RoleProvider exposes the active role scoping authenticated calls.
type RoleProvider interface {
	ActiveRoleID() (string, bool)
}

// Request describes one outbound call. Body, when non-nil, is marshalled as
// JSON; keeping it as a value rather than a reader is what makes a replay
// after refresh safe.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// NoAuth skips bearer attachment and the 401 refresh protocol. Set on
	// the auth endpoints themselves so a rejected login or refresh can never
	// trigger another refresh.
	NoAuth bool
}

// Response is the successful outcome of a call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "[Response.Decode]")
	}
	return nil
}

func (r *Request) httpRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	u := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var body *bytes.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, errors.Wrap(err, "[Request.httpRequest] marshal body")
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Request.httpRequest]")
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
