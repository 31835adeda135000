package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/apierr"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials"
)

const (
	headerRequestID  = "X-Request-ID"
	headerActiveRole = "X-Active-Role"

	defaultTimeout = 30 * time.Second

	// Response bodies are error payloads or small JSON documents; cap reads
	// so a misbehaving endpoint cannot exhaust memory on a device.
	maxBodyBytes = 4 << 20
)

// Client sends requests through the authentication pipeline.
type Client struct {
	baseURL string
	http    *http.Client
	store   credentials.Store

	lock      sync.RWMutex
	refresher Refresher
	roles     RoleProvider
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request upper bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a pipeline client. The refresher and role provider are wired
// afterwards by the session manager and role registry respectively.
func New(baseURL string, store credentials.Store, options ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		store:   store,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetRefresher installs the single-flight refresh operation.
func (c *Client) SetRefresher(r Refresher) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.refresher = r
}

// SetRoleProvider installs the active-role source.
func (c *Client) SetRoleProvider(p RoleProvider) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.roles = p
}

// Send is the sanctioned entry point for calls to the backend. It attaches
// the current bearer token, and on a 401 for a not-yet-retried request runs
// the refresh protocol and replays the request exactly once with the new
// token. Every other outcome, success or failure, passes through unchanged.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.New().String()

	token := ""
	if !req.NoAuth {
		if creds := c.store.Load(); !creds.Empty() {
			token = creds.AccessToken
		}
	}

	resp, cerr := c.do(ctx, req, requestID, token)
	if cerr == nil {
		return resp, nil
	}
	if req.NoAuth || cerr.Kind != apierr.Unauthorized {
		return nil, cerr
	}

	// First 401 for this request: refresh once, replay once. A second 401
	// after the replay is terminal; the request is never sent a third time.
	refresher := c.currentRefresher()
	if refresher == nil {
		return nil, cerr
	}

	log.Debug().Str("requestID", requestID).Str("path", req.Path).Msg("access token rejected, refreshing")
	newToken, err := refresher.Refresh(ctx)
	if err != nil {
		// Refresh failed; the refresher has already cleared credentials.
		// Surface the original rejection, not the refresh internals.
		return nil, cerr
	}

	resp, cerr = c.do(ctx, req, requestID, newToken)
	if cerr != nil {
		return nil, cerr
	}
	return resp, nil
}

// Get sends a GET and decodes the JSON response into out when non-nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post sends a POST with a JSON body and decodes the response into out when
// non-nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) call(ctx context.Context, req Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// do performs a single network exchange and classifies the outcome.
func (c *Client) do(ctx context.Context, req Request, requestID, token string) (*Response, *apierr.Error) {
	httpReq, err := req.httpRequest(ctx, c.baseURL)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.Unknown, err.Error())
	}

	httpReq.Header.Set(headerRequestID, requestID)
	if token != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if !req.NoAuth {
		if roles := c.currentRoles(); roles != nil {
			if roleID, ok := roles.ActiveRoleID(); ok {
				httpReq.Header.Set(headerActiveRole, roleID)
			}
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apierr.Classify(nil, nil, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, apierr.Classify(nil, nil, err)
	}

	if cerr := apierr.Classify(httpResp, body, nil); cerr != nil {
		return nil, cerr
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) currentRefresher() Refresher {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.refresher
}

func (c *Client) currentRoles() RoleProvider {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.roles
}
