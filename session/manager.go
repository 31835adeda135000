// Package session owns the authenticated/unauthenticated lifecycle: login,
// OTP verification, token refresh, and logout. The refresh operation is
// single-flight: no matter how many concurrent requests hit an expired token,
// the refresh endpoint is called once and everyone shares the outcome.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/apierr"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/transport"
)

const (
	refreshKey            = "refresh"
	defaultRefreshTimeout = 15 * time.Second
	logoutNotifyTimeout   = 5 * time.Second
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoRefreshToken   = errors.New("no refresh token stored")
)

// Session is returned to the caller on successful login or OTP verification.
type Session struct {
	Credentials credentials.Credentials
	Profile     credentials.UserProfile
}

// Manager drives the session state machine. It implements
// transport.Refresher and installs itself on the client at construction.
type Manager struct {
	client   *transport.Client
	store    credentials.Store
	profiles credentials.ProfileStore

	group          singleflight.Group
	refreshTimeout time.Duration
	nowTime        func() time.Time

	onLogin  func(ctx context.Context) error
	onLogout func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) { m.nowTime = nowFunc }
}

// WithRefreshTimeout bounds the shared refresh call. A timed-out refresh is
// treated as a failed refresh so the session can never stay stuck refreshing.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

// New creates a session manager and wires it into the transport client as
// the refresher for the 401 protocol.
func New(client *transport.Client, store credentials.Store, profiles credentials.ProfileStore, options ...Option) (*Manager, error) {
	if client == nil {
		return nil, errors.New("[session.New] client is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}
	if profiles == nil {
		return nil, errors.New("[session.New] profile store is required")
	}

	m := &Manager{
		client:         client,
		store:          store,
		profiles:       profiles,
		refreshTimeout: defaultRefreshTimeout,
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	client.SetRefresher(m)
	return m, nil
}

// OnLogin registers a follow-up run in the background after a successful
// login or OTP verification. Its failure never fails the login itself.
func (m *Manager) OnLogin(f func(ctx context.Context) error) {
	m.onLogin = f
}

// OnLogout registers a hook run when the session ends, whether by explicit
// logout or terminal refresh failure.
func (m *Manager) OnLogout(f func()) {
	m.onLogout = f
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type authResponse struct {
	Token        string                  `json:"token"`
	RefreshToken string                  `json:"refreshToken"`
	User         credentials.UserProfile `json:"user"`
}

// Login exchanges the identifier/secret pair for a token pair and cached
// profile, then transitions to authenticated.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	if identifier == "" || secret == "" {
		return nil, apierr.New(apierr.Validation, "identifier and secret are required")
	}
	return m.authenticate(ctx, RouteLogin, loginRequest{Identifier: identifier, Secret: secret})
}

// VerifyOTP completes the registration/verification flow. Success has the
// same contract as Login.
func (m *Manager) VerifyOTP(ctx context.Context, identifier, code string) (*Session, error) {
	if identifier == "" || code == "" {
		return nil, apierr.New(apierr.Validation, "identifier and code are required")
	}
	return m.authenticate(ctx, RouteVerifyOTP, verifyOTPRequest{Identifier: identifier, Code: code})
}

func (m *Manager) authenticate(ctx context.Context, route string, body any) (*Session, error) {
	resp, err := m.client.Send(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   route,
		Body:   body,
		NoAuth: true,
	})
	if err != nil {
		return nil, err
	}

	var ar authResponse
	if err := resp.Decode(&ar); err != nil {
		return nil, err
	}
	if ar.Token == "" {
		return nil, apierr.New(apierr.Unknown, "server returned no token")
	}

	creds := credentials.Credentials{
		AccessToken:  ar.Token,
		RefreshToken: ar.RefreshToken,
		ExpiresAt:    tokenExpiry(ar.Token),
	}
	if err := m.store.Save(&creds); err != nil {
		return nil, errors.Wrap(err, "[Manager.authenticate] store.Save")
	}
	if err := m.profiles.SaveProfile(ar.User); err != nil {
		log.Warn().Err(err).Msg("profile cache write failed")
	}
	if !creds.ExpiresAt.IsZero() {
		log.Debug().Dur("expiresIn", creds.ExpiresAt.Sub(m.nowTime())).Msg("session established")
	}

	m.runLoginFollowUp()

	return &Session{Credentials: creds, Profile: ar.User}, nil
}

// runLoginFollowUp kicks off the registered follow-up (role loading) in the
// background. Deliberately fire-and-forget: a user with valid tokens but an
// unreachable role endpoint is still logged in.
func (m *Manager) runLoginFollowUp() {
	if m.onLogin == nil {
		return
	}
	follow := m.onLogin
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
		defer cancel()
		if err := follow(ctx); err != nil {
			log.Warn().Err(err).Msg("post-login follow-up failed")
		}
	}()
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the token pair. Concurrent callers are coalesced onto one
// underlying call; every caller observes the same new token or the same
// failure. On any failure the credentials are cleared: an invalid refresh
// token can never self-heal, so the only honest state is logged out.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	token, err, _ := m.group.Do(refreshKey, func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	creds := m.store.Load()
	if creds == nil {
		return "", apierr.Wrap(ErrNotAuthenticated, apierr.Unauthorized, "not logged in")
	}
	if creds.RefreshToken == "" {
		return "", apierr.Wrap(ErrNoRefreshToken, apierr.Unauthorized, "not logged in")
	}

	// Detach from the triggering request: its cancellation must not abort a
	// refresh that other coalesced callers are waiting on. The timeout keeps
	// the session from being stuck refreshing forever.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()

	resp, err := m.client.Send(rctx, transport.Request{
		Method: http.MethodPost,
		Path:   RouteRefresh,
		Body:   refreshRequest{RefreshToken: creds.RefreshToken},
		NoAuth: true,
	})
	if err != nil {
		m.forceLogout()
		log.Info().Str("kind", string(apierr.KindOf(err))).Msg("token refresh failed, session ended")
		return "", apierr.Wrap(err, apierr.Unauthorized, "session expired")
	}

	var rr refreshResponse
	if err := resp.Decode(&rr); err != nil {
		m.forceLogout()
		return "", apierr.Wrap(err, apierr.Unauthorized, "session expired")
	}
	if rr.Token == "" {
		m.forceLogout()
		return "", apierr.New(apierr.Unauthorized, "session expired")
	}

	// Both tokens rotate together. Store.Save is atomic, so a concurrent
	// reader sees either the old pair or the new pair, never a mix.
	if err := m.store.Save(&credentials.Credentials{
		AccessToken:  rr.Token,
		RefreshToken: rr.RefreshToken,
		ExpiresAt:    tokenExpiry(rr.Token),
	}); err != nil {
		m.forceLogout()
		return "", apierr.Wrap(err, apierr.Unauthorized, "session expired")
	}

	return rr.Token, nil
}

// Logout ends the session locally and notifies the backend best-effort. The
// local teardown always succeeds even when the notification cannot be sent.
func (m *Manager) Logout(ctx context.Context) error {
	creds := m.store.Load()
	m.forceLogout()

	if !creds.Empty() {
		go m.notifyLogout(context.WithoutCancel(ctx), creds.AccessToken)
	}
	return nil
}

// notifyLogout tells the backend the session ended. Failures are logged and
// discarded; the token is attached directly so a rejected notification can
// never re-enter the refresh protocol.
func (m *Manager) notifyLogout(ctx context.Context, accessToken string) {
	ctx, cancel := context.WithTimeout(ctx, logoutNotifyTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	if _, err := m.client.Send(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   RouteLogout,
		Header: header,
		NoAuth: true,
	}); err != nil {
		log.Debug().Err(err).Msg("server logout notification failed")
	}
}

func (m *Manager) forceLogout() {
	if err := m.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("credential clear failed")
	}
	if err := m.profiles.ClearProfile(); err != nil {
		log.Warn().Err(err).Msg("profile clear failed")
	}
	if m.onLogout != nil {
		m.onLogout()
	}
}

// IsAuthenticated reports whether a non-empty access token is stored. Expiry
// is not checked here; an expired token is discovered lazily via a 401.
func (m *Manager) IsAuthenticated() bool {
	return !m.store.Load().Empty()
}

// Profile returns the cached user profile, or nil when logged out.
func (m *Manager) Profile() credentials.UserProfile {
	return m.profiles.LoadProfile()
}

// tokenExpiry extracts the exp claim without verifying the signature; the
// client has no verification key and only uses expiry for diagnostics. A
// non-JWT token yields a zero time.
func tokenExpiry(raw string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
