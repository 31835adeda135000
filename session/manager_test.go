package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/apierr"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials/repofake"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/session"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/transport"
)

const (
	testIdentifier = "+250780000001"
	testSecret     = "good-secret"
	testOTP        = "123456"
)

// backend simulates the auth API: it issues rotating token pairs, rejects
// stale refresh tokens, and serves one protected route.
type backend struct {
	mu           sync.Mutex
	validAccess  string
	validRefresh string
	pairCounter  int
	refreshDelay time.Duration
	failRefresh  bool

	loginCalls     int
	refreshCalls   int
	protectedCalls int
	logoutCalls    int

	server *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+session.RouteLogin, b.handleLogin)
	mux.HandleFunc("POST "+session.RouteVerifyOTP, b.handleVerifyOTP)
	mux.HandleFunc("POST "+session.RouteRefresh, b.handleRefresh)
	mux.HandleFunc("POST "+session.RouteLogout, b.handleLogout)
	mux.HandleFunc("GET /wallet/balance", b.handleProtected)

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// issuePair rotates to a fresh token pair; callers hold b.mu.
func (b *backend) issuePair() (string, string) {
	b.pairCounter++
	claims := jwt.RegisteredClaims{
		Subject: "user-1",
		// jti keeps same-second pairs distinct; exp alone has only
		// one-second granularity, so back-to-back pairs would collide.
		ID:        fmt.Sprintf("pair-%d", b.pairCounter),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		panic(err)
	}
	b.validAccess = access
	b.validRefresh = fmt.Sprintf("refresh-%d", b.pairCounter)
	return b.validAccess, b.validRefresh
}

// expireAccess invalidates the current access token without touching the
// refresh token, simulating expiry.
func (b *backend) expireAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = ""
}

func (b *backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginCalls++

	var body struct{ Identifier, Secret string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Identifier != testIdentifier || body.Secret != testSecret {
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	access, refresh := b.issuePair()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":        access,
		"refreshToken": refresh,
		"user":         map[string]any{"name": "Ada", "phone": testIdentifier},
	})
}

func (b *backend) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var body struct{ Identifier, Code string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Code != testOTP {
		writeError(w, http.StatusUnauthorized, "bad code")
		return
	}
	access, refresh := b.issuePair()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":        access,
		"refreshToken": refresh,
		"user":         map[string]any{"name": "Ada"},
	})
}

func (b *backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	delay := b.refreshDelay
	fail := b.failRefresh
	b.mu.Unlock()

	time.Sleep(delay)

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if fail || body.RefreshToken != b.validRefresh {
		writeError(w, http.StatusUnauthorized, "refresh token rejected")
		return
	}
	access, refresh := b.issuePair()
	_ = json.NewEncoder(w).Encode(map[string]string{
		"token":        access,
		"refreshToken": refresh,
	})
}

func (b *backend) handleProtected(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.protectedCalls++
	if b.validAccess == "" || r.Header.Get("Authorization") != "Bearer "+b.validAccess {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"balance": "120.50"})
}

func (b *backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutCalls++
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

type testFixture struct {
	backend *backend
	store   *repofake.FakeStore
	client  *transport.Client
	manager *session.Manager
}

func setupTestFixture(t *testing.T, options ...session.Option) *testFixture {
	t.Helper()

	b := newBackend(t)
	store := repofake.NewFakeStore()
	client := transport.New(b.server.URL, store)
	mgr, err := session.New(client, store, store, options...)
	require.NoError(t, err)

	return &testFixture{backend: b, store: store, client: client, manager: mgr}
}

func (f *testFixture) login(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.manager.Login(context.Background(), testIdentifier, testSecret)
	require.NoError(t, err)
	return sess
}

func TestLoginStoresCredentialsAndProfile(t *testing.T) {
	f := setupTestFixture(t)

	sess := f.login(t)
	require.Equal(t, "Ada", sess.Profile["name"])
	require.NotEmpty(t, sess.Credentials.AccessToken)
	require.NotEmpty(t, sess.Credentials.RefreshToken)
	require.False(t, sess.Credentials.ExpiresAt.IsZero(), "expiry should be parsed from the JWT")

	stored := f.store.Load()
	require.NotNil(t, stored)
	require.Equal(t, sess.Credentials.AccessToken, stored.AccessToken)
	require.True(t, f.manager.IsAuthenticated())
	require.Equal(t, "Ada", f.manager.Profile()["name"])
}

func TestLoginValidatesInputWithoutNetwork(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Login(context.Background(), "", "secret")
	require.Equal(t, apierr.Validation, apierr.KindOf(err))
	require.Zero(t, f.backend.loginCalls)
	require.False(t, f.manager.IsAuthenticated())
}

func TestLoginBadCredentials(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Login(context.Background(), testIdentifier, "wrong")
	require.Equal(t, apierr.Unauthorized, apierr.KindOf(err))
	require.False(t, f.manager.IsAuthenticated())
}

func TestVerifyOTPEstablishesSession(t *testing.T) {
	f := setupTestFixture(t)

	sess, err := f.manager.VerifyOTP(context.Background(), testIdentifier, testOTP)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Credentials.AccessToken)
	require.True(t, f.manager.IsAuthenticated())
}

func TestLoginFollowUpRunsAndFailureIsSwallowed(t *testing.T) {
	f := setupTestFixture(t)

	ran := make(chan struct{})
	f.manager.OnLogin(func(ctx context.Context) error {
		close(ran)
		return fmt.Errorf("roles endpoint down")
	})

	f.login(t)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("login follow-up never ran")
	}
	require.True(t, f.manager.IsAuthenticated())
}

func TestRefreshWithoutTokenFailsWithoutNetwork(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Refresh(context.Background())
	require.Equal(t, apierr.Unauthorized, apierr.KindOf(err))
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
	require.Zero(t, f.backend.refreshCalls)
}

func TestRefreshRotatesBothTokens(t *testing.T) {
	f := setupTestFixture(t)
	sess := f.login(t)

	newAccess, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, sess.Credentials.AccessToken, newAccess)

	stored := f.store.Load()
	require.Equal(t, newAccess, stored.AccessToken)
	require.NotEqual(t, sess.Credentials.RefreshToken, stored.RefreshToken)
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.backend.mu.Lock()
	f.backend.failRefresh = true
	f.backend.mu.Unlock()

	_, err := f.manager.Refresh(context.Background())
	require.Equal(t, apierr.Unauthorized, apierr.KindOf(err))
	require.False(t, f.manager.IsAuthenticated())
	require.Nil(t, f.store.Load())
}

func TestRefreshTimeoutForcesLogout(t *testing.T) {
	f := setupTestFixture(t, session.WithRefreshTimeout(50*time.Millisecond))
	f.login(t)

	f.backend.mu.Lock()
	f.backend.refreshDelay = time.Second
	f.backend.mu.Unlock()

	_, err := f.manager.Refresh(context.Background())
	require.Equal(t, apierr.Unauthorized, apierr.KindOf(err))
	require.False(t, f.manager.IsAuthenticated())
}

func TestExpiredTokenIsRefreshedAndCallReplayed(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.expireAccess()

	var out map[string]string
	require.NoError(t, f.client.Get(context.Background(), "/wallet/balance", &out))
	require.Equal(t, "120.50", out["balance"])
	require.Equal(t, 1, f.backend.refreshCalls)

	// Subsequent calls ride on the rotated token without refreshing again.
	require.NoError(t, f.client.Get(context.Background(), "/wallet/balance", &out))
	require.Equal(t, 1, f.backend.refreshCalls)
}

func TestConcurrentExpiredRequestsRefreshExactlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.backend.mu.Lock()
	f.backend.refreshDelay = 200 * time.Millisecond
	f.backend.validAccess = ""
	f.backend.mu.Unlock()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var out map[string]string
			errs[i] = f.client.Get(context.Background(), "/wallet/balance", &out)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	require.Equal(t, 1, f.backend.refreshCalls, "concurrent 401s must coalesce into one refresh")
}

func TestCallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.backend.mu.Lock()
	f.backend.refreshDelay = 100 * time.Millisecond
	f.backend.validAccess = ""
	f.backend.mu.Unlock()

	// The triggering caller cancels mid-refresh; the refresh itself must
	// still complete and leave a valid session behind.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _ = f.manager.Refresh(ctx)

	require.Eventually(t, func() bool {
		return f.manager.IsAuthenticated()
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	hookCalled := false
	f.manager.OnLogout(func() { hookCalled = true })

	require.NoError(t, f.manager.Logout(context.Background()))
	require.False(t, f.manager.IsAuthenticated())
	require.Nil(t, f.store.Load())
	require.Nil(t, f.manager.Profile())
	require.True(t, hookCalled)
}

func TestLogoutWhenAlreadyLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Logout(context.Background()))
	require.False(t, f.manager.IsAuthenticated())
}

func TestCredentialRoundTripSurvivesRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	before := f.store.Load()
	_, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	after := f.store.Load()

	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.NotEmpty(t, after.RefreshToken)
}
