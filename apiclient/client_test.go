package apiclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/tutorhub-session/apiclient"
	"github.com/jrsteele09/tutorhub-session/session"
	sessionrepofake "github.com/jrsteele09/tutorhub-session/session/repofake"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// fakeBackend accepts bearer tokens it has issued and mints A2, A3... on refresh.
type fakeBackend struct {
	mu       sync.Mutex
	valid    map[string]bool
	refresh  string
	issued   int
	rotate   bool
	hits     map[string]int
	tokens   []string
	bodies   []string

	rejectAll bool

	refreshStatus  int
	refreshGate    chan struct{}
	refreshStarted chan struct{}
	refreshCalls   atomic.Int32

	slowGate    chan struct{}
	slowArrived chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		valid:          map[string]bool{},
		refresh:        "R1",
		issued:         1,
		hits:           map[string]int{},
		refreshStarted: make(chan struct{}, 16),
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/refresh" {
		b.serveRefresh(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	b.hits[r.URL.Path]++
	b.tokens = append(b.tokens, tok)
	b.bodies = append(b.bodies, string(body))
	ok := b.valid[tok] && !b.rejectAll
	b.mu.Unlock()

	if r.URL.Path == "/slow" && b.slowGate != nil {
		b.slowArrived <- struct{}{}
		<-b.slowGate
	}
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path, "token": tok})
}

func (b *fakeBackend) serveRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	b.refreshStarted <- struct{}{}
	if b.refreshGate != nil {
		select {
		case <-b.refreshGate:
		case <-r.Context().Done():
			return
		}
	}
	if b.refreshStatus != 0 {
		w.WriteHeader(b.refreshStatus)
		return
	}

	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	b.mu.Lock()
	defer b.mu.Unlock()
	if in.RefreshToken != b.refresh {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	b.issued++
	access := fmt.Sprintf("A%d", b.issued)
	b.valid[access] = true
	data := map[string]string{"accessToken": access}
	if b.rotate {
		b.refresh = fmt.Sprintf("R%d", b.issued)
		data["refreshToken"] = b.refresh
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) seenTokens() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tokens...)
}

type testFixture struct {
	backend  *fakeBackend
	server   *httptest.Server
	storage  *sessionrepofake.FakeStorage
	sessions *session.Manager
	metrics  *apiclient.Metrics
	expired  atomic.Int32
	client   *apiclient.Client
}

func setupTestFixture(t *testing.T, options ...apiclient.Option) *testFixture {
	t.Helper()
	f := &testFixture{backend: newFakeBackend(), storage: sessionrepofake.NewFakeStorage()}
	f.server = httptest.NewServer(f.backend)
	t.Cleanup(f.server.Close)

	f.sessions = session.New(f.storage, session.WithLogger(zerolog.Nop()))
	_, err := f.sessions.Hydrate(context.Background())
	require.NoError(t, err)

	f.metrics = apiclient.NewMetrics(prometheus.NewRegistry())
	options = append([]apiclient.Option{
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithMetrics(f.metrics),
		apiclient.WithSessionExpiredHandler(func(error) { f.expired.Add(1) }),
	}, options...)
	f.client, err = apiclient.New(f.server.URL, f.sessions, options...)
	require.NoError(t, err)
	return f
}

func (f *testFixture) login(t *testing.T, access, refresh string) {
	t.Helper()
	user := &users.User{ID: "u1", Email: "p@example.com", Role: users.RoleParent}
	require.NoError(t, f.sessions.Login(user, access, refresh))
}

func (f *testFixture) get(ctx context.Context, path string) (int, error) {
	req, err := f.client.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func TestNew_RequiresAbsoluteBaseURL(t *testing.T) {
	sessions := session.New(sessionrepofake.NewFakeStorage())
	_, err := apiclient.New("/relative", sessions)
	require.Error(t, err)
	_, err = apiclient.New("http://localhost:8080", nil)
	require.Error(t, err)
}

func TestDo_AttachesBearerToken(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")
	f.backend.valid["A1"] = true

	status, err := f.get(context.Background(), "/api/a")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []string{"A1"}, f.backend.seenTokens())
	require.Zero(t, f.backend.refreshCalls.Load())
}

func TestDo_UnauthenticatedRequestIsSentWithoutHeader(t *testing.T) {
	f := setupTestFixture(t)

	status, err := f.get(context.Background(), "/api/a")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, []string{""}, f.backend.seenTokens())
	require.Zero(t, f.backend.refreshCalls.Load())
}

func TestDo_RefreshesAndReplaysAfter401(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")

	status, err := f.get(context.Background(), "/api/a")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	require.Equal(t, []string{"A1", "A2"}, f.backend.seenTokens())
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())

	snap := f.sessions.Snapshot()
	require.Equal(t, "A2", snap.AccessToken)
	require.Equal(t, "R1", snap.RefreshToken)
	require.True(t, snap.IsAuthenticated)

	rec, err := f.storage.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A2", rec.AccessToken)
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues(apiclient.OutcomeSuccess)))
}

func TestDo_StoresRotatedRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.rotate = true
	f.login(t, "A1", "R1")

	_, err := f.get(context.Background(), "/api/a")
	require.NoError(t, err)
	require.Equal(t, "R2", f.sessions.Snapshot().RefreshToken)

	// The rotated token is the one presented next time.
	f.backend.mu.Lock()
	f.backend.valid = map[string]bool{}
	f.backend.mu.Unlock()
	status, err := f.get(context.Background(), "/api/b")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "R3", f.sessions.Snapshot().RefreshToken)
	require.EqualValues(t, 2, f.backend.refreshCalls.Load())
}

func TestDo_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.refreshGate = make(chan struct{})
	f.login(t, "A1", "R1")

	const n = 5
	var g errgroup.Group
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/api/%d", i)
		g.Go(func() error {
			status, err := f.get(context.Background(), path)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return errors.Errorf("%s: status %d", path, status)
			}
			return nil
		})
	}

	<-f.backend.refreshStarted
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.Waiters) == n
	}, 2*time.Second, 5*time.Millisecond)
	close(f.backend.refreshGate)

	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.EqualValues(t, n, testutil.ToFloat64(f.metrics.Replays))
	for i := 0; i < n; i++ {
		require.Equal(t, 2, f.backend.hitCount(fmt.Sprintf("/api/%d", i)))
	}
	require.Equal(t, "A2", f.sessions.Snapshot().AccessToken)
}

func TestDo_ReplayedRequestIsNotRetriedAgain(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.rejectAll = true
	f.login(t, "A1", "R1")

	status, err := f.get(context.Background(), "/api/a")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, 2, f.backend.hitCount("/api/a"))
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.True(t, f.sessions.Snapshot().IsAuthenticated)
}

func TestDo_RefreshFailureExpiresSessionForEveryWaiter(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.refreshGate = make(chan struct{})
	f.backend.refreshStatus = http.StatusForbidden
	f.login(t, "A1", "R1")

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.get(context.Background(), fmt.Sprintf("/api/%d", i))
		}(i)
	}

	<-f.backend.refreshStarted
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.Waiters) == n
	}, 2*time.Second, 5*time.Millisecond)
	close(f.backend.refreshGate)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		var expired *apiclient.SessionExpiredError
		require.ErrorAs(t, err, &expired)
		require.ErrorIs(t, expired.Cause, apiclient.ErrRefreshRejected)
	}
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.Eventually(t, func() bool { return f.expired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, f.sessions.Snapshot().IsAuthenticated)

	rec, err := f.storage.Load(context.Background())
	require.NoError(t, err)
	require.False(t, rec.IsAuthenticated)
	require.Empty(t, rec.AccessToken)
	require.EqualValues(t, 1, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues(apiclient.OutcomeFailure)))
}

func TestDo_RefreshTimeoutIsAFailure(t *testing.T) {
	f := setupTestFixture(t, apiclient.WithRefreshTimeout(50*time.Millisecond))
	f.backend.refreshGate = make(chan struct{})
	t.Cleanup(func() { close(f.backend.refreshGate) })
	f.login(t, "A1", "R1")

	_, err := f.get(context.Background(), "/api/a")
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.Eventually(t, func() bool { return f.expired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, f.sessions.Snapshot().IsAuthenticated)
}

func TestDo_RefreshResponseWithoutAccessTokenIsRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := apiclient.New(srv.URL, f.sessions, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = client.GetJSON(context.Background(), "/api/a", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.ErrorIs(t, err, apiclient.ErrRefreshRejected)
	require.Eventually(t, func() bool { return !f.sessions.Snapshot().IsAuthenticated }, 2*time.Second, 5*time.Millisecond)
}

func TestDo_NetworkErrorLeavesSessionAlone(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")
	f.server.Close()

	_, err := f.get(context.Background(), "/api/a")
	var netErr *apiclient.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, http.MethodGet, netErr.Op)
	require.True(t, f.sessions.Snapshot().IsAuthenticated)
	require.Equal(t, "A1", f.sessions.Snapshot().AccessToken)
}

func TestDo_LogoutDuringRefreshCancelsWaiters(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.refreshGate = make(chan struct{})
	t.Cleanup(func() { close(f.backend.refreshGate) })
	f.login(t, "A1", "R1")

	done := make(chan error, 1)
	go func() {
		_, err := f.get(context.Background(), "/api/a")
		done <- err
	}()

	<-f.backend.refreshStarted
	f.sessions.Logout()

	select {
	case err := <-done:
		require.ErrorIs(t, err, apiclient.ErrStaleSession)
	case <-time.After(2 * time.Second):
		t.Fatal("request was not cancelled by logout")
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues(apiclient.OutcomeStale)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The abandoned refresh must not touch the next session or trigger the expiry handler.
	f.login(t, "B1", "S1")
	snap := f.sessions.Snapshot()
	require.Equal(t, "B1", snap.AccessToken)
	require.Equal(t, "S1", snap.RefreshToken)
	require.Zero(t, f.expired.Load())
}

func TestDo_LateUnauthorizedReplaysWithAlreadyRefreshedToken(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.slowGate = make(chan struct{})
	f.backend.slowArrived = make(chan struct{}, 2)
	f.login(t, "A1", "R1")

	slow := make(chan int, 1)
	go func() {
		status, _ := f.get(context.Background(), "/slow")
		slow <- status
	}()
	<-f.backend.slowArrived

	status, err := f.get(context.Background(), "/api/fast")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	close(f.backend.slowGate)
	require.Equal(t, http.StatusOK, <-slow)
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.Equal(t, 2, f.backend.hitCount("/slow"))
}

func TestDo_ReplaysRequestBody(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")

	var out map[string]string
	err := f.client.PostJSON(context.Background(), "/api/sessions", map[string]string{"subject": "maths"}, &out)
	require.NoError(t, err)
	require.Equal(t, "A2", out["token"])

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	require.Len(t, f.backend.bodies, 2)
	require.Equal(t, f.backend.bodies[0], f.backend.bodies[1])
	require.JSONEq(t, `{"subject":"maths"}`, f.backend.bodies[1])
}

func TestDo_ProactiveRefreshSkipsExpiredToken(t *testing.T) {
	f := setupTestFixture(t, apiclient.WithProactiveRefresh(true))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	f.login(t, expired, "R1")

	status, err := f.get(context.Background(), "/api/a")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []string{"A2"}, f.backend.seenTokens())
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
}

func TestGetJSON_StatusError(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")
	f.backend.valid["A1"] = true
	f.backend.rejectAll = true
	f.backend.refreshStatus = http.StatusInternalServerError

	err := f.client.GetJSON(context.Background(), "/api/a", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)

	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := apiclient.New(srv.URL, f.sessions, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = client.GetJSON(context.Background(), "/missing", nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Contains(t, string(statusErr.Body), "nope")
}

func TestDo_CallOptions(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "A1", "R1")

	status, err := f.get(apiclient.WithoutCredentials(context.Background()), "/auth/login")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	status, err = f.get(apiclient.WithoutRefresh(context.Background()), "/auth/logout")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	require.Equal(t, []string{"", "A1"}, f.backend.seenTokens())
	require.Zero(t, f.backend.refreshCalls.Load())
}

// blockingExpire holds the first Expire call until released.
type blockingExpire struct {
	*session.Manager
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExpire) Expire(gen string) bool {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Manager.Expire(gen)
}

func TestDo_FailedRefreshIsNotRepeatedBeforeLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.refreshStatus = http.StatusForbidden
	f.login(t, "A1", "R1")

	sessions := &blockingExpire{Manager: f.sessions, entered: make(chan struct{}), release: make(chan struct{})}
	var expired atomic.Int32
	client, err := apiclient.New(f.server.URL, sessions,
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithSessionExpiredHandler(func(error) { expired.Add(1) }),
	)
	require.NoError(t, err)

	err = client.GetJSON(context.Background(), "/api/a", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	<-sessions.entered

	// Still logged in with A1 while the logout is pending.
	require.Equal(t, "A1", f.sessions.Snapshot().AccessToken)
	err = client.GetJSON(context.Background(), "/api/b", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.ErrorIs(t, err, apiclient.ErrRefreshRejected)
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())

	close(sessions.release)
	require.Eventually(t, func() bool { return expired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, f.sessions.Snapshot().IsAuthenticated)

	err = client.GetJSON(context.Background(), "/api/c", nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
}

// orderTransport records the paths of requests carrying the given bearer token.
type orderTransport struct {
	bearer string
	mu     sync.Mutex
	paths  []string
}

func (o *orderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("Authorization") == "Bearer "+o.bearer {
		o.mu.Lock()
		o.paths = append(o.paths, r.URL.Path)
		o.mu.Unlock()
	}
	return http.DefaultTransport.RoundTrip(r)
}

func TestDo_ReplaysInArrivalOrder(t *testing.T) {
	transport := &orderTransport{bearer: "A2"}
	f := setupTestFixture(t, apiclient.WithHTTPClient(&http.Client{Transport: transport}))
	f.backend.refreshGate = make(chan struct{})
	f.login(t, "A1", "R1")

	const n = 6
	var g errgroup.Group
	var want []string
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/api/%d", i)
		want = append(want, path)
		g.Go(func() error {
			_, err := f.get(context.Background(), path)
			return err
		})
		if i == 0 {
			<-f.backend.refreshStarted
		}
		require.Eventually(t, func() bool {
			return testutil.ToFloat64(f.metrics.Waiters) == float64(i+1)
		}, 2*time.Second, 5*time.Millisecond)
	}
	close(f.backend.refreshGate)

	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Equal(t, want, transport.paths)
}

// accessOnly is a session holding an access token but no refresh token.
type accessOnly struct {
	expired atomic.Int32
}

func (a *accessOnly) Credentials() session.Credentials {
	return session.Credentials{Generation: "g1", Context: context.Background(), Token: &oauth2.Token{AccessToken: "A1"}}
}

func (a *accessOnly) ApplyRefresh(string, string, string) error { return nil }

func (a *accessOnly) Expire(string) bool { return a.expired.Add(1) == 1 }

func TestDo_MissingRefreshTokenExpiresWithoutCallingServer(t *testing.T) {
	f := setupTestFixture(t)
	sessions := &accessOnly{}
	client, err := apiclient.New(f.server.URL, sessions, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = client.GetJSON(context.Background(), "/api/a", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.ErrorIs(t, err, apiclient.ErrNoRefreshToken)
	require.ErrorIs(t, err, apiclient.ErrRefreshRejected)
	require.Zero(t, f.backend.refreshCalls.Load())
	require.Eventually(t, func() bool { return sessions.expired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}
