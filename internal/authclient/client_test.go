package authclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/authclient"
	"github.com/lexling/lexling-auth/internal/service"
)

// fakeAuthServer speaks just enough of the auth protocol for the client:
// a fixed credential pair, rotating refresh tokens, and /auth/me bound to
// the current access token.
type fakeAuthServer struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	counter      int
	refreshCalls int32

	// refreshGate, when set, blocks the refresh handler until closed so
	// tests can guarantee callers overlap.
	refreshGate chan struct{}
}

func (f *fakeAuthServer) issue() service.TokenPair {
	f.counter++
	f.accessToken = "access-" + strings.Repeat("x", f.counter)
	f.refreshToken = "refresh-" + strings.Repeat("x", f.counter)
	return service.TokenPair{AccessToken: f.accessToken, RefreshToken: f.refreshToken}
}

func (f *fakeAuthServer) user() service.SanitizedUser {
	return service.SanitizedUser{ID: 1, Email: "alice@example.com", DisplayName: "alice", IsActive: true}
}

func (f *fakeAuthServer) handler() http.Handler {
	mux := http.NewServeMux()
	writeAuth := func(w http.ResponseWriter, status int, pair service.TokenPair) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(service.AuthResponse{User: f.user(), Tokens: pair})
	}
	fail := func(w http.ResponseWriter, status int, code string) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": code})
	}

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds service.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		f.mu.Lock()
		defer f.mu.Unlock()
		if creds.Email != "alice@example.com" || creds.Password != "Str0ngpass" {
			fail(w, http.StatusUnauthorized, service.CodeInvalidCredentials)
			return
		}
		writeAuth(w, http.StatusOK, f.issue())
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		atomic.AddInt32(&f.refreshCalls, 1)
		if gate := f.refreshGate; gate != nil {
			<-gate
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if body.RefreshToken == "" || body.RefreshToken != f.refreshToken {
			fail(w, http.StatusUnauthorized, service.CodeSessionNotFound)
			return
		}
		writeAuth(w, http.StatusOK, f.issue())
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Logged out."})
	})

	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		current := f.accessToken
		f.mu.Unlock()
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || got != current {
			fail(w, http.StatusUnauthorized, service.CodeInvalidToken)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]service.SanitizedUser{"user": f.user()})
	})

	return mux
}

func newTestClient(t *testing.T) (*authclient.Client, *fakeAuthServer) {
	t.Helper()
	fake := &fakeAuthServer{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return authclient.NewClient(srv.URL, authclient.NewStore(), srv.Client()), fake
}

func TestLoginPopulatesStore(t *testing.T) {
	client, _ := newTestClient(t)

	resp, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", resp.User.Email)

	state := client.Store().State()
	require.True(t, state.Authenticated)
	require.Equal(t, resp.Tokens.AccessToken, state.AccessToken)
	require.NotNil(t, state.User)
}

func TestLoginFailureSetsError(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Login(context.Background(), "alice@example.com", "wrong")
	var apiErr *authclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, service.CodeInvalidCredentials, apiErr.Code)
	require.False(t, client.Store().State().Authenticated)
}

func TestConcurrentRefreshCollapsesToOneRequest(t *testing.T) {
	client, fake := newTestClient(t)
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)
	atomic.StoreInt32(&fake.refreshCalls, 0)
	gate := make(chan struct{})
	fake.refreshGate = gate

	const callers = 10
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			_, results[i] = client.Refresh(context.Background())
		}(i)
	}
	started.Wait()
	// The first flight is parked on the gate; everyone else has time to
	// join it before the gate opens.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range results {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&fake.refreshCalls))
}

func TestRefreshFailureClearsStore(t *testing.T) {
	client, fake := newTestClient(t)
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)

	// Invalidate server-side so the stored token is stale.
	fake.mu.Lock()
	fake.issue()
	fake.mu.Unlock()

	_, err = client.Refresh(context.Background())
	require.Error(t, err)
	require.False(t, client.Store().State().Authenticated)
}

func TestCheckAuthRefreshesStaleAccessToken(t *testing.T) {
	client, fake := newTestClient(t)
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)

	// Rotate server-side access token but keep the refresh lineage: the
	// client's access token is now stale while its refresh token remains
	// valid only through the fake's current value, so install that.
	fake.mu.Lock()
	fake.accessToken = "rotated-elsewhere"
	fake.mu.Unlock()

	user, err := client.CheckAuth(context.Background())
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.True(t, client.Store().State().Authenticated)
}

func TestLogoutClearsStoreEvenOnServerError(t *testing.T) {
	fake := &fakeAuthServer{}
	mux := http.NewServeMux()
	mux.Handle("/", fake.handler())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/logout" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client := authclient.NewClient(srv.URL, authclient.NewStore(), srv.Client())
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)

	_ = client.Logout(context.Background())
	require.False(t, client.Store().State().Authenticated)
	require.Empty(t, client.Store().State().AccessToken)
}
