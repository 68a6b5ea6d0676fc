package authclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/authclient"
)

func TestTransportInjectsAccessToken(t *testing.T) {
	client, fake := newTestClient(t)
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)

	var seen atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	httpc := &http.Client{Transport: authclient.NewTransport(client, nil)}
	res, err := httpc.Get(api.URL + "/api/words")
	require.NoError(t, err)
	res.Body.Close()

	fake.mu.Lock()
	current := fake.accessToken
	fake.mu.Unlock()
	require.Equal(t, "Bearer "+current, seen.Load())
}

func TestTransportRetriesOnceAfterRefresh(t *testing.T) {
	client, fake := newTestClient(t)
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)

	var calls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		fake.mu.Lock()
		current := fake.accessToken
		fake.mu.Unlock()
		atomic.AddInt32(&calls, 1)
		if got != current {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer api.Close()

	// Stale the client's access token; the refresh lineage stays valid.
	fake.mu.Lock()
	fake.accessToken = "rotated-elsewhere"
	fake.mu.Unlock()

	httpc := &http.Client{Transport: authclient.NewTransport(client, nil)}
	res, err := httpc.Get(api.URL + "/api/words")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", string(body))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.True(t, client.Store().State().Authenticated)
}

func TestTransportExpiresAfterSecond401(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.Login(context.Background(), "alice@example.com", "Str0ngpass")
	require.NoError(t, err)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	expired := false
	transport := authclient.NewTransport(client, nil)
	transport.OnAuthExpired = func() { expired = true }

	httpc := &http.Client{Transport: transport}
	res, err := httpc.Get(api.URL + "/api/words")
	require.NoError(t, err)
	res.Body.Close()

	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.True(t, expired)
	require.False(t, client.Store().State().Authenticated)
}
