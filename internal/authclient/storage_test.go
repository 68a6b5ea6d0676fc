package authclient_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/authclient"
	"github.com/lexling/lexling-auth/internal/service"
)

func TestBridgeAdoptsExistingSessionWithoutNetwork(t *testing.T) {
	storage := authclient.NewMemoryStorage()
	require.NoError(t, storage.Save(authclient.State{
		User:          &service.SanitizedUser{ID: 1, Email: "alice@example.com"},
		AccessToken:   "stored-access",
		RefreshToken:  "stored-refresh",
		Authenticated: true,
	}))

	store := authclient.NewStore()
	bridge, err := authclient.NewBridge(store, storage)
	require.NoError(t, err)
	defer bridge.Close()

	state := store.State()
	require.True(t, state.Authenticated)
	require.Equal(t, "stored-access", state.AccessToken)
	require.NotNil(t, state.User)
	require.Equal(t, "alice@example.com", state.User.Email)
}

func TestBridgeSyncsAcrossStores(t *testing.T) {
	storage := authclient.NewMemoryStorage()

	storeA := authclient.NewStore()
	bridgeA, err := authclient.NewBridge(storeA, storage)
	require.NoError(t, err)
	defer bridgeA.Close()

	storeB := authclient.NewStore()
	bridgeB, err := authclient.NewBridge(storeB, storage)
	require.NoError(t, err)
	defer bridgeB.Close()

	// A login in one tab appears in the other.
	storeA.SetAuthenticated(
		service.SanitizedUser{ID: 1, Email: "alice@example.com"},
		service.TokenPair{AccessToken: "a1", RefreshToken: "r1"},
	)
	require.True(t, storeB.State().Authenticated)
	require.Equal(t, "a1", storeB.State().AccessToken)

	// A logout in the other tab clears the first.
	storeB.Clear()
	require.False(t, storeA.State().Authenticated)
	require.Empty(t, storeA.State().AccessToken)
}

func TestBridgeDoesNotEchoOwnWrites(t *testing.T) {
	storage := authclient.NewMemoryStorage()
	store := authclient.NewStore()
	bridge, err := authclient.NewBridge(store, storage)
	require.NoError(t, err)
	defer bridge.Close()

	notifications := 0
	unsub := store.Subscribe(func(authclient.State) { notifications++ })
	defer unsub()

	store.SetAuthenticated(
		service.SanitizedUser{ID: 1, Email: "alice@example.com"},
		service.TokenPair{AccessToken: "a1", RefreshToken: "r1"},
	)

	// One notification for the local set; the storage write must not
	// bounce a second one back through the watcher.
	require.Equal(t, 1, notifications)
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	storage := authclient.NewMemoryStorage()

	_, ok, err := storage.Load()
	require.NoError(t, err)
	require.False(t, ok)

	saved := authclient.State{AccessToken: "a", RefreshToken: "r", Authenticated: true}
	require.NoError(t, storage.Save(saved))

	loaded, ok, err := storage.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, loaded.Equal(saved))

	require.NoError(t, storage.Delete())
	_, ok, err = storage.Load()
	require.NoError(t, err)
	require.False(t, ok)
}
