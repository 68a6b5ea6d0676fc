// Package authclient is the Go client for the auth service: a state
// store holding the current user and token pair, an HTTP client for the
// auth endpoints, a transport that retries one 401 after refreshing, and
// a background refresher that renews the access token before it expires.
package authclient

import (
	"sync"

	"github.com/lexling/lexling-auth/internal/service"
)

// State is an immutable snapshot of the client's auth state.
type State struct {
	User          *service.SanitizedUser
	AccessToken   string
	RefreshToken  string
	Authenticated bool
	Err           string
}

// Equal reports whether two snapshots carry the same session. Used to
// suppress echo when mirroring state to external storage.
func (s State) Equal(other State) bool {
	return s.AccessToken == other.AccessToken &&
		s.RefreshToken == other.RefreshToken &&
		s.Authenticated == other.Authenticated &&
		s.Err == other.Err
}

// Store holds auth state and notifies subscribers on every change.
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int
}

// NewStore creates an unauthenticated store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(State))}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetAuthenticated replaces the state with a logged-in session.
func (s *Store) SetAuthenticated(user service.SanitizedUser, tokens service.TokenPair) {
	s.set(State{
		User:          &user,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		Authenticated: true,
	})
}

// Clear resets to the unauthenticated state.
func (s *Store) Clear() {
	s.set(State{})
}

// SetError records a failure without touching an existing session.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	state := s.state
	state.Err = msg
	s.mu.Unlock()
	s.set(state)
}

// Adopt installs a snapshot that arrived from elsewhere, typically the
// storage bridge. No-op when the snapshot matches the current state.
func (s *Store) Adopt(state State) {
	s.mu.Lock()
	if s.state.Equal(state) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.set(state)
}

// Subscribe registers fn for state changes and returns an unsubscribe
// func. fn is called outside the store lock.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) set(state State) {
	s.mu.Lock()
	s.state = state
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
