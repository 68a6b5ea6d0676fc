package authclient

import (
	"encoding/json"
	"sync"

	"github.com/lexling/lexling-auth/internal/service"
)

// Storage persists auth state outside the process so multiple clients
// sharing a backend (browser tabs, sibling processes) observe the same
// session. Watch delivers snapshots written by OTHER writers; a storage
// implementation must not echo a writer's own Save back to it.
type Storage interface {
	Load() (State, bool, error)
	Save(State) error
	Delete() error
	Watch(fn func(State)) (cancel func(), err error)
}

// storedState is the serialized shape. The user payload rides along so
// an adopting client can render without a network round trip.
type storedState struct {
	User          *service.SanitizedUser `json:"user,omitempty"`
	AccessToken   string                 `json:"accessToken"`
	RefreshToken  string                 `json:"refreshToken"`
	Authenticated bool                   `json:"authenticated"`
}

// MemoryStorage is an in-process Storage used by tests and by embedders
// that do not need persistence.
type MemoryStorage struct {
	mu       sync.Mutex
	data     []byte
	present  bool
	watchers map[int]func(State)
	next     int
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{watchers: make(map[int]func(State))}
}

func (m *MemoryStorage) Load() (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return State{}, false, nil
	}
	state, err := decodeState(m.data)
	if err != nil {
		return State{}, false, err
	}
	return state, true, nil
}

func (m *MemoryStorage) Save(state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.present = true
	fns := m.watcherList()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
	return nil
}

func (m *MemoryStorage) Delete() error {
	m.mu.Lock()
	m.data = nil
	m.present = false
	fns := m.watcherList()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(State{})
	}
	return nil
}

func (m *MemoryStorage) Watch(fn func(State)) (func(), error) {
	m.mu.Lock()
	id := m.next
	m.next++
	m.watchers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}, nil
}

func (m *MemoryStorage) watcherList() []func(State) {
	fns := make([]func(State), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	return fns
}

func encodeState(state State) ([]byte, error) {
	return json.Marshal(storedState{
		User:          state.User,
		AccessToken:   state.AccessToken,
		RefreshToken:  state.RefreshToken,
		Authenticated: state.Authenticated,
	})
}

func decodeState(data []byte) (State, error) {
	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return State{}, err
	}
	return State{
		User:          stored.User,
		AccessToken:   stored.AccessToken,
		RefreshToken:  stored.RefreshToken,
		Authenticated: stored.Authenticated,
	}, nil
}

// Bridge mirrors a Store into a Storage and adopts external writes back
// into the Store. Adoption happens without any network call: the stored
// snapshot is trusted as-is. Echo is suppressed by comparing snapshots,
// so a Save triggered by the local Store does not loop back through
// Adopt.
type Bridge struct {
	store   *Store
	storage Storage

	unsubStore func()
	unwatch    func()
}

// NewBridge connects store and storage. An existing stored session is
// adopted immediately.
func NewBridge(store *Store, storage Storage) (*Bridge, error) {
	b := &Bridge{store: store, storage: storage}

	if state, ok, err := storage.Load(); err != nil {
		return nil, err
	} else if ok {
		store.Adopt(state)
	}

	b.unsubStore = store.Subscribe(func(state State) {
		if stored, ok, _ := storage.Load(); ok && stored.Equal(state) {
			return
		}
		if !state.Authenticated && state.AccessToken == "" {
			_ = storage.Delete()
			return
		}
		_ = storage.Save(state)
	})

	unwatch, err := storage.Watch(func(state State) {
		store.Adopt(state)
	})
	if err != nil {
		b.unsubStore()
		return nil, err
	}
	b.unwatch = unwatch
	return b, nil
}

// Close detaches the bridge.
func (b *Bridge) Close() {
	if b.unsubStore != nil {
		b.unsubStore()
	}
	if b.unwatch != nil {
		b.unwatch()
	}
}
