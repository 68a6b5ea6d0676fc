package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lexling/lexling-auth/internal/domain"
)

// MemoryStore is an in-memory implementation of the repository
// interfaces. It backs tests and local development without Postgres.
// All methods are safe for concurrent use; Rotate performs its
// compare-and-swap under the store mutex, so exactly one of two racing
// rotations succeeds, matching the SQL implementation.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]domain.User
	sessions map[int64]domain.Session
	attempts []domain.AuthAttempt
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		users:    make(map[int64]domain.User),
		sessions: make(map[int64]domain.Session),
	}
}

// Stores exposes the store as the repository bundle.
func (m *MemoryStore) Stores() Stores {
	return Stores{
		Users:    memoryUsers{m},
		Sessions: memorySessions{m},
		Attempts: memoryAttempts{m},
	}
}

// WithinTx runs fn against the same store. Memory writes are not
// rolled back on error; tests that need rollback semantics assert on
// the error instead.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(Stores) error) error {
	return fn(m.Stores())
}

type memoryUsers struct{ store *MemoryStore }

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (r memoryUsers) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (r memoryUsers) GetByID(ctx context.Context, id int64) (domain.User, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (r memoryUsers) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		user.ID = m.nextID
		m.nextID++
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	m.users[user.ID] = user
	return user, nil
}

func (r memoryUsers) StampLastLogin(ctx context.Context, userID int64, at time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	m.users[userID] = u
	return nil
}

type memorySessions struct{ store *MemoryStore }

func (r memorySessions) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == 0 {
		session.ID = m.nextID
		m.nextID++
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (r memorySessions) GetByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == refreshToken {
			return s, nil
		}
	}
	return domain.Session{}, ErrNotFound
}

func (r memorySessions) RevokeActiveForDevice(ctx context.Context, userID int64, userAgent, reason string, at time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID && s.UserAgent == userAgent && s.RevokedAt == nil {
			revoked := at
			s.RevokedAt = &revoked
			s.RevokeReason = reason
			m.sessions[id] = s
		}
	}
	return nil
}

func (r memorySessions) Revoke(ctx context.Context, sessionID int64, reason string, at time.Time) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.RevokedAt == nil {
		revoked := at
		s.RevokedAt = &revoked
		s.RevokeReason = reason
		m.sessions[sessionID] = s
	}
	return nil
}

func (r memorySessions) Rotate(ctx context.Context, sessionID int64, current, next string, expiresAt, at time.Time) (bool, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.RevokedAt != nil || s.RefreshToken != current {
		return false, nil
	}
	s.RefreshToken = next
	s.ExpiresAt = expiresAt
	s.LastActiveAt = at
	m.sessions[sessionID] = s
	return true, nil
}

type memoryAttempts struct{ store *MemoryStore }

func (r memoryAttempts) Record(ctx context.Context, attempt domain.AuthAttempt) error {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (r memoryAttempts) CountRecentFailures(ctx context.Context, email, ip string, since time.Time) (int, error) {
	m := r.store
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.attempts {
		if a.Success || a.CreatedAt.Before(since) {
			continue
		}
		if strings.EqualFold(a.Email, email) || (ip != "" && a.IP == ip) {
			count++
		}
	}
	return count, nil
}

// Attempts returns a snapshot of the recorded attempt rows.
func (m *MemoryStore) Attempts() []domain.AuthAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuthAttempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

// SessionByID returns a snapshot of one session row.
func (m *MemoryStore) SessionByID(id int64) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ActiveSessions returns the sessions for a user that are not revoked.
func (m *MemoryStore) ActiveSessions(userID int64) []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			out = append(out, s)
		}
	}
	return out
}
