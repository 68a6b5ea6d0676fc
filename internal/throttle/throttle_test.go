package throttle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/domain"
	"github.com/lexling/lexling-auth/internal/throttle"
)

type countingAttemptRepo struct {
	failures map[string]int // keyed by email and by ip
	err      error
}

func (r *countingAttemptRepo) Record(ctx context.Context, attempt domain.AuthAttempt) error {
	return nil
}

func (r *countingAttemptRepo) CountRecentFailures(ctx context.Context, email, ip string, since time.Time) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.failures[email] + r.failures[ip], nil
}

func TestAdmitBelowCeiling(t *testing.T) {
	repo := &countingAttemptRepo{failures: map[string]int{"alice@example.com": 14}}
	th := throttle.New(repo, 15*time.Minute, 15, nil)
	require.True(t, th.Admit(context.Background(), "alice@example.com", "10.0.0.1"))
}

func TestDenyAtCeiling(t *testing.T) {
	repo := &countingAttemptRepo{failures: map[string]int{"alice@example.com": 15}}
	th := throttle.New(repo, 15*time.Minute, 15, nil)
	require.False(t, th.Admit(context.Background(), "alice@example.com", "10.0.0.1"))
}

func TestDenyByIPAlone(t *testing.T) {
	// A spray from one IP across many emails is still throttled.
	repo := &countingAttemptRepo{failures: map[string]int{"10.0.0.1": 20}}
	th := throttle.New(repo, 15*time.Minute, 15, nil)
	require.False(t, th.Admit(context.Background(), "nobody@example.com", "10.0.0.1"))
}

func TestAdmitOnCountError(t *testing.T) {
	repo := &countingAttemptRepo{err: errors.New("db down")}
	th := throttle.New(repo, 15*time.Minute, 15, nil)
	require.True(t, th.Admit(context.Background(), "alice@example.com", "10.0.0.1"))
}
