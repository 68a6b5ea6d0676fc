// Package throttle decides whether a login attempt is admitted, based on
// recent failed attempts for the same email or source IP. It only reads;
// the orchestrator records the attempt rows the counts are built from.
package throttle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lexling/lexling-auth/internal/repository"
)

// Throttle counts failures within a rolling window against a fixed ceiling.
// Keying on email OR ip blocks both a distributed attack on one account
// and a single-IP spray across many accounts.
type Throttle struct {
	attempts repository.AttemptRepository
	window   time.Duration
	max      int
	logger   *zap.Logger
}

// New constructs a Throttle. Non-positive knobs fall back to 15 minutes
// and 15 attempts.
func New(attempts repository.AttemptRepository, window time.Duration, max int, logger *zap.Logger) *Throttle {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if max < 1 {
		max = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{attempts: attempts, window: window, max: max, logger: logger}
}

// Admit reports whether the attempt may proceed. A count at or above the
// ceiling denies admission. Counting errors admit the attempt: losing the
// audit signal must not lock every user out.
func (t *Throttle) Admit(ctx context.Context, email, ip string) bool {
	since := time.Now().Add(-t.window)
	count, err := t.attempts.CountRecentFailures(ctx, email, ip, since)
	if err != nil {
		t.logger.Warn("throttle count failed, admitting",
			zap.String("email", email),
			zap.String("ip", ip),
			zap.Error(err),
		)
		return true
	}
	return count < t.max
}
