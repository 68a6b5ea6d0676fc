package authclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const minRefreshInterval = time.Minute

// Refresher renews the access token in the background shortly before it
// expires. It only runs while the store holds a session.
type Refresher struct {
	client   *Client
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRefresher schedules a refresh every accessTTL minus margin, floored
// at one minute.
func NewRefresher(client *Client, accessTTL, margin time.Duration, logger *zap.Logger) *Refresher {
	interval := accessTTL - margin
	if interval < minRefreshInterval {
		interval = minRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{client: client, interval: interval, logger: logger}
}

// Start launches the refresh loop. Calling Start twice restarts it.
func (r *Refresher) Start() {
	r.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := r.client.Store().State()
				if !state.Authenticated {
					continue
				}
				if _, err := r.client.Refresh(ctx); err != nil {
					r.logger.Warn("background refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (r *Refresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}
