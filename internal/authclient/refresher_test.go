package authclient_test

import (
	"testing"

	"github.com/lexling/lexling-auth/internal/authclient"
)

func TestRefresherStartStopLifecycle(t *testing.T) {
	client, _ := newTestClient(t)

	r := authclient.NewRefresher(client, 0, 0, nil)
	r.Start()
	r.Start() // restart replaces the running loop
	r.Stop()
	r.Stop() // second stop is a no-op
}
