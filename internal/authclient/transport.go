package authclient

import (
	"net/http"
)

// Transport is an http.RoundTripper that injects the current access
// token and, on a 401, refreshes once and replays the request. A second
// 401 clears the session and fires OnAuthExpired.
type Transport struct {
	Base   http.RoundTripper
	Client *Client

	// OnAuthExpired runs after the retried request still came back 401
	// and the session was cleared.
	OnAuthExpired func()
}

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(client *Client, base http.RoundTripper) *Transport {
	return &Transport{Base: base, Client: client}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	res, err := base.RoundTrip(t.authorize(req))
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}

	// Requests with a body cannot be replayed without GetBody.
	if req.Body != nil && req.GetBody == nil {
		return res, nil
	}

	if _, refreshErr := t.Client.Refresh(req.Context()); refreshErr != nil {
		t.expire()
		return res, nil
	}
	res.Body.Close()

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, bodyErr
		}
		retry.Body = body
	}

	res, err = base.RoundTrip(t.authorize(retry))
	if err == nil && res.StatusCode == http.StatusUnauthorized {
		t.expire()
	}
	return res, err
}

func (t *Transport) authorize(req *http.Request) *http.Request {
	state := t.Client.Store().State()
	if state.AccessToken == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+state.AccessToken)
	return out
}

func (t *Transport) expire() {
	t.Client.Store().Clear()
	if t.OnAuthExpired != nil {
		t.OnAuthExpired()
	}
}
