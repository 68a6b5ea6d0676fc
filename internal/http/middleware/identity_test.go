package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/http/middleware"
	"github.com/lexling/lexling-auth/internal/sso"
	"github.com/lexling/lexling-auth/internal/token"
)

type memorySessionStore struct {
	sessions map[string]sso.Session
}

func (m *memorySessionStore) Get(ctx context.Context, tok string) (*sso.Session, error) {
	if s, ok := m.sessions[tok]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memorySessionStore) Save(ctx context.Context, s sso.Session, ttl time.Duration) error {
	m.sessions[s.Token] = s
	return nil
}

func (m *memorySessionStore) Delete(ctx context.Context, tok string) error {
	delete(m.sessions, tok)
	return nil
}

func newTestRouter(t *testing.T, issuer *token.Issuer, store sso.SessionStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	resolvers := []middleware.IdentityResolver{
		&middleware.SSOSessionResolver{Store: store, CookieName: "lexling_sso_session"},
		&middleware.AccessTokenResolver{Tokens: issuer},
	}
	opts := middleware.IdentityOptions{
		SkipPrefixes: []string{"/auth/", "/healthz"},
		PublicPaths:  []string{"/", "/login", "/register"},
		APIPrefixes:  []string{"/api/"},
		LoginPath:    "/login",
	}

	r := gin.New()
	r.Use(middleware.ResolveIdentity(resolvers, opts, nil))
	echo := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId": c.Request.Header.Get("x-user-id"),
			"email":  c.Request.Header.Get("x-user-email"),
		})
	}
	r.GET("/api/words", echo)
	r.GET("/dictionary", echo)
	r.GET("/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func newIssuer() *token.Issuer {
	return token.NewIssuer([]byte("access-secret-0123456789abcdef0123"), []byte("refresh-secret-0123456789abcdef0123"), 15*time.Minute, time.Hour)
}

func TestUnresolvedAPIRequestGets401(t *testing.T) {
	r := newTestRouter(t, newIssuer(), &memorySessionStore{sessions: map[string]sso.Session{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/words", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "InvalidToken")
}

func TestUnresolvedPageRedirectsToLogin(t *testing.T) {
	r := newTestRouter(t, newIssuer(), &memorySessionStore{sessions: map[string]sso.Session{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dictionary?list=7", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login?returnTo=%2Fdictionary%3Flist%3D7", w.Header().Get("Location"))
}

func TestAccessTokenResolvesIdentity(t *testing.T) {
	issuer := newIssuer()
	r := newTestRouter(t, issuer, &memorySessionStore{sessions: map[string]sso.Session{}})

	access, err := issuer.IssueAccess(token.AccessClaims{UserID: 42, Email: "alice@example.com"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/words", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"userId":"42"`)
	require.Contains(t, w.Body.String(), `"email":"alice@example.com"`)
}

func TestAccessTokenCookieResolvesIdentity(t *testing.T) {
	issuer := newIssuer()
	r := newTestRouter(t, issuer, &memorySessionStore{sessions: map[string]sso.Session{}})

	access, err := issuer.IssueAccess(token.AccessClaims{UserID: 7, Email: "bob@example.com"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/words", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: access})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"userId":"7"`)
}

func TestSSOSessionWinsOverAccessToken(t *testing.T) {
	issuer := newIssuer()
	store := &memorySessionStore{sessions: map[string]sso.Session{
		"sso-token": {Token: "sso-token", UserID: "99", Email: "sso@example.com", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	r := newTestRouter(t, issuer, store)

	access, err := issuer.IssueAccess(token.AccessClaims{UserID: 42, Email: "alice@example.com"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/words", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.AddCookie(&http.Cookie{Name: "lexling_sso_session", Value: "sso-token"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"userId":"99"`)
}

func TestExpiredSSOSessionFallsThrough(t *testing.T) {
	issuer := newIssuer()
	store := &memorySessionStore{sessions: map[string]sso.Session{
		"sso-token": {Token: "sso-token", UserID: "99", Email: "sso@example.com", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	r := newTestRouter(t, issuer, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/words", nil)
	req.AddCookie(&http.Cookie{Name: "lexling_sso_session", Value: "sso-token"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSpoofedIdentityHeadersAreStripped(t *testing.T) {
	issuer := newIssuer()
	r := newTestRouter(t, issuer, &memorySessionStore{sessions: map[string]sso.Session{}})

	access, err := issuer.IssueAccess(token.AccessClaims{UserID: 42, Email: "alice@example.com"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/words", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("x-user-id", "1")
	req.Header.Set("x-user-email", "attacker@example.com")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"userId":"42"`)
	require.Contains(t, w.Body.String(), `"email":"alice@example.com"`)
}

func TestAuthRoutesAreSkipped(t *testing.T) {
	r := newTestRouter(t, newIssuer(), &memorySessionStore{sessions: map[string]sso.Session{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
