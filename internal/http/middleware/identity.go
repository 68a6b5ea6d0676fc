package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lexling/lexling-auth/internal/sso"
	"github.com/lexling/lexling-auth/internal/token"
)

// Cookie names shared between the auth handlers and identity resolution.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Headers injected onto resolved requests. Downstream handlers trust them
// unconditionally, so the middleware strips any inbound values first.
const (
	HeaderUserID    = "x-user-id"
	HeaderUserEmail = "x-user-email"
)

// Identity is a resolved caller.
type Identity struct {
	UserID string
	Email  string
}

// IdentityResolver attempts one authentication scheme against the request.
// A (nil, nil) return means the scheme is absent or invalid and the next
// resolver should be tried.
type IdentityResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Identity, error)
}

// SSOSessionResolver resolves the external SSO session cookie against the
// shared session store. It runs first so OAuth users never touch the
// self-issued token path.
type SSOSessionResolver struct {
	Store      sso.SessionStore
	CookieName string
}

func (r *SSOSessionResolver) Resolve(ctx context.Context, req *http.Request) (*Identity, error) {
	cookie, err := req.Cookie(r.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	session, err := r.Store.Get(ctx, cookie.Value)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.ActiveAt(time.Now()) || session.UserID == "" {
		return nil, nil
	}
	return &Identity{UserID: session.UserID, Email: session.Email}, nil
}

// AccessTokenResolver resolves a self-issued access token from the
// Authorization header or the access token cookie.
type AccessTokenResolver struct {
	Tokens *token.Issuer
}

func (r *AccessTokenResolver) Resolve(ctx context.Context, req *http.Request) (*Identity, error) {
	raw := BearerToken(req)
	if raw == "" {
		if cookie, err := req.Cookie(AccessTokenCookie); err == nil {
			raw = cookie.Value
		}
	}
	if raw == "" {
		return nil, nil
	}
	claims, err := r.Tokens.VerifyAccess(raw)
	if err != nil {
		return nil, nil
	}
	return &Identity{UserID: formatID(claims.UserID), Email: claims.Email}, nil
}

// IdentityOptions configures path classification for ResolveIdentity.
type IdentityOptions struct {
	// SkipPrefixes are routes that protect themselves (the auth API).
	SkipPrefixes []string
	// PublicPaths pass through without resolution.
	PublicPaths []string
	// APIPrefixes get a 401 instead of a login redirect when unresolved.
	APIPrefixes []string
	// LoginPath is the redirect target for unresolved page requests.
	LoginPath string
}

// ResolveIdentity is the edge middleware: it tries each resolver in order,
// injects the resolved identity as trusted headers, and blocks or
// redirects unresolved requests before they reach any handler. Every
// scheme is tried on every request; which one a user authenticated with is
// never cached.
func ResolveIdentity(resolvers []IdentityResolver, opts IdentityOptions, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		for _, prefix := range opts.SkipPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}
		for _, public := range opts.PublicPaths {
			if path == public {
				c.Next()
				return
			}
		}

		// Inbound copies of the trusted headers are always attacker
		// controlled at this point.
		c.Request.Header.Del(HeaderUserID)
		c.Request.Header.Del(HeaderUserEmail)

		for _, resolver := range resolvers {
			identity, err := resolver.Resolve(c.Request.Context(), c.Request)
			if err != nil {
				logger.Warn("identity resolver failed", zap.String("path", path), zap.Error(err))
				continue
			}
			if identity != nil {
				c.Request.Header.Set(HeaderUserID, identity.UserID)
				c.Request.Header.Set(HeaderUserEmail, identity.Email)
				c.Next()
				return
			}
		}

		for _, prefix := range opts.APIPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "InvalidToken",
					"message": "Authentication required.",
				})
				return
			}
		}

		returnTo := path
		if c.Request.URL.RawQuery != "" {
			returnTo = returnTo + "?" + c.Request.URL.RawQuery
		}
		c.Redirect(http.StatusFound, opts.LoginPath+"?returnTo="+url.QueryEscape(returnTo))
		c.Abort()
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
