package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lexling/lexling-auth/internal/config"
	"github.com/lexling/lexling-auth/internal/http/middleware"
	"github.com/lexling/lexling-auth/internal/service"
)

// AuthHandler exposes the credential endpoints.
type AuthHandler struct {
	Auth *service.AuthService
	Cfg  config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, Cfg: cfg}
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.CodeValidationError, "message": "Invalid payload."})
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), service.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, clientInfo(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.setTokenCookies(c, resp.Tokens)
	c.JSON(http.StatusOK, resp)
}

// Register creates an account and opens its first session.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Username        string `json:"username"`
		DisplayName     string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.CodeValidationError, "message": "Invalid payload."})
		return
	}

	resp, err := h.Auth.Register(c.Request.Context(), service.Registration{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Username:        req.Username,
		DisplayName:     req.DisplayName,
	}, clientInfo(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.setTokenCookies(c, resp.Tokens)
	c.JSON(http.StatusCreated, resp)
}

// Refresh rotates the presented refresh token. The body value wins over
// the cookie so non-browser clients can refresh without cookie state.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.ShouldBindJSON(&req)

	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		presented, _ = c.Cookie(middleware.RefreshTokenCookie)
	}
	if presented == "" {
		respondAuthError(c, service.ErrInvalidToken())
		return
	}

	resp, err := h.Auth.Refresh(c.Request.Context(), presented, clientInfo(c))
	if err != nil {
		h.clearTokenCookies(c)
		respondAuthError(c, err)
		return
	}

	h.setTokenCookies(c, resp.Tokens)
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented session. It always reports success and
// always clears the cookies so a half-broken client can still sign out.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.ShouldBindJSON(&req)

	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		presented, _ = c.Cookie(middleware.RefreshTokenCookie)
	}

	h.Auth.Logout(c.Request.Context(), presented)

	h.clearTokenCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}

// Me returns the profile behind an access token.
func (h *AuthHandler) Me(c *gin.Context) {
	access := middleware.BearerToken(c.Request)
	if access == "" {
		access, _ = c.Cookie(middleware.AccessTokenCookie)
	}
	if access == "" {
		respondAuthError(c, service.ErrInvalidToken())
		return
	}

	user, err := h.Auth.Me(c.Request.Context(), access)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Healthz is the liveness probe.
func (h *AuthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": h.Cfg.ServiceName})
}

func (h *AuthHandler) setTokenCookies(c *gin.Context, tokens service.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	h.setCookie(c, middleware.AccessTokenCookie, tokens.AccessToken, int(h.Auth.AccessTTL().Seconds()))
	h.setCookie(c, middleware.RefreshTokenCookie, tokens.RefreshToken, int(h.Auth.RefreshTTL().Seconds()))
}

func (h *AuthHandler) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	h.setCookie(c, middleware.AccessTokenCookie, "", -1)
	h.setCookie(c, middleware.RefreshTokenCookie, "", -1)
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetCookie(name, value, maxAge, "/", h.Cfg.CookieDomain, h.Cfg.Production(), true)
}

func respondAuthError(c *gin.Context, err error) {
	if authErr, ok := err.(*service.AuthError); ok {
		body := gin.H{"error": authErr.Code, "message": authErr.Message}
		if len(authErr.Details) > 0 {
			body["details"] = authErr.Details
		}
		for k, v := range authErr.Meta {
			body[k] = v
		}
		c.JSON(authErr.Status, body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": service.CodeInternalError, "message": "Something went wrong."})
}

func clientInfo(c *gin.Context) service.ClientInfo {
	return service.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
