package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/lexling/lexling-auth/internal/config"
	"github.com/lexling/lexling-auth/internal/http/handler"
	httpmiddleware "github.com/lexling/lexling-auth/internal/http/middleware"
	"github.com/lexling/lexling-auth/internal/middleware"
	"github.com/lexling/lexling-auth/internal/sso"
	"github.com/lexling/lexling-auth/internal/token"
)

// NewRouter wires Gin routes and middleware. The identity chain guards
// every route except the auth endpoints themselves and the health probe;
// resolved requests continue downstream with the trusted identity headers
// already set.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	tokens *token.Issuer,
	ssoStore sso.SessionStore,
	rateLimiter *middleware.RateLimiter,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	resolvers := []httpmiddleware.IdentityResolver{
		&httpmiddleware.SSOSessionResolver{Store: ssoStore, CookieName: cfg.SSOSessionCookie},
		&httpmiddleware.AccessTokenResolver{Tokens: tokens},
	}
	r.Use(httpmiddleware.ResolveIdentity(resolvers, httpmiddleware.IdentityOptions{
		SkipPrefixes: []string{"/auth/", "/healthz"},
		PublicPaths:  cfg.PublicPaths,
		APIPrefixes:  cfg.APIPrefixes,
		LoginPath:    cfg.LoginPath,
	}, logger))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authHandler.Me)
	}

	r.GET("/healthz", authHandler.Healthz)

	return r
}
