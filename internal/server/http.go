// Package server runs the gin engine with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

// HTTPServer serves the configured gin.Engine and drains in-flight
// requests on shutdown.
type HTTPServer struct {
	Engine *gin.Engine
}

func NewHTTPServer(engine *gin.Engine) *HTTPServer {
	engine.HandleMethodNotAllowed = true
	engine.ForwardedByClientIP = true
	return &HTTPServer{Engine: engine}
}

// Run listens on addr until ctx is cancelled, then shuts down with a
// bounded grace period.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Engine,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
