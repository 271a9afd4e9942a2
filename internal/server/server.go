// Package server provides the agent's local status API over Gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/config"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	httpServer *http.Server
}

// NewServer builds the HTTP server. registerHandlerFn receives a router
// group prefixed with /api/v1.
func NewServer(cfg *config.Configuration, registerHandlerFn func(router *gin.RouterGroup)) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(zap.L().Named("http"), time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zap.L().Named("http"), true))

	registerHandlerFn(router.Group("/api/v1"))

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler: router,
		},
	}
}

// Start blocks until the context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.S().Named("server").Infow("status API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
