// Package web assembles the gin engine: ambient middleware, probes, metrics
// and the versioned API behind the gatekeeper.
package web

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logicv1 "github.com/duynhne/session-service/internal/logic/v1"
	v1 "github.com/duynhne/session-service/internal/web/v1"
	"github.com/duynhne/session-service/middleware"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the HTTP handler. Probes and /metrics sit outside the
// API group; every /api/v1 route not marked public requires a live access
// token.
func NewRouter(auth *logicv1.AuthService, store Pinger, shuttingDown *atomic.Bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if shuttingDown != nil && shuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		if store != nil {
			if err := store.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gk := middleware.NewGatekeeper(auth.Sessions())
	apiV1 := r.Group("/api/v1")
	apiV1.Use(gk.Middleware())
	v1.NewHandler(auth).RegisterRoutes(apiV1, gk)

	return r
}
