// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package router provides HTTP routing configuration for the status API.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/vrtdev/nexus-api-tools/internal/handler"
	"github.com/vrtdev/nexus-api-tools/internal/pkg/middleware"
	"github.com/vrtdev/nexus-api-tools/internal/types"
)

// Router manages HTTP request routing and handler registration.
type Router struct {
	statusHandler *handler.StatusHandler
}

// New creates a new Router instance with the provided handlers.
func New(statusHandler *handler.StatusHandler) *Router {
	return &Router{
		statusHandler: statusHandler,
	}
}

// Setup initializes the Gin engine with middleware and routes.
// It configures the following middleware in order:
//  1. gin.Logger() - HTTP request logging
//  2. gin.Recovery() - Panic recovery
//  3. CORS - Cross-Origin Resource Sharing
//
// Returns a configured *gin.Engine ready to serve HTTP requests.
func (r *Router) Setup(cfg *types.Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.Listen.AllowedOrigins))

	// Disable trusted proxy feature for security
	engine.SetTrustedProxies(nil)

	r.registerRoutes(engine)

	return engine
}

// registerRoutes registers all API routes under /api/v1 prefix.
// Available endpoints:
//   - GET /health            - Health check
//   - GET /run               - Current run overview with per-state totals
//   - GET /run/actions       - Action list, optionally filtered by state
//   - GET /run/actions/:repo - Action detail including log lines
func (r *Router) registerRoutes(engine *gin.Engine) {
	api := engine.Group("/api/v1")
	{
		api.GET("/health", r.statusHandler.Health)
		api.GET("/run", r.statusHandler.GetRun)
		api.GET("/run/actions", r.statusHandler.ListActions)
		api.GET("/run/actions/:repo", r.statusHandler.GetAction)
	}
}
