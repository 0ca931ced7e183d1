// Package api exposes the watchers over HTTP: a JSON surface for snapshots
// and item writes, and a websocket change stream.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/b0czek/linuxcnc-node-sub000/internal/auth"
	"github.com/b0czek/linuxcnc-node-sub000/internal/hal"
	"github.com/b0czek/linuxcnc-node-sub000/internal/middleware"
	"github.com/b0czek/linuxcnc-node-sub000/internal/position"
	"github.com/b0czek/linuxcnc-node-sub000/internal/status"
	"github.com/b0czek/linuxcnc-node-sub000/internal/stream"
)

// Dependencies carries the services the router wires into handlers
type Dependencies struct {
	Auth       *auth.Service
	Status     *status.Watcher
	HalWatcher *hal.Watcher
	Component  *hal.Component
	Position   *position.Logger
	Hub        *stream.Hub
	Logger     *slog.Logger
}

// NewRouter creates and configures the API router
func NewRouter(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	healthHandler := NewHealthHandler()
	authHandler := NewAuthHandler(deps.Auth)
	statusHandler := NewStatusHandler(deps.Status)
	halHandler := NewHalHandler(deps.HalWatcher, deps.Component)
	positionHandler := NewPositionHandler(deps.Position)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ws", deps.Hub.ServeWs)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoint
		r.Post("/login", authHandler.Login)

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			r.Route("/status", func(r chi.Router) {
				r.Get("/", statusHandler.Get)
				r.Put("/interval", statusHandler.SetInterval)
			})

			r.Route("/hal", func(r chi.Router) {
				r.Get("/snapshot", halHandler.Snapshot)
				r.Get("/items", halHandler.Items)
				r.Put("/items/{suffix}", halHandler.SetItem)
			})

			r.Route("/position", func(r chi.Router) {
				r.Get("/", positionHandler.Current)
				r.Get("/history", positionHandler.History)
				r.Get("/delta", positionHandler.Delta)
				r.Post("/start", positionHandler.Start)
				r.Post("/stop", positionHandler.Stop)
				r.Post("/clear", positionHandler.Clear)
			})
		})
	})

	return r
}
