/**
 * @description
 * This file sets up the HTTP router for the transfer-status-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies standard middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TransferRoutes creates and returns a new router for the transfer status API.
// limiter may be nil; submitLimit <= 0 disables throttling.
func TransferRoutes(h *TransferHandlers, limiter SubmitRateLimiter, submitLimit int) http.Handler {
	r := chi.NewRouter()

	// Standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Change feed polling endpoints. Registered before the wildcard routes so
	// "changes" is never taken for a transfer identifier.
	r.Get("/changes", h.ChangesHandler)
	r.Get("/changes/version", h.VersionHandler)

	r.Group(func(r chi.Router) {
		r.Use(SubmitRateLimit(limiter, submitLimit))
		r.Post("/events", h.SubmitEventHandler)
	})

	r.Get("/", h.ListTransfersHandler)
	r.Get("/{id}", h.GetTransferHandler)
	r.Post("/{id}/recompute", h.RecomputeTransferHandler)

	return r
}
