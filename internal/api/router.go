/**
 * @description
 * This file sets up the HTTP router for the agent service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, CORS, rate limiting, and
 * authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for chi.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions bundles the handlers and cross-cutting dependencies the
// router needs. JWKSURL and Limiter are optional; when empty or nil the
// corresponding middleware is skipped.
type RouterOptions struct {
	Handlers       *AgentHandlers
	Webhook        *WebhookHandler
	JWKSURL        string
	Limiter        *RateLimiter
	AllowedOrigins []string
}

// AgentRoutes creates and returns the router for the agent service.
func AgentRoutes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Agent service is healthy"))
	})

	// Stripe posts here with its own signature scheme, so the webhook stays
	// outside the JWT group and is never rate limited.
	if opts.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/stripe", opts.Webhook)
	}

	r.Post("/auth/callback", opts.Handlers.AuthCallbackHandler)

	r.Route("/agents", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		if opts.JWKSURL != "" {
			r.Use(ClerkAuthMiddleware(opts.JWKSURL))
		}

		r.Post("/", opts.Handlers.CreateAgentHandler)
		r.Post("/unfreeze", opts.Handlers.UnfreezeAgentHandler)
		r.Put("/", opts.Handlers.UpdateAgentHandler)
		r.Delete("/", opts.Handlers.DeleteAgentHandler)
		r.Get("/getByUser/{clerkId}", opts.Handlers.GetAgentsByUserHandler)
		r.Get("/{apiId}/{clerkId}", opts.Handlers.GetAgentByIDHandler)
	})

	return r
}
