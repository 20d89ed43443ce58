/**
 * @description
 * This file sets up the HTTP router using go-chi/chi. It applies the
 * logging, recovery, timeout and CORS middleware, groups the authenticated
 * routes behind the session middleware, and wraps the subscription-protected
 * routes with the access gate.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the chi router and registers all routes.
func NewRouter(h *Handler, loader TeamLoader, sessionSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("KeepSafe API is healthy"))
	})

	// Inbound mail delivery from the provider; authenticated at the
	// provider level, not with a user session.
	r.Post("/email/webhook", h.HandleInboundWebhook)

	// Routes that require an authenticated session.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(sessionSecret))

		r.Route("/subscription", func(r chi.Router) {
			r.Post("/create-checkout-session", h.HandleCreateCheckoutSession)
			r.Post("/create-portal-session", h.HandleCreatePortalSession)
			r.Post("/verify-session", h.HandleVerifySession)
		})
		r.Get("/user/subscription", h.HandleGetSubscription)

		r.Get("/emails", h.HandleListEmails)
		r.Get("/emails/{id}", h.HandleGetEmail)
		r.Delete("/emails/{id}", h.HandleDeleteEmail)
		r.Get("/email/forwarding", h.HandleGetForwardingAddress)
		r.Post("/email/generate-address", h.HandleGenerateAddress)

		// Subscription-gated operations.
		r.Group(func(r chi.Router) {
			r.Use(RequireActiveSubscription(loader))
			r.Post("/email/forward", h.HandleForwardEmail)
		})
	})

	return r
}
