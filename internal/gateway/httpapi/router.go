package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/health"
)

// Deps carries everything the gateway router mounts.
type Deps struct {
	Auth   *AuthHandlers
	Health *health.Handler
	// WS is the upgraded session endpoint.
	WS http.Handler
	Lg zerolog.Logger
}

// NewRouter assembles the gateway HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(deps.Lg))

	r.Get("/healthz", deps.Health.Live)
	r.Get("/readyz", deps.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", deps.Auth.Register)
		r.Post("/login", deps.Auth.Login)
		r.Post("/refresh", deps.Auth.Refresh)
		r.Post("/logout", deps.Auth.Logout)
		r.Get("/me", deps.Auth.Me)
	})

	if deps.WS != nil {
		r.Handle("/ws/v1/connect", deps.WS)
	}

	return r
}
