package handlers

import (
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {

		// public routes
		r.Get("/health", h.HealthHandler)
		r.Post("/card/verify", h.VerifyHandler)
		r.Get("/context/{code}", h.ContextHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Post("/audit/logs/list", h.ListLogsHandler)
			r.Post("/audit/logs/delete", h.DeleteLogsHandler)
			r.Post("/audit/links/list", h.ListLinksHandler)
			r.Post("/audit/links/delete", h.DeleteLinksHandler)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
}

func (h *Handler) InitAuth() {
	var jwtKey = os.Getenv("JWT_SECRET_KEY")
	h.tokenAuth = jwtauth.New("HS256", []byte(jwtKey), nil)

	// The audit routes can delete ledger rows, so the test token is
	// only printed when explicitly asked for.
	if os.Getenv("JWT_DEBUG_TOKEN") != "true" {
		return
	}

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": 8003022,
		"exp":        expirationTime,
	})

	log.Infof("DEBUG: JWT for testing expires soon : %s", tokenString)
}
