package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/livewatch/internal/api/middleware"
	"github.com/kiranshivaraju/livewatch/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	PageHTMLHandler  http.HandlerFunc
	PageJSONHandler  http.HandlerFunc
	ClosePageHandler http.HandlerFunc
	DiagnosticsList  http.HandlerFunc
	SettlementsList  http.HandlerFunc
	SettlementGet    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Pages, rate limited per client
	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/jobs/{jobID}", orNotImplemented(deps.PageHTMLHandler))
		r.Get("/api/v1/jobs/{jobID}/page", orNotImplemented(deps.PageJSONHandler))
		r.Delete("/api/v1/jobs/{jobID}/page", orNotImplemented(deps.ClosePageHandler))
	})

	// Admin routes
	auth := deps.Auth
	if auth == nil {
		auth = mw.NewAuth("")
	}
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/admin/jobs/{jobID}/diagnostics", orNotImplemented(deps.DiagnosticsList))
		r.Get("/api/v1/admin/jobs/{jobID}/settlements", orNotImplemented(deps.SettlementsList))
		r.Get("/api/v1/admin/jobs/{jobID}/settlements/{uniprotID}", orNotImplemented(deps.SettlementGet))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
