package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/livewatch/internal/api/response"
)

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many live pages are open.
type SessionCounter interface {
	Len() int
}

// NewHealthHandler returns the handler for GET /api/v1/health, checking
// database and cache connectivity.
func NewHealthHandler(db, cache Pinger, sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		body := map[string]any{
			"status":   "ok",
			"services": checks,
		}
		if sessions != nil {
			body["sessions"] = sessions.Len()
		}
		response.JSON(w, body)
	}
}
