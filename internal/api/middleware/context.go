package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const (
	clientKeyKey contextKey = "client_key"
	adminKey     contextKey = "admin"
)

func setClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyKey, key)
}

// ClientKey identifies the caller for rate limiting: the admin token
// prefix when authenticated, otherwise the remote host.
func ClientKey(r *http.Request) string {
	if key, ok := r.Context().Value(clientKeyKey).(string); ok && key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func setAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

// IsAdmin reports whether the request passed admin authentication.
func IsAdmin(r *http.Request) bool {
	ok, _ := r.Context().Value(adminKey).(bool)
	return ok
}
