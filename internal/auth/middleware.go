// Package auth maps API keys to the principals the hub's state machines
// reason about. Every stateful operation is attributed to a principal; the
// HTTP surface authenticates one with the X-API-Key header.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/MesaPay/hub/internal/ledger"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const contextKeyPrincipal contextKey = "principal"

// Config holds API key authentication configuration.
type Config struct {
	// Enabled controls whether authentication is active. When disabled,
	// the X-API-Key header value itself is taken as the principal: a
	// dev/test convenience, never for production.
	Enabled bool

	// Keys maps API key material to the principal it authenticates.
	Keys map[string]ledger.Principal
}

// Middleware resolves the request's principal from its API key and stores
// it in the context. Requests without a valid key stay anonymous; handlers
// that need a caller reject those themselves.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			var principal ledger.Principal
			if cfg.Enabled {
				principal = cfg.Keys[key]
			} else {
				principal = ledger.Principal(key)
			}

			if principal == "" {
				// Unknown keys stay anonymous rather than erroring, so
				// public endpoints keep working with a stale key.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the authenticated principal, if any.
func CallerFromContext(ctx context.Context) (ledger.Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(ledger.Principal)
	return p, ok && p != ""
}
