package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/tutorhub-session/token"
	"github.com/jrsteele09/tutorhub-session/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the verified access token claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth validates the Bearer access token. Expired, revoked or malformed tokens get 401
// so clients know to refresh.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tutorhub"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.issuer.Verify(raw)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tutorhub", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid or expired access token")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole must be chained after RequireAuth.
func (s *Server) RequireRole(role users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || claims.Role != role {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next(w, r)
		}
	}
}
