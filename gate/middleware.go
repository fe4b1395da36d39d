package gate

import (
	"context"
	"net/http"

	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/jrsteele09/tutorhub-session/users"
)

type contextKey string

const contextKeySession contextKey = "session"

// SessionFromContext returns the session admitted by Middleware.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(contextKeySession).(session.Session)
	return s, ok
}

// Middleware guards a handler with the gate. It waits for hydration, bounded by the
// request context, and redirects with 303 instead of calling next on any other outcome.
func (g *Gate) Middleware(required users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := g.Await(r.Context(), required); err != nil {
				http.Error(w, "session not ready", http.StatusServiceUnavailable)
				return
			}
			snap := g.sessions.Snapshot()
			d := g.decide(snap, required)
			if !d.Render() {
				g.logger.Debug().Str("path", r.URL.Path).Str("state", d.State.String()).Str("redirect", d.Redirect).Msg("gate redirect")
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeySession, snap)
			next(w, r.WithContext(ctx))
		}
	}
}
