// Package gate decides what a protected view may show for the current session.
package gate

import (
	"context"

	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int

const (
	// StateHydrating means the session has not been loaded yet. Nothing is decided.
	StateHydrating State = iota
	StateUnauthenticated
	StateRoleMatch
	StateRoleMismatch
)

func (s State) String() string {
	switch s {
	case StateHydrating:
		return "hydrating"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRoleMatch:
		return "role-match"
	case StateRoleMismatch:
		return "role-mismatch"
	}
	return "unknown"
}

// Decision is the outcome of one evaluation. Redirect is set for the two redirecting states.
type Decision struct {
	State    State
	Redirect string
}

// Render reports whether the protected content may be shown.
func (d Decision) Render() bool {
	return d.State == StateRoleMatch
}

// StateSource is the read side of session.Manager.
type StateSource interface {
	IsHydrated() bool
	Hydrated() <-chan struct{}
	Snapshot() session.Session
	Subscribe() (<-chan session.Session, func())
}

var _ StateSource = (*session.Manager)(nil)

type Gate struct {
	sessions StateSource
	routes   Routes
	logger   zerolog.Logger
}

type Option func(*Gate)

func WithRoutes(routes Routes) Option {
	return func(g *Gate) {
		g.routes = routes
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func New(sessions StateSource, options ...Option) *Gate {
	g := &Gate{
		sessions: sessions,
		routes:   DefaultRoutes(),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *Gate) Routes() Routes {
	return g.routes
}

// Evaluate decides without blocking. An empty required role admits any authenticated user.
func (g *Gate) Evaluate(required users.Role) Decision {
	if !g.sessions.IsHydrated() {
		return Decision{State: StateHydrating}
	}
	return g.decide(g.sessions.Snapshot(), required)
}

func (g *Gate) decide(s session.Session, required users.Role) Decision {
	if !s.IsAuthenticated || s.User == nil {
		return Decision{State: StateUnauthenticated, Redirect: g.routes.Login}
	}
	if required != "" && s.User.Role != required {
		return Decision{State: StateRoleMismatch, Redirect: g.routes.Home(s.User.Role)}
	}
	return Decision{State: StateRoleMatch}
}

// Await waits for hydration to finish, then evaluates. It never returns StateHydrating
// without an error.
func (g *Gate) Await(ctx context.Context, required users.Role) (Decision, error) {
	select {
	case <-g.sessions.Hydrated():
	case <-ctx.Done():
		return Decision{State: StateHydrating}, ctx.Err()
	}
	return g.Evaluate(required), nil
}

// Watch emits the current decision and then every change to it until ctx is done,
// when the channel is closed.
func (g *Gate) Watch(ctx context.Context, required users.Role) <-chan Decision {
	changes, unsubscribe := g.sessions.Subscribe()
	out := make(chan Decision, 1)

	go func() {
		defer close(out)
		defer unsubscribe()

		hydrated := g.sessions.Hydrated()
		var last *Decision
		for {
			d := g.Evaluate(required)
			if last == nil || d != *last {
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
				last = &d
			}

			select {
			case <-ctx.Done():
				return
			case <-hydrated:
				hydrated = nil
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}
