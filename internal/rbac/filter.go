package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor != nil
}

// ActorResolver finds the actor of the current request.
type ActorResolver func(r *http.Request) (Actor, bool)

// AccessFilter rejects requests whose actor lacks the required roles.
type AccessFilter struct {
	Resolve ActorResolver
	Logger  *slog.Logger
	Metrics Recorder
}

// RequireRoles ensures the current actor holds role or any role in more.
// Names reach Actor.HasRoles unchanged; blank names are dropped.
func (f AccessFilter) RequireRoles(role string, more ...string) func(http.Handler) http.Handler {
	required := make([]string, 0, 1+len(more))
	for _, name := range append([]string{role}, more...) {
		if strings.TrimSpace(name) != "" {
			required = append(required, name)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := f.actor(r)
			if !ok || len(required) == 0 || !actor.HasRoles(required...) {
				f.reject(w, r, "role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the gate grants name to the current actor.
func (f AccessFilter) RequirePermission(gate *Gate, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := f.actor(r)
			if !ok || !gate.Can(name, actor) {
				f.reject(w, r, "permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (f AccessFilter) actor(r *http.Request) (Actor, bool) {
	if f.Resolve != nil {
		return f.Resolve(r)
	}
	return ActorFromContext(r.Context())
}

func (f AccessFilter) reject(w http.ResponseWriter, r *http.Request, reason string) {
	if f.Metrics != nil {
		f.Metrics.Denied(reason)
	}
	if f.Logger != nil {
		f.Logger.Debug("authz denied", slog.String("reason", reason), slog.String("path", r.URL.Path))
	}
	http.Error(w, UnauthorizedMessage, http.StatusForbidden)
}
