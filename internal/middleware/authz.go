package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/carmarket/server/internal/access"
	"github.com/carmarket/server/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Rule describes the permission a route needs.
type Rule struct {
	Action   access.Action
	Resource access.Resource
	// Scope pins evaluation to own or any; empty lets an any grant win.
	Scope access.Scope
	// Target extracts the ID of the record being acted on. Nil means the actor's own ID.
	Target func(*http.Request) string
	Owner  access.Ownership
}

// URLParamTarget reads the target ID from a chi URL parameter.
func URLParamTarget(name string) func(*http.Request) string {
	return func(r *http.Request) string { return chi.URLParam(r, name) }
}

// Authorize gates a route on the evaluator. It must run after AuthMiddleware.
func Authorize(ev *access.Evaluator, m *metrics.Metrics, log *slog.Logger, rule Rule) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			actorID := user.ID.String()
			targetID := actorID
			if rule.Target != nil {
				targetID = rule.Target(r)
			}

			scope, err := ev.Evaluate(r.Context(), access.Request{
				Role:     user.Role,
				Action:   rule.Action,
				Resource: rule.Resource,
				Scope:    rule.Scope,
				ActorID:  actorID,
				TargetID: targetID,
				Owner:    rule.Owner,
			})
			switch {
			case err == nil:
				m.AccessDecision(string(rule.Resource), string(rule.Action), "allow")
			case errors.Is(err, access.ErrNoPermission):
				m.AccessDecision(string(rule.Resource), string(rule.Action), "no_permission")
				respondWithError(w, http.StatusForbidden, "no permission")
				return
			case errors.Is(err, access.ErrNotOwner):
				m.AccessDecision(string(rule.Resource), string(rule.Action), "not_owner")
				respondWithError(w, http.StatusForbidden, "not owner")
				return
			default:
				m.AccessDecision(string(rule.Resource), string(rule.Action), "error")
				log.ErrorContext(r.Context(), "access evaluation failed", "resource", string(rule.Resource), "action", string(rule.Action), "error", err)
				respondWithError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), scopeKey, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetScope returns the scope under which the current request was allowed.
func GetScope(ctx context.Context) (access.Scope, bool) {
	s, ok := ctx.Value(scopeKey).(access.Scope)
	return s, ok
}
