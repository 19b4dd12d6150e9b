package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veridian-data/veridian/internal/engine"
	"github.com/veridian-data/veridian/internal/platform/httpx"
	"github.com/veridian-data/veridian/internal/shared"
)

// Authorizer is the engine contract the middleware depends on.
type Authorizer interface {
	Evaluate(ctx context.Context, req engine.Request) (engine.Decision, error)
}

// Middleware wires permission checks in front of HTTP handlers. The
// caller identity comes from the actor header set by the gateway; every
// check is audited by the engine like any other evaluation.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Require ensures the actor holds resource.action globally.
func (m Middleware) Require(action, resource string) func(http.Handler) http.Handler {
	return m.require(action, resource, "")
}

// RequireResource ensures the actor holds resource.action on the
// instance named by the URL parameter, allowing resource-scoped grants
// to satisfy the check.
func (m Middleware) RequireResource(action, resource, urlParam string) func(http.Handler) http.Handler {
	return m.require(action, resource, urlParam)
}

func (m Middleware) require(action, resource, urlParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
				return
			}
			req := engine.Request{
				UserID:       actor.UserID,
				Action:       action,
				ResourceType: resource,
			}
			if urlParam != "" {
				req.ResourceID = chi.URLParam(r, urlParam)
			}
			decision, err := m.Authorizer.Evaluate(r.Context(), req)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorization check failed", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !decision.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
