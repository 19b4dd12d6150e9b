package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/veridian-data/veridian/internal/audit/http"
	"github.com/veridian-data/veridian/internal/catalog"
	"github.com/veridian-data/veridian/internal/observability"
	"github.com/veridian-data/veridian/internal/rbac"
	"github.com/veridian-data/veridian/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	UsersHandler   *users.Handler
	CatalogHandler *catalog.Handler
	RBACHandler    *rbac.Handler
	AuditHandler   *audithttp.Handler
	Guard          rbac.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Veridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.UsersHandler != nil {
			api.Route("/users", func(ur chi.Router) {
				params.UsersHandler.MountRoutes(ur, params.Guard)
			})
		}
		if params.CatalogHandler != nil {
			api.Route("/datasources", func(cr chi.Router) {
				params.CatalogHandler.MountRoutes(cr, params.Guard)
			})
		}
		if params.RBACHandler != nil {
			api.Route("/rbac", func(rr chi.Router) {
				rr.Use(params.Guard.Require("edit", "rbac"))
				params.RBACHandler.MountRoutes(rr)
			})
		}
		if params.AuditHandler != nil {
			api.Route("/audit", func(ar chi.Router) {
				ar.Use(params.Guard.Require("view", "audit"))
				params.AuditHandler.MountRoutes(ar, params.Guard.Require("export", "audit"))
			})
		}
	})

	return r
}
