package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/veridian-data/veridian/internal/shared"
)

const exportRateLimit = 10
const exportRateWindow = time.Minute

// MountRoutes registers the ledger query and export endpoints. The
// export route takes an extra guard since exporting needs its own
// permission on top of read access.
func (h *Handler) MountRoutes(r chi.Router, exportGuard func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/", h.handleQuery)
	r.Group(func(gr chi.Router) {
		if exportGuard != nil {
			gr.Use(exportGuard)
		}
		gr.Use(limiter)
		gr.Get("/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "actor:" + strconv.FormatInt(actor.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
