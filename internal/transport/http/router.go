// Package httptransport is the thin HTTP layer: decode, resolve the
// principal, call the service, translate errors. No business rules live
// here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory"
	"shrinktrack/internal/ledger"
	"shrinktrack/internal/rollup"
	"shrinktrack/internal/vocab"
)

type Handler struct {
	logger     *slog.Logger
	auth       Authenticator
	directory  *directory.Service
	catalog    *catalog.Service
	ledger     *ledger.Service
	vocab      *vocab.Service
	rollups    *rollup.Service
	auditTrail *audit.Service
}

func NewHandler(
	logger *slog.Logger,
	auth Authenticator,
	directorySvc *directory.Service,
	catalogSvc *catalog.Service,
	ledgerSvc *ledger.Service,
	vocabSvc *vocab.Service,
	rollupSvc *rollup.Service,
	auditSvc *audit.Service,
) *Handler {
	return &Handler{
		logger:     logger,
		auth:       auth,
		directory:  directorySvc,
		catalog:    catalogSvc,
		ledger:     ledgerSvc,
		vocab:      vocabSvc,
		rollups:    rollupSvc,
		auditTrail: auditSvc,
	}
}

// NewRouter wires all endpoints. Everything under /api/v1 requires a valid
// bearer token resolving to an active principal.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(h.logger))
	r.Use(RequestScope)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RequireAuth(h.auth, h.directory, h.logger))

		api.Route("/facts", func(fr chi.Router) {
			fr.Post("/", h.handleCreateFact)
			fr.Get("/", h.handleListFacts)
			fr.Get("/recent", h.handleRecentFacts)
			fr.Get("/{id}", h.handleGetFact)
			fr.Patch("/{id}", h.handleUpdateFact)
			fr.Delete("/{id}", h.handleDeleteFact)
			fr.Post("/{id}/corrections", h.handleCreateCorrection)
			fr.Get("/{id}/corrections", h.handleListCorrections)
		})

		api.Route("/catalog", func(cr chi.Router) {
			cr.Get("/", h.handleListCatalog)
			cr.Post("/", h.handleCreateCatalogEntry)
			cr.Patch("/{id}", h.handleUpdateCatalogEntry)
			cr.Post("/import", h.handleImportCatalog)
		})

		api.Route("/principals", func(pr chi.Router) {
			pr.Get("/", h.handleListPrincipals)
			pr.Post("/", h.handleCreatePrincipal)
			pr.Get("/{id}", h.handleGetPrincipal)
			pr.Put("/{id}/role", h.handleSetRole)
			pr.Put("/{id}/store", h.handleSetStore)
			pr.Post("/{id}/deactivate", h.handleDeactivatePrincipal)
			pr.Post("/{id}/reactivate", h.handleReactivatePrincipal)
		})

		api.Route("/vocab", func(vr chi.Router) {
			vr.Get("/{namespace}", h.handleVocabValues)
			vr.Put("/{namespace}/{value}", h.handleVocabAdd)
			vr.Delete("/{namespace}/{value}", h.handleVocabRemove)
		})

		api.Route("/rollups", func(rr chi.Router) {
			rr.Get("/", h.handleQueryRollups)
			rr.Post("/refresh", h.handleRefreshRollups)
		})

		api.Get("/audit", h.handleListAudit)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
