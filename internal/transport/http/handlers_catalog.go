package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shrinktrack/internal/catalog"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
)

func entryIDParam(w http.ResponseWriter, r *http.Request) (domain.EntryID, bool) {
	id, err := domain.ParseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid catalog entry id"))
		return domain.EntryID{}, false
	}
	return id, true
}

func (h *Handler) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	entries, err := h.catalog.List(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type createEntryRequest struct {
	Category    string  `json:"category"`
	CutName     string  `json:"cut_name"`
	ProductType string  `json:"product_type"`
	SKU         *string `json:"upc_sku,omitempty"`
	GradeSpec   *string `json:"grade_spec,omitempty"`
}

func (h *Handler) handleCreateCatalogEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[createEntryRequest](w, r, h.logger)
	if !ok {
		return
	}
	entry, err := h.catalog.Create(r.Context(), p, req.Category, req.CutName, req.ProductType, req.SKU, req.GradeSpec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

type updateEntryRequest struct {
	SKU       *string `json:"upc_sku,omitempty"`
	GradeSpec *string `json:"grade_spec,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

func (h *Handler) handleUpdateCatalogEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[updateEntryRequest](w, r, h.logger)
	if !ok {
		return
	}
	entry, err := h.catalog.Update(r.Context(), p, id, catalog.EntryUpdate{
		SKU:       req.SKU,
		GradeSpec: req.GradeSpec,
		Active:    req.Active,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

type importCatalogRequest struct {
	Rows []catalog.ImportRow `json:"rows"`
}

func (h *Handler) handleImportCatalog(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[importCatalogRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.catalog.BulkImport(r.Context(), p, req.Rows)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
