package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shrinktrack/internal/directory/models"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
)

func principalIDParam(w http.ResponseWriter, r *http.Request) (domain.PrincipalID, bool) {
	id, err := domain.ParsePrincipalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid principal id"))
		return domain.PrincipalID{}, false
	}
	return id, true
}

func (h *Handler) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	principals, err := h.directory.List(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"principals": principals})
}

func (h *Handler) handleGetPrincipal(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	principal, err := h.directory.Get(r.Context(), p, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principal)
}

type createPrincipalRequest struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	StoreID int64  `json:"store_id"`
}

func (h *Handler) handleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[createPrincipalRequest](w, r, h.logger)
	if !ok {
		return
	}
	principal, err := h.directory.Create(r.Context(), p, req.Email, models.Role(req.Role), req.StoreID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, principal)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[setRoleRequest](w, r, h.logger)
	if !ok {
		return
	}
	principal, err := h.directory.SetRole(r.Context(), p, id, models.Role(req.Role))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principal)
}

type setStoreRequest struct {
	StoreID int64 `json:"store_id"`
}

func (h *Handler) handleSetStore(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[setStoreRequest](w, r, h.logger)
	if !ok {
		return
	}
	principal, err := h.directory.SetStore(r.Context(), p, id, req.StoreID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principal)
}

func (h *Handler) handleDeactivatePrincipal(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	principal, err := h.directory.Deactivate(r.Context(), p, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principal)
}

func (h *Handler) handleReactivatePrincipal(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := principalIDParam(w, r)
	if !ok {
		return
	}
	principal, err := h.directory.Reactivate(r.Context(), p, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, principal)
}
