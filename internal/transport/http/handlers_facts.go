package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/ledger"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
)

// principal pulls the authenticated principal or fails the request. The auth
// middleware guarantees it is present on every /api/v1 route.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "principal missing from context despite auth middleware")
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return models.Principal{}, false
	}
	return p, true
}

func factIDParam(w http.ResponseWriter, r *http.Request) (domain.FactID, bool) {
	id, err := domain.ParseFactID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid fact id"))
		return domain.FactID{}, false
	}
	return id, true
}

type createFactRequest struct {
	CatalogEntryID string          `json:"catalog_entry_id"`
	StoreID        int64           `json:"store_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	EventType      string          `json:"event_type"`
	Weight         decimal.Decimal `json:"weight_lbs"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Notes          *string         `json:"notes,omitempty"`
}

func (h *Handler) handleCreateFact(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[createFactRequest](w, r, h.logger)
	if !ok {
		return
	}
	entryID, err := domain.ParseEntryID(req.CatalogEntryID)
	if err != nil {
		httputil.WriteError(w, dErrors.Validation("catalog_entry_id", "must be a UUID"))
		return
	}

	fact, err := h.ledger.CreateFact(r.Context(), p, ledger.CreateFactInput{
		EntryID:    entryID,
		StoreID:    req.StoreID,
		OccurredAt: req.OccurredAt,
		EventType:  req.EventType,
		Weight:     req.Weight,
		UnitCost:   req.UnitCost,
		UnitPrice:  req.UnitPrice,
		Notes:      req.Notes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fact)
}

type updateFactRequest struct {
	CatalogEntryID *string          `json:"catalog_entry_id,omitempty"`
	OccurredAt     *time.Time       `json:"occurred_at,omitempty"`
	EventType      *string          `json:"event_type,omitempty"`
	Weight         *decimal.Decimal `json:"weight_lbs,omitempty"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

func (h *Handler) handleUpdateFact(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := factIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[updateFactRequest](w, r, h.logger)
	if !ok {
		return
	}

	upd := ledger.FactUpdate{
		OccurredAt: req.OccurredAt,
		EventType:  req.EventType,
		Weight:     req.Weight,
		UnitCost:   req.UnitCost,
		UnitPrice:  req.UnitPrice,
		Notes:      req.Notes,
	}
	if req.CatalogEntryID != nil {
		entryID, err := domain.ParseEntryID(*req.CatalogEntryID)
		if err != nil {
			httputil.WriteError(w, dErrors.Validation("catalog_entry_id", "must be a UUID"))
			return
		}
		upd.EntryID = &entryID
	}

	fact, err := h.ledger.UpdateFact(r.Context(), p, id, upd)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fact)
}

func (h *Handler) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := factIDParam(w, r)
	if !ok {
		return
	}
	if err := h.ledger.DeleteFact(r.Context(), p, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetFact(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := factIDParam(w, r)
	if !ok {
		return
	}
	fact, err := h.ledger.GetFact(r.Context(), p, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fact)
}

func (h *Handler) handleListFacts(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	f, err := factFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	facts, err := h.ledger.ListFacts(r.Context(), p, f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (h *Handler) handleRecentFacts(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	storeID, _ := strconv.ParseInt(q.Get("store_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	facts, err := h.ledger.RecentFacts(r.Context(), p, storeID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

type createCorrectionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCreateCorrection(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := factIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeJSON[createCorrectionRequest](w, r, h.logger)
	if !ok {
		return
	}
	corr, err := h.ledger.CreateCorrection(r.Context(), p, id, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, corr)
}

func (h *Handler) handleListCorrections(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := factIDParam(w, r)
	if !ok {
		return
	}
	corrections, err := h.ledger.ListCorrections(r.Context(), p, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"corrections": corrections})
}

func factFilterFromQuery(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	var f ledger.Filter

	if v := q.Get("store_id"); v != "" {
		storeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, dErrors.Validation("store_id", "must be an integer")
		}
		f.StoreID = &storeID
	}
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, dErrors.Validation("from", "must be RFC 3339 or YYYY-MM-DD")
		}
		f.DateFrom = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, dErrors.Validation("to", "must be RFC 3339 or YYYY-MM-DD")
		}
		f.DateTo = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, dErrors.Validation("limit", "must be a non-negative integer")
		}
		f.Limit = limit
	}
	f.Categories = q["category"]
	f.Cuts = q["cut"]
	f.ProductTypes = q["product_type"]
	f.EventTypes = q["event_type"]
	return f, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
