package httptransport

import (
	"net/http"
	"strconv"

	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
)

func (h *Handler) handleQueryRollups(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	storeID, _ := strconv.ParseInt(q.Get("store_id"), 10, 64)

	f, err := factFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.rollups.Query(r.Context(), p, storeID, f.DateFrom, f.DateTo)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"store_id":    snap.StoreID,
		"daily":       snap.Daily,
		"by_category": snap.ByCategory,
		"computed_at": snap.ComputedAt,
	})
}

func (h *Handler) handleRefreshRollups(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var scope *int64
	if v := r.URL.Query().Get("store_id"); v != "" {
		storeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.Validation("store_id", "must be an integer"))
			return
		}
		scope = &storeID
	}

	result, err := h.rollups.Refresh(r.Context(), p, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
