package httptransport

import (
	"net/http"
	"strconv"

	"shrinktrack/internal/audit"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
)

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		Entity: q.Get("entity"),
		Action: audit.Action(q.Get("action")),
	}
	if v := q.Get("actor_id"); v != "" {
		actorID, err := domain.ParsePrincipalID(v)
		if err != nil {
			httputil.WriteError(w, dErrors.Validation("actor_id", "must be a UUID"))
			return
		}
		f.ActorID = &actorID
	}
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			httputil.WriteError(w, dErrors.Validation("from", "must be RFC 3339 or YYYY-MM-DD"))
			return
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			httputil.WriteError(w, dErrors.Validation("to", "must be RFC 3339 or YYYY-MM-DD"))
			return
		}
		f.To = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.Validation("limit", "must be a non-negative integer"))
			return
		}
		f.Limit = limit
	}

	entries, err := h.auditTrail.List(r.Context(), p, f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
