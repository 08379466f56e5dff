package httptransport

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/httputil"
)

// vocabParams decodes the namespace/value pair. Values like "Trim/Waste"
// arrive percent-encoded in the path.
func vocabParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	namespace := chi.URLParam(r, "namespace")
	value, err := url.PathUnescape(chi.URLParam(r, "value"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vocabulary value"))
		return "", "", false
	}
	return namespace, value, true
}

func (h *Handler) handleVocabValues(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	values, err := h.vocab.Values(r.Context(), p, chi.URLParam(r, "namespace"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (h *Handler) handleVocabAdd(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	namespace, value, ok := vocabParams(w, r)
	if !ok {
		return
	}
	if err := h.vocab.Add(r.Context(), p, namespace, value); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVocabRemove(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	namespace, value, ok := vocabParams(w, r)
	if !ok {
		return
	}
	if err := h.vocab.Remove(r.Context(), p, namespace, value); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
