// Package httputil centralizes JSON encoding and domain-error translation for
// HTTP handlers so every endpoint returns the same error envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "shrinktrack/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:        http.StatusBadRequest,
	dErrors.CodeUnauthorized:      http.StatusUnauthorized,
	dErrors.CodeForbidden:         http.StatusForbidden,
	dErrors.CodeValidation:        http.StatusUnprocessableEntity,
	dErrors.CodeInvalidVocabulary: http.StatusUnprocessableEntity,
	dErrors.CodeNotFound:          http.StatusNotFound,
	dErrors.CodeConflict:          http.StatusConflict,
	dErrors.CodeAuditFailure:      http.StatusInternalServerError,
	dErrors.CodeInternal:          http.StatusInternalServerError,
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into the JSON error envelope. Internal
// and audit failures omit the description so infrastructure detail never
// leaks to clients; everything else carries the message (policy denials in
// particular must tell the caller why).
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal && code != dErrors.CodeAuditFailure {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Description = de.Message
		}
	}
	WriteJSON(w, ToHTTPStatus(code), body)
}

// WriteJSON encodes v with the given status. Encoding failures are ignored;
// the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes the request body into T, writing a bad_request envelope
// on failure. The bool result tells the handler whether to continue.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "malformed request body", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed JSON body"))
		return v, false
	}
	return v, true
}
