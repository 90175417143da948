package server

import (
	"encoding/json"
	"net/http"

	"github.com/lumacrm/luma/internal/routing"
	"github.com/lumacrm/luma/pkg/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAppError maps the apperr taxonomy onto HTTP. Validation failures are
// 422 with the ordered field errors in the envelope; everything the taxonomy
// does not know is a generic 500 without the raw error text.
func writeAppError(w http.ResponseWriter, r *http.Request, rc routing.RouteClass, err error) {
	switch {
	case apperr.IsValidation(err):
		fields := apperr.ValidationFields(err)
		envFields := make([]routing.EnvelopeFieldErr, 0, len(fields))
		for _, f := range fields {
			envFields = append(envFields, routing.EnvelopeFieldErr{Field: f.Field, Reason: f.Reason})
		}
		routing.WriteErrorFields(w, r, rc, http.StatusUnprocessableEntity, "validation_failed", "validation failed", envFields)
	case apperr.IsNotFound(err):
		routing.WriteError(w, r, rc, http.StatusNotFound, "not_found", err.Error())
	case apperr.IsConflict(err):
		routing.WriteError(w, r, rc, http.StatusConflict, "conflict", err.Error())
	case apperr.IsBadRequest(err):
		routing.WriteError(w, r, rc, http.StatusBadRequest, "bad_request", err.Error())
	case apperr.IsIntegrity(err):
		routing.WriteError(w, r, rc, http.StatusInternalServerError, "integrity_error", "storage integrity violation")
	default:
		routing.WriteError(w, r, rc, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
