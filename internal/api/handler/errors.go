package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/governance"
)

var kindStatus = map[governance.Kind]int{
	governance.KindNotFound:        http.StatusNotFound,
	governance.KindConflict:        http.StatusConflict,
	governance.KindForbidden:       http.StatusForbidden,
	governance.KindInvalidState:    http.StatusUnprocessableEntity,
	governance.KindUnauthenticated: http.StatusUnauthorized,
	governance.KindUnavailable:     http.StatusServiceUnavailable,
}

// StatusFor maps a governance error to its HTTP status.
func StatusFor(err error) int {
	if s, ok := kindStatus[governance.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// renderGovernanceError writes err as a JSON:API error. The reason becomes
// the error code; infrastructure detail never reaches the client.
func renderGovernanceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := StatusFor(err)
	obj := jsonapi.ErrorObject{
		Status: http.StatusText(status),
		Code:   governance.ReasonOf(err),
		Title:  http.StatusText(status),
	}
	var gerr *governance.Error
	if errors.As(err, &gerr) && gerr.Status != "" {
		obj.Meta = jsonapi.Meta{"status": gerr.Status}
	}
	if governance.KindOf(err) == governance.KindUnavailable {
		log.ErrorContext(r.Context(), "governance request failed", "path", r.URL.Path, "err", err)
		obj.Code = "unavailable"
		obj.Detail = "the service is temporarily unavailable"
	}
	jsonapi.RenderErrors(w, status, []jsonapi.ErrorObject{obj})
}

func renderBadBody(w http.ResponseWriter, err error) {
	jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", err.Error())
}

func renderMissing(w http.ResponseWriter, field string) {
	jsonapi.RenderErrors(w, http.StatusUnprocessableEntity, []jsonapi.ErrorObject{{
		Status: http.StatusText(http.StatusUnprocessableEntity),
		Code:   "missing_field",
		Title:  "Unprocessable Entity",
		Detail: field + " is required",
		Source: &jsonapi.ErrorSource{Pointer: "/" + field},
	}})
}
