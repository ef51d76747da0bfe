package httpx

import (
	"errors"
	"net/http"

	"github.com/registria/registria/internal/shared"
)

// ErrValidation flags malformed request payloads at the transport boundary.
var ErrValidation = errors.New("validation failed")

// RespondError maps classified domain errors to RFC7807 problem responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Submission", err.Error())
	case errors.Is(err, shared.ErrRoleNotRequestable):
		Problem(w, http.StatusUnprocessableEntity, "Role Not Requestable", err.Error())
	case errors.Is(err, shared.ErrInvalidAdminChain):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Admin Chain", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
