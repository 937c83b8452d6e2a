package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/utils"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/validator"
)

// writeServiceError writes err as returned by a service, falling back to a
// 500 with fallback as the message when it carries no AppError.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	if appErr, ok := errors.As(err); ok {
		utils.WriteError(w, appErr)
		return
	}
	utils.WriteError(w, errors.Internal(fallback, err))
}

// decodeAndValidate reads a JSON body into req and validates it. It writes
// the error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, val *validator.Validator, req interface{}) bool {
	if err := utils.DecodeJSON(r, req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			utils.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, errors.ErrCodeBadRequest, "Request body too large")
			return false
		}
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return false
	}
	if errs := val.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", errs))
		return false
	}
	return true
}

const maxJSONBody = 64 << 10
