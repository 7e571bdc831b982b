package pathsec

import (
	"errors"
	"net/http"

	"cover-art-server/internal/httpx/response"
)

// HTTPStatus maps a resolver error to the status the handlers answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsForbidden(err):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidPath):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyFilename), errors.Is(err, ErrInvalidFilename):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandlePathSecurityError writes the JSON error response for err.
func HandlePathSecurityError(w http.ResponseWriter, err error) {
	switch HTTPStatus(err) {
	case http.StatusForbidden:
		response.Forbidden(w)
	case http.StatusNotFound:
		response.NotFound(w)
	case http.StatusBadRequest:
		if errors.Is(err, ErrEmptyFilename) {
			response.BadRequest(w, "No selected file")
			return
		}
		response.BadRequest(w, "Invalid filename")
	default:
		response.InternalServerError(w)
	}
}
