package response

import (
	"net/http"

	"github.com/getsentry/sentry-go"

	"cover-art-server/internal/sentryx"
)

// Error writes a standard JSON error envelope. Only server-side failures are
// reported; client errors (403/404/400) are expected traffic.
func Error(w http.ResponseWriter, statusCode int, message string) {
	if statusCode >= http.StatusInternalServerError {
		sentryx.CaptureMessage(sentry.LevelError, "http_error status=%d message=%s", statusCode, message)
	}
	JSON(w, statusCode, map[string]string{"error": message})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, "Forbidden")
}

func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "Not found")
}

func TooLarge(w http.ResponseWriter) {
	Error(w, http.StatusRequestEntityTooLarge, "File too large")
}

func InternalServerError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "Internal Server Error")
}
