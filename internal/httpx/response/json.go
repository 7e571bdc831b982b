package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// JSON writes a JSON response payload with status code. The payload is
// encoded before the header is sent so an encoding failure still yields a
// well-formed 500.
func JSON(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error"}`)
	}
	body = append(body, '\n')

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}
