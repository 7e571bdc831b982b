package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		want   string
	}{
		{name: "forbidden", write: Forbidden, status: http.StatusForbidden, want: "Forbidden"},
		{name: "not found", write: NotFound, status: http.StatusNotFound, want: "Not found"},
		{name: "too large", write: TooLarge, status: http.StatusRequestEntityTooLarge, want: "File too large"},
		{
			name:   "bad request",
			write:  func(w http.ResponseWriter) { BadRequest(w, "No selected file") },
			status: http.StatusBadRequest,
			want:   "No selected file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("Content-Type = %q", ct)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if len(body) != 1 || body["error"] != tt.want {
				t.Fatalf("body = %v, want error=%q", body, tt.want)
			}
		})
	}
}

func TestJSON_UnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
