package coverart

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cover-art-server/internal/config"
	"cover-art-server/internal/logger"
	"cover-art-server/internal/notify"
	"cover-art-server/internal/observability"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordedEvents) Publish(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func setupCoverArtHandler(t *testing.T) (*Handler, *recordedEvents) {
	t.Helper()

	logger.Init(logger.Config{Output: io.Discard, MinLevel: logger.ERROR})

	tmp := t.TempDir()
	imagesDir := filepath.Join(tmp, "images")
	privateDir := filepath.Join(tmp, "images-private")
	for _, dir := range []string{filepath.Join(imagesDir, "albums"), privateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(imagesDir, "cover.png"), []byte("\x89PNG cover bytes"), 0644); err != nil {
		t.Fatalf("write cover: %v", err)
	}
	if err := os.WriteFile(filepath.Join(imagesDir, "albums", "front.jpg"), []byte("jpeg front"), 0644); err != nil {
		t.Fatalf("write front: %v", err)
	}
	if err := os.WriteFile(filepath.Join(privateDir, "secret.png"), []byte("private"), 0644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	cfg := &config.AppConfig{
		Env:               "test",
		Host:              "127.0.0.1",
		Port:              5000,
		ResolvedImagesDir: imagesDir,
		AllowUpload:       true,
		MaxUploadSize:     1 << 20,
	}

	store, err := NewStore(cfg.ResolvedImagesDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	events := &recordedEvents{}
	return NewHandler(cfg, store, observability.NewMetrics(), events), events
}

func getCoverArt(h *Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/cover-art/placeholder", nil)
	req.SetPathValue(PathValue, path)
	w := httptest.NewRecorder()
	h.Get(w, req)
	return w
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write multipart content: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/cover-art", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return payload
}

func TestHandler_GetServesFile(t *testing.T) {
	h, _ := setupCoverArtHandler(t)

	tests := []struct {
		path        string
		body        string
		contentType string
	}{
		{path: "cover.png", body: "\x89PNG cover bytes", contentType: "image/png"},
		{path: "albums/front.jpg", body: "jpeg front", contentType: "image/jpeg"},
		{path: "albums/../cover.png", body: "\x89PNG cover bytes", contentType: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := getCoverArt(h, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
			}
			if w.Body.String() != tt.body {
				t.Fatalf("unexpected body %q", w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.contentType {
				t.Fatalf("Content-Type = %q, want %q", ct, tt.contentType)
			}
		})
	}
}

func TestHandler_GetBlocksTraversal(t *testing.T) {
	h, _ := setupCoverArtHandler(t)

	for _, path := range []string{
		"../images-private/secret.png",
		"../../etc/passwd",
		"/etc/passwd",
		"albums/../../images-private/secret.png",
		"..",
	} {
		t.Run(path, func(t *testing.T) {
			w := getCoverArt(h, path)
			if w.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d body=%s", w.Code, w.Body.String())
			}
			if got := decodeBody(t, w)["error"]; got != "Forbidden" {
				t.Fatalf("unexpected error %q", got)
			}
			if strings.Contains(w.Body.String(), "private") || strings.Contains(w.Body.String(), "root:") {
				t.Fatalf("response leaked file content: %s", w.Body.String())
			}
		})
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	h, _ := setupCoverArtHandler(t)
	if _, err := h.store.Save("staged.png", strings.NewReader("x")); err != nil {
		t.Fatalf("prime staging dir: %v", err)
	}

	for _, path := range []string{"missing.png", "albums", "albums/", "", ".incoming", "cover.png/extra"} {
		t.Run(path, func(t *testing.T) {
			w := getCoverArt(h, path)
			if w.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d body=%s", w.Code, w.Body.String())
			}
			if got := decodeBody(t, w)["error"]; got != "Not found" {
				t.Fatalf("unexpected error %q", got)
			}
		})
	}
}

func TestHandler_UploadRejectsMissingFilePart(t *testing.T) {
	h, events := setupCoverArtHandler(t)

	t.Run("other field name", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Upload(w, uploadRequest(t, "image", "cover.png", []byte("data")))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
		}
		if got := decodeBody(t, w)["error"]; got != "No file part in request" {
			t.Fatalf("unexpected error %q", got)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/cover-art", strings.NewReader(`{"file":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.Upload(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
		}
		if got := decodeBody(t, w)["error"]; got != "No file part in request" {
			t.Fatalf("unexpected error %q", got)
		}
	})

	if len(events.events) != 0 {
		t.Fatalf("no events expected, got %v", events.events)
	}
}

func TestHandler_UploadRejectsEmptyFilename(t *testing.T) {
	h, _ := setupCoverArtHandler(t)

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "file", "", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["error"]; got != "No selected file" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestHandler_UploadRejectsUnusableFilename(t *testing.T) {
	h, _ := setupCoverArtHandler(t)

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "file", "日本語", []byte("data")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["error"]; got != "Invalid filename" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestHandler_UploadSanitizesTraversal(t *testing.T) {
	h, events := setupCoverArtHandler(t)
	root := h.config.ResolvedImagesDir

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "file", `..\..\evil.png`, []byte("evil payload")))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["filename"] != "evil.png" {
		t.Fatalf("expected sanitized filename, got %q", body["filename"])
	}
	if body["message"] != "File uploaded successfully" {
		t.Fatalf("unexpected message %q", body["message"])
	}

	content, err := os.ReadFile(filepath.Join(root, "evil.png"))
	if err != nil {
		t.Fatalf("expected uploaded file inside root: %v", err)
	}
	if string(content) != "evil payload" {
		t.Fatalf("unexpected stored content %q", content)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(root)), "evil.png")); !os.IsNotExist(err) {
		t.Fatal("file escaped the images root")
	}

	if len(events.events) != 1 || events.events[0].Filename != "evil.png" || events.events[0].Size != int64(len("evil payload")) {
		t.Fatalf("unexpected events %+v", events.events)
	}
}

func TestHandler_UploadThenGetRoundTrip(t *testing.T) {
	h, _ := setupCoverArtHandler(t)
	payload := []byte("\x89PNG\r\n\x1a\n\x00\x00 binary \xff\xfe cover")

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "file", "New Cover.png", payload))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	name := decodeBody(t, w)["filename"]
	if name != "New_Cover.png" {
		t.Fatalf("unexpected filename %q", name)
	}

	got := getCoverArt(h, name)
	if got.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", got.Code)
	}
	if !bytes.Equal(got.Body.Bytes(), payload) {
		t.Fatalf("round trip mismatch: %q", got.Body.Bytes())
	}
}

func TestHandler_UploadOverwrites(t *testing.T) {
	h, _ := setupCoverArtHandler(t)

	for _, content := range []string{"first", "second"} {
		w := httptest.NewRecorder()
		h.Upload(w, uploadRequest(t, "file", "cover.png", []byte(content)))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
		}
	}

	if got := getCoverArt(h, "cover.png").Body.String(); got != "second" {
		t.Fatalf("expected last write to win, got %q", got)
	}
}

func TestHandler_UploadOntoDirectoryIsRejected(t *testing.T) {
	h, _ := setupCoverArtHandler(t)

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "file", "albums", []byte("data")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if info, err := os.Stat(filepath.Join(h.config.ResolvedImagesDir, "albums")); err != nil || !info.IsDir() {
		t.Fatal("directory must survive")
	}
}

func TestHandler_UploadTooLarge(t *testing.T) {
	h, _ := setupCoverArtHandler(t)
	h.config.MaxUploadSize = 1024

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(t, "file", "huge.png", bytes.Repeat([]byte("x"), 64<<10)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d body=%s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(h.config.ResolvedImagesDir, "huge.png")); !os.IsNotExist(err) {
		t.Fatal("oversized upload must not be stored")
	}
}

func TestHandler_ConcurrentUploadsNeverInterleave(t *testing.T) {
	h, _ := setupCoverArtHandler(t)
	payloadA := bytes.Repeat([]byte("A"), 256<<10)
	payloadB := bytes.Repeat([]byte("B"), 256<<10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		payload := payloadA
		if i%2 == 1 {
			payload = payloadB
		}
		req := uploadRequest(t, "file", "race.png", payload)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.Upload(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", w.Code)
			}
		}()
	}
	wg.Wait()

	got, err := os.ReadFile(filepath.Join(h.config.ResolvedImagesDir, "race.png"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if !bytes.Equal(got, payloadA) && !bytes.Equal(got, payloadB) {
		t.Fatalf("stored file is not one of the payloads (len=%d)", len(got))
	}

	leftovers, err := os.ReadDir(filepath.Join(h.config.ResolvedImagesDir, stagingDir))
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("staging dir not cleaned: %d entries", len(leftovers))
	}
}

func TestHandler_HealthReportsCounters(t *testing.T) {
	h, _ := setupCoverArtHandler(t)
	getCoverArt(h, "cover.png")
	getCoverArt(h, "../x")
	getCoverArt(h, "missing.png")

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var stats ServerStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if stats.Status != "ok" || !stats.UploadEnabled || stats.Environment != "test" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for _, name := range []string{observability.CounterServed, observability.CounterForbidden, observability.CounterNotFound} {
		if stats.Counters[name] != 1 {
			t.Fatalf("counter %s = %d, want 1 (%v)", name, stats.Counters[name], stats.Counters)
		}
	}
}
