package testutil

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
	"testing"

	"cover-art-server/internal/app"
	"cover-art-server/internal/config"
	"cover-art-server/internal/logger"
)

// TestServer holds the in-memory test server and dependencies.
type TestServer struct {
	Server  *httptest.Server
	App     *app.ServerApp
	Config  *config.AppConfig
	TempDir string
}

// Options tweaks the generated configuration.
type Options struct {
	AllowUpload    bool
	MaxUploadSize  int64
	AllowedOrigins []string
}

// Setup creates a fully wired test server rooted at <tmp>/images. A sibling
// <tmp>/images-private directory holds secret.png for escape tests.
func Setup(t testing.TB, opts Options) *TestServer {
	t.Helper()

	logger.Init(logger.Config{Output: io.Discard, MinLevel: logger.ERROR, UseColor: false})

	tempDir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(tempDir); err == nil {
		tempDir = resolved
	}
	imagesDir := filepath.Join(tempDir, "images")
	privateDir := filepath.Join(tempDir, "images-private")
	for _, dir := range []string{imagesDir, privateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("create dir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(privateDir, "secret.png"), []byte("private"), 0644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	maxSize := opts.MaxUploadSize
	if maxSize == 0 {
		maxSize = 1 << 20
	}

	cfg := &config.AppConfig{
		Env:               "test",
		Host:              "127.0.0.1",
		Port:              5000,
		ResolvedImagesDir: imagesDir,
		AllowUpload:       opts.AllowUpload,
		MaxUploadSize:     maxSize,
		AllowedOrigins:    opts.AllowedOrigins,
		LogLevel:          logger.ERROR,
	}

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	router, err := a.Router()
	if err != nil {
		t.Fatalf("Router: %v", err)
	}

	ts := &TestServer{
		Server:  httptest.NewServer(router),
		App:     a,
		Config:  cfg,
		TempDir: tempDir,
	}
	t.Cleanup(ts.Cleanup)
	return ts
}

// Cleanup stops the server and closes event subscribers.
func (ts *TestServer) Cleanup() {
	if ts.App != nil && ts.App.Events != nil {
		ts.App.Events.Close()
	}
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// WriteImage places a file under the images directory.
func (ts *TestServer) WriteImage(t testing.TB, rel string, data []byte) string {
	t.Helper()
	full := filepath.Join(ts.Config.ResolvedImagesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return full
}

// RawGet issues a GET with the path sent exactly as given.
func (ts *TestServer) RawGet(t testing.TB, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.Server.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.URL.Opaque = path
	resp, err := ts.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// Upload posts a multipart body with one file part named field.
func (ts *TestServer) Upload(t testing.TB, field, filename string, data []byte) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	resp, err := ts.Server.Client().Post(ts.Server.URL+"/cover-art", writer.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

// WebSocketURL converts an http path on the test server to a ws URL.
func (ts *TestServer) WebSocketURL(path string) string {
	return strings.Replace(ts.Server.URL, "http://", "ws://", 1) + path
}

// DecodeJSON decodes and closes resp.Body.
func DecodeJSON(t testing.TB, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode JSON body: %v", err)
	}
	return out
}
