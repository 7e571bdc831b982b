package coverart

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"cover-art-server/internal/config"
	httpxmiddleware "cover-art-server/internal/httpx/middleware"
	"cover-art-server/internal/httpx/response"
	"cover-art-server/internal/logger"
	"cover-art-server/internal/notify"
	"cover-art-server/internal/observability"
	"cover-art-server/internal/pathsec"
	"cover-art-server/internal/sentryx"
)

var coverLog = logger.WithComponent("COVERART")

// PathValue is the route wildcard holding the requested sub-path.
const PathValue = "path"

// Handler serves and accepts cover-art files.
type Handler struct {
	config  *config.AppConfig
	store   *Store
	metrics *observability.Metrics
	events  notify.Publisher
}

// NewHandler creates a cover-art handler. events may be nil.
func NewHandler(cfg *config.AppConfig, store *Store, metrics *observability.Metrics, events notify.Publisher) *Handler {
	return &Handler{
		config:  cfg,
		store:   store,
		metrics: metrics,
		events:  events,
	}
}

// Get handles GET /cover-art/{path...}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	requested := r.PathValue(PathValue)
	coverLog.Debug("Request for image: %s", requested)

	f, info, err := h.store.Open(requested)
	if err != nil {
		switch pathsec.HTTPStatus(err) {
		case http.StatusForbidden:
			coverLog.Warn("Path traversal attempt detected for path: %q", requested)
			h.metrics.IncCounter(observability.CounterForbidden)
		case http.StatusNotFound:
			coverLog.Debug("Image not found: %q", requested)
			h.metrics.IncCounter(observability.CounterNotFound)
		default:
			coverLog.Error("Failed to open image %q: %v", requested, err)
			sentryx.CaptureError(err, "open cover art %q", requested)
		}
		pathsec.HandlePathSecurityError(w, err)
		return
	}
	defer f.Close()

	hdr := w.Header()
	if ct := ContentTypeFor(info.Name()); ct != "" {
		hdr.Set("Content-Type", ct)
	}
	hdr.Set("Cache-Control", "public, max-age=3600")
	hdr.Set("X-Content-Type-Options", "nosniff")

	h.metrics.IncCounter(observability.CounterServed)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// Upload handles POST /cover-art.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	coverLog.Info("Received file upload request")

	if err := httpxmiddleware.ParseMultipartUpload(w, r, h.config.MaxUploadSize); err != nil {
		h.metrics.IncCounter(observability.CounterBadRequests)
		if errors.Is(err, httpxmiddleware.ErrBodyTooLarge) {
			coverLog.Warn("Upload exceeds %d bytes", h.config.MaxUploadSize)
			response.TooLarge(w)
			return
		}
		coverLog.Warn("File upload attempt with no file part")
		response.BadRequest(w, "No file part in request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.IncCounter(observability.CounterBadRequests)
		// A form field named "file" without a filename is what browsers send
		// when nothing was selected.
		if _, ok := r.MultipartForm.Value["file"]; ok {
			coverLog.Warn("File upload attempt with empty filename")
			response.BadRequest(w, "No selected file")
			return
		}
		coverLog.Warn("File upload attempt with no file part")
		response.BadRequest(w, "No file part in request")
		return
	}
	defer file.Close()

	filename, err := pathsec.SanitizeFilename(header.Filename)
	if err != nil {
		h.metrics.IncCounter(observability.CounterBadRequests)
		coverLog.Warn("Rejected upload filename %q: %v", header.Filename, err)
		pathsec.HandlePathSecurityError(w, err)
		return
	}

	coverLog.Info("Saving uploaded file: %s", filename)
	size, err := h.store.Save(filename, file)
	if err != nil {
		if pathsec.HTTPStatus(err) == http.StatusBadRequest {
			h.metrics.IncCounter(observability.CounterBadRequests)
			pathsec.HandlePathSecurityError(w, err)
			return
		}
		h.metrics.IncCounter(observability.CounterUploadErrors)
		coverLog.Error("Failed to save %s: %v", filename, err)
		sentryx.CaptureError(err, "save cover art %s", filename)
		response.Error(w, http.StatusInternalServerError, "Failed to save file")
		return
	}

	h.metrics.IncCounter(observability.CounterUploads)
	if h.events != nil {
		h.events.Publish(notify.Event{Type: "uploaded", Filename: filename, Size: size})
	}

	response.JSON(w, http.StatusOK, UploadResponse{
		Message:  "File uploaded successfully",
		Filename: filename,
	})
}

// NotFound is the JSON fallback for unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	coverLog.Debug("Resource not found: %s %s", r.Method, r.URL.Path)
	response.NotFound(w)
}

// ServerStats represents server health statistics.
type ServerStats struct {
	Status        string           `json:"status"`
	Uptime        string           `json:"uptime"`
	Goroutines    int              `json:"goroutines"`
	MemoryMB      uint64           `json:"memoryMB"`
	Environment   string           `json:"environment"`
	UploadEnabled bool             `json:"uploadEnabled"`
	Counters      map[string]int64 `json:"counters"`
}

var serverStartTime = time.Now()

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := ServerStats{
		Status:        "ok",
		Uptime:        time.Since(serverStartTime).Round(time.Second).String(),
		Goroutines:    runtime.NumGoroutine(),
		MemoryMB:      memStats.Alloc / 1024 / 1024,
		Environment:   h.config.Env,
		UploadEnabled: h.config.AllowUpload,
		Counters:      h.metrics.Snapshot(),
	}

	response.JSON(w, http.StatusOK, stats)
}
