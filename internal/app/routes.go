package app

import (
	"errors"
	"net/http"
	"strings"

	"cover-art-server/internal/coverart"
	httpxmiddleware "cover-art-server/internal/httpx/middleware"
	"cover-art-server/internal/logger"
)

const coverArtPrefix = "/cover-art/"

// Router builds the full HTTP routing tree. Upload routes are only added
// when uploads are enabled; otherwise those paths fall through to the JSON
// 404 handler.
func (a *ServerApp) Router() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("server app is nil")
	}
	if a.CoverArtHandler == nil {
		return nil, errors.New("cover-art handler is not configured")
	}

	h := a.CoverArtHandler
	mux := http.NewServeMux()

	// Cover-art reads never reach mux; see rawCoverArtPaths.
	get := httpxmiddleware.Gzip(http.HandlerFunc(h.Get))
	mux.Handle("GET /health", httpxmiddleware.Gzip(http.HandlerFunc(h.Health)))

	if a.Config.AllowUpload {
		mux.HandleFunc("POST /cover-art", h.Upload)
		if a.Events != nil {
			mux.HandleFunc("GET /events/cover-art", a.Events.ServeWS)
		}
	}

	mux.HandleFunc("/", h.NotFound)

	return a.withPanicRecovery(
		httpxmiddleware.Logging(logger.WithComponent("HTTP"))(
			rawCoverArtPaths(get, mux),
		),
	), nil
}

// rawCoverArtPaths sends GET and HEAD under /cover-art/ straight to get with
// the uncleaned sub-path in the "path" value. http.ServeMux would answer
// "/cover-art/../x" with a redirect, and a traversal attempt must get a 403.
func rawCoverArtPaths(get, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodGet || r.Method == http.MethodHead) && strings.HasPrefix(r.URL.Path, coverArtPrefix) {
			r.SetPathValue(coverart.PathValue, strings.TrimPrefix(r.URL.Path, coverArtPrefix))
			get.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
