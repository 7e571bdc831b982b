package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"cover-art-server/internal/logger"
)

// DefaultMaxMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const DefaultMaxMemory = 8 << 20

var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrNotMultipart = errors.New("request is not multipart form data")
)

// ParseMultipartUpload caps the request body at maxSize and parses it as
// multipart form data.
func ParseMultipartUpload(w http.ResponseWriter, r *http.Request, maxSize int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	maxMemory := int64(DefaultMaxMemory)
	if maxSize < maxMemory {
		maxMemory = maxSize
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrBodyTooLarge
		}
		return ErrNotMultipart
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the logging middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if s.status == 0 {
		s.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

// Logging writes one line per request: 5xx at ERROR, 4xx at WARN, the rest
// at INFO.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			l := log.WithFields(map[string]any{
				"status":   status,
				"bytes":    rec.bytes,
				"duration": time.Since(start).Round(time.Microsecond),
				"remote":   r.RemoteAddr,
			})
			switch {
			case status >= http.StatusInternalServerError:
				l.Error("%s %s", r.Method, r.URL.RequestURI())
			case status >= http.StatusBadRequest:
				l.Warn("%s %s", r.Method, r.URL.RequestURI())
			default:
				l.Info("%s %s", r.Method, r.URL.RequestURI())
			}
		})
	}
}
