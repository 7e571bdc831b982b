package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cover-art-server/internal/httpx/response"
	"cover-art-server/internal/sentryx"
)

const (
	ShutdownTimeout   = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	ReadTimeout       = 60 * time.Second
	WriteTimeout      = 60 * time.Second
	IdleTimeout       = 120 * time.Second
)

// Run listens on the configured address and serves until ctx is cancelled
// or SIGINT/SIGTERM arrives.
func (a *ServerApp) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Addr())
	if err != nil {
		sentryx.CaptureError(err, "listen on %s", a.Config.Addr())
		return fmt.Errorf("listen on %s: %w", a.Config.Addr(), err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests and closes event subscribers.
func (a *ServerApp) Serve(ctx context.Context, ln net.Listener) error {
	router, err := a.Router()
	if err != nil {
		ln.Close()
		return err
	}

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info("Starting server on %s://%s", a.Config.Scheme(), ln.Addr())
		var serveErr error
		if a.Config.UseTLS {
			serveErr = server.ServeTLS(ln, a.Config.CertFile, a.Config.KeyFile)
		} else {
			serveErr = server.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErr <- serveErr
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		if runErr != nil {
			a.Logger.Error("Server error: %v", runErr)
			sentryx.CaptureError(runErr, "server serve error")
		}
	case <-ctx.Done():
		a.Logger.Info("Shutdown requested, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if a.Events != nil {
		a.Logger.Info("Closing event subscribers...")
		a.Events.Close()
	}

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.Logger.Error("Server shutdown error: %v", shutdownErr)
		sentryx.CaptureError(shutdownErr, "server shutdown error")
		if runErr == nil {
			runErr = shutdownErr
		}
	}

	if runErr == nil {
		a.Logger.Info("Server stopped gracefully")
	}
	return runErr
}

func (a *ServerApp) withPanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.Logger.ErrorWithStack(fmt.Sprintf("panic serving %s %s", r.Method, r.URL.Path), fmt.Errorf("%v", rec))
				sentryx.CapturePanic(rec, r.Method, r.URL.Path)
				// Reported above; avoid a second event from response.Error.
				response.JSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
