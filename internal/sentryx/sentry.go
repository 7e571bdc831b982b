package sentryx

import (
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	initOnce sync.Once
	enabled  bool
)

// Init enables error reporting when dsn is set. An empty dsn leaves every
// capture function a no-op.
func Init(service, dsn, environment, release string) error {
	var initErr error
	initOnce.Do(func() {
		if dsn == "" {
			return
		}

		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      environment,
			Release:          release,
			ServerName:       service,
			AttachStacktrace: true,
		}); err != nil {
			initErr = fmt.Errorf("init sentry: %w", err)
			return
		}
		enabled = true
	})
	return initErr
}

// Enabled reports whether events are sent.
func Enabled() bool {
	return enabled
}

func CaptureError(err error, message string, args ...any) {
	if !enabled {
		return
	}
	if err == nil {
		return
	}

	msg := message
	if len(args) > 0 {
		msg = fmt.Sprintf(message, args...)
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		if msg != "" {
			scope.SetTag("log_message", msg)
		}
		sentry.CaptureException(err)
	})
}

func CaptureMessage(level sentry.Level, message string, args ...any) {
	if !enabled {
		return
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		sentry.CaptureMessage(message)
	})
}

// CapturePanic reports a recovered panic value together with the request
// that triggered it.
func CapturePanic(rec any, method, path string) {
	if !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("http.method", method)
		scope.SetTag("http.path", path)
		sentry.CurrentHub().Recover(rec)
	})
}

func Flush(timeout time.Duration) {
	if !enabled {
		return
	}
	sentry.Flush(timeout)
}
