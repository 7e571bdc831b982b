package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cover-art-server/internal/logger"
)

var log = logger.WithComponent("CONFIG")

// Defaults used by the CLI layer.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 5000
	DefaultImagesDir     = "images"
	DefaultCertFile      = "certs/server.crt"
	DefaultKeyFile       = "certs/server.key"
	DefaultMaxUploadSize = 32 << 20
	DefaultEnv           = "development"
)

// Options holds the raw startup settings as given on the command line or
// through the environment.
type Options struct {
	Env            string
	Host           string
	Port           int
	ImagesDir      string
	AllowUpload    bool
	UseTLS         bool
	CertFile       string
	KeyFile        string
	MaxUploadSize  int64
	AllowedOrigins []string
	LogLevel       string
	NoColor        bool
	SentryDSN      string
}

// AppConfig holds the resolved application configuration. It is built once
// at startup and never mutated afterwards.
type AppConfig struct {
	Env               string
	Host              string
	Port              int
	ResolvedImagesDir string
	AllowUpload       bool
	UseTLS            bool
	CertFile          string
	KeyFile           string
	MaxUploadSize     int64
	AllowedOrigins    []string
	LogLevel          logger.Level
	UseColor          bool
	SentryDSN         string
}

// Common configuration errors
var (
	ErrCertificateMissing = errors.New("certificate files not found")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// ValidationError contains details about a configuration validation failure
type ValidationError struct {
	Field   string
	Message string
	Wrapped error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return e.Wrapped
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d config validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Unwrap exposes every wrapped sentinel to errors.Is.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, v := range e {
		out = append(out, v)
	}
	return out
}

// Addr returns the host:port listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Scheme returns "https" when TLS is on, "http" otherwise.
func (c *AppConfig) Scheme() string {
	if c.UseTLS {
		return "https"
	}
	return "http"
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{Field: "port", Message: fmt.Sprintf("invalid port %d, must be 1-65535", c.Port), Wrapped: ErrInvalidPort})
	}

	if c.ResolvedImagesDir == "" {
		errs = append(errs, ValidationError{Field: "imagesDir", Message: "path is required"})
	} else if info, err := os.Stat(c.ResolvedImagesDir); err != nil {
		if !os.IsNotExist(err) {
			errs = append(errs, ValidationError{Field: "imagesDir", Message: fmt.Sprintf("cannot access: %v", err)})
		}
		// Not existing is OK - the store creates it
	} else if !info.IsDir() {
		errs = append(errs, ValidationError{Field: "imagesDir", Message: "path exists but is not a directory"})
	}

	if c.MaxUploadSize <= 0 {
		errs = append(errs, ValidationError{Field: "maxUploadSize", Message: fmt.Sprintf("must be positive, got %d", c.MaxUploadSize)})
	}

	if c.UseTLS {
		if !fileExists(c.CertFile) {
			errs = append(errs, ValidationError{Field: "certFile", Message: fmt.Sprintf("not found: %q", c.CertFile), Wrapped: ErrCertificateMissing})
		}
		if !fileExists(c.KeyFile) {
			errs = append(errs, ValidationError{Field: "keyFile", Message: fmt.Sprintf("not found: %q", c.KeyFile), Wrapped: ErrCertificateMissing})
		}
	}

	return errs
}

// Load resolves and validates startup options.
func Load(opts Options) (*AppConfig, error) {
	level, err := logger.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	imagesDir := opts.ImagesDir
	if imagesDir == "" {
		imagesDir = DefaultImagesDir
	}
	resolvedImagesDir, err := filepath.Abs(imagesDir)
	if err != nil {
		return nil, fmt.Errorf("resolve images directory %q: %w", imagesDir, err)
	}

	env := opts.Env
	if env == "" {
		env = DefaultEnv
	}

	host := opts.Host
	if host == "" {
		host = DefaultHost
	}

	origins := make([]string, 0, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}

	cfg := &AppConfig{
		Env:               env,
		Host:              host,
		Port:              opts.Port,
		ResolvedImagesDir: resolvedImagesDir,
		AllowUpload:       opts.AllowUpload,
		UseTLS:            opts.UseTLS,
		CertFile:          opts.CertFile,
		KeyFile:           opts.KeyFile,
		MaxUploadSize:     opts.MaxUploadSize,
		AllowedOrigins:    origins,
		LogLevel:          level,
		UseColor:          !opts.NoColor,
		SentryDSN:         opts.SentryDSN,
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			log.Error("Validation error: %s", err.Error())
		}
		if errors.Is(errs, ErrCertificateMissing) {
			log.Error("Certificate files not found. Generate them using 'make certs'")
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}

	log.Info("Configuration loaded successfully | env=%s addr=%s upload=%v tls=%v", cfg.Env, cfg.Addr(), cfg.AllowUpload, cfg.UseTLS)
	return cfg, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
