package app

import (
	"context"
	"errors"
	"os"

	"cover-art-server/internal/config"
	"cover-art-server/internal/coverart"
	"cover-art-server/internal/logger"
	"cover-art-server/internal/notify"
	"cover-art-server/internal/observability"
	"cover-art-server/internal/sentryx"
)

// ServiceName identifies the server in logs and error reports.
const ServiceName = "cover-art-server"

// ServerApp holds all runtime dependencies for the cover-art server.
type ServerApp struct {
	Config          *config.AppConfig
	Store           *coverart.Store
	Metrics         *observability.Metrics
	Events          *notify.Hub // nil unless uploads are enabled
	CoverArtHandler *coverart.Handler
	Logger          *logger.Logger
}

// New builds a fully wired server application from a validated config.
func New(cfg *config.AppConfig) (*ServerApp, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	log := logger.WithComponent("MAIN")

	store, err := coverart.NewStore(cfg.ResolvedImagesDir)
	if err != nil {
		return nil, err
	}
	log.Info("Ensuring images directory exists: %s", store.Root())

	metrics := observability.NewMetrics()

	var (
		hub       *notify.Hub
		publisher notify.Publisher
	)
	if cfg.AllowUpload {
		hub = notify.NewHub(cfg.AllowedOrigins)
		publisher = hub
	}

	return &ServerApp{
		Config:          cfg,
		Store:           store,
		Metrics:         metrics,
		Events:          hub,
		CoverArtHandler: coverart.NewHandler(cfg, store, metrics, publisher),
		Logger:          log,
	}, nil
}

// Run configures logging and error reporting, loads the configuration and
// serves until ctx is cancelled or a termination signal arrives.
func Run(ctx context.Context, opts config.Options, release string) error {
	level, err := logger.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{
		Output:   os.Stdout,
		MinLevel: level,
		UseColor: !opts.NoColor,
	})

	log := logger.WithComponent("MAIN")
	log.Info("Starting cover art server %s", release)

	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	if err := sentryx.Init(ServiceName, cfg.SentryDSN, cfg.Env, release); err != nil {
		log.Warn("Error reporting disabled: %v", err)
	}
	defer sentryx.Flush(ShutdownTimeout)

	log.Info("Upload endpoint enabled: %v", cfg.AllowUpload)
	log.Info("Images directory: %s", cfg.ResolvedImagesDir)
	if cfg.UseTLS {
		log.Info("SSL enabled with cert: %s, key: %s", cfg.CertFile, cfg.KeyFile)
	}

	app, err := New(cfg)
	if err != nil {
		sentryx.CaptureError(err, "bootstrap failed")
		return err
	}
	return app.Run(ctx)
}
