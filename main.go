package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"cover-art-server/internal/app"
	"cover-art-server/internal/config"
	"cover-art-server/internal/logger"
)

var (
	Version = "dev"
	Commit  = ""
)

func main() {
	cmd := &cli.Command{
		Name:  "cover-art-server",
		Usage: "Serve album cover art from a local directory, with optional uploads",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "allow-upload",
				Sources:  cli.EnvVars("COVER_ART_ALLOW_UPLOAD"),
				Category: "upload",
				Usage:    "Enable the POST /cover-art upload endpoint and the upload event feed.",
			},
			&cli.StringFlag{
				Name:     "host",
				Sources:  cli.EnvVars("COVER_ART_HOST"),
				Category: "global",
				Value:    config.DefaultHost,
				Usage:    "Interface to listen on.",
			},
			&cli.IntFlag{
				Name:     "port",
				Aliases:  []string{"p"},
				Sources:  cli.EnvVars("PORT"),
				Category: "global",
				Value:    config.DefaultPort,
				Usage:    "Port to listen on.",
			},
			&cli.StringFlag{
				Name:      "images-dir",
				Aliases:   []string{"d"},
				Sources:   cli.EnvVars("COVER_ART_IMAGES_DIR"),
				Category:  "global",
				Value:     config.DefaultImagesDir,
				TakesFile: true,
				Usage:     "Directory cover art is served from and uploaded to. Created if missing.",
			},
			&cli.BoolFlag{
				Name:     "use-ssl",
				Sources:  cli.EnvVars("COVER_ART_USE_SSL"),
				Category: "tls",
				Usage:    "Serve over HTTPS. Startup fails if the certificate or key file is missing.",
			},
			&cli.StringFlag{
				Name:      "cert-file",
				Sources:   cli.EnvVars("COVER_ART_CERT_FILE"),
				Category:  "tls",
				Value:     config.DefaultCertFile,
				TakesFile: true,
				Usage:     "PEM certificate used when --use-ssl is set.",
			},
			&cli.StringFlag{
				Name:      "key-file",
				Sources:   cli.EnvVars("COVER_ART_KEY_FILE"),
				Category:  "tls",
				Value:     config.DefaultKeyFile,
				TakesFile: true,
				Usage:     "PEM private key used when --use-ssl is set.",
			},
			&cli.IntFlag{
				Name:     "max-upload-size",
				Sources:  cli.EnvVars("COVER_ART_MAX_UPLOAD_SIZE"),
				Category: "upload",
				Value:    config.DefaultMaxUploadSize,
				Usage:    "Largest accepted upload request body, in bytes.",
			},
			&cli.StringSliceFlag{
				Name:     "allowed-origin",
				Sources:  cli.EnvVars("COVER_ART_ALLOWED_ORIGINS"),
				Category: "upload",
				Usage:    "Extra browser origin allowed to subscribe to upload events. Repeatable.",
			},
			&cli.StringFlag{
				Name:     "log-level",
				Sources:  cli.EnvVars("LOG_LEVEL"),
				Category: "logging",
				Value:    "info",
				Action: func(_ context.Context, _ *cli.Command, lvl string) error {
					_, err := logger.ParseLevel(lvl)
					return err
				},
				Usage: "Minimum log level (debug, info, warn, error).",
			},
			&cli.BoolFlag{
				Name:     "no-color",
				Sources:  cli.EnvVars("NO_COLOR"),
				Category: "logging",
				Usage:    "Disable ANSI colors in log output.",
			},
			&cli.StringFlag{
				Name:     "sentry-dsn",
				Sources:  cli.EnvVars("SENTRY_DSN"),
				Category: "logging",
				Usage:    "Report server errors and panics to this Sentry DSN.",
			},
			&cli.StringFlag{
				Name:     "env",
				Sources:  cli.EnvVars("COVER_ART_ENV"),
				Category: "global",
				Value:    config.DefaultEnv,
				Usage:    "Deployment environment name attached to logs and error reports.",
			},
		},
		Action:  run,
		Version: Version,
		Metadata: map[string]any{
			"version": Version,
			"commit":  Commit,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.WithComponent("MAIN").Error("Server failed: %v", err)
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	opts := config.Options{
		Env:            cmd.String("env"),
		Host:           cmd.String("host"),
		Port:           int(cmd.Int("port")),
		ImagesDir:      cmd.String("images-dir"),
		AllowUpload:    cmd.Bool("allow-upload"),
		UseTLS:         cmd.Bool("use-ssl"),
		CertFile:       cmd.String("cert-file"),
		KeyFile:        cmd.String("key-file"),
		MaxUploadSize:  int64(cmd.Int("max-upload-size")),
		AllowedOrigins: cmd.StringSlice("allowed-origin"),
		LogLevel:       cmd.String("log-level"),
		NoColor:        cmd.Bool("no-color"),
		SentryDSN:      cmd.String("sentry-dsn"),
	}

	release := Version
	if Commit != "" {
		release += "+" + Commit
	}
	return app.Run(ctx, opts, release)
}
