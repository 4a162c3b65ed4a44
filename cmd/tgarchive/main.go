package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/app"
	"github.com/nkuznetsov/tgarchive/internal/platform/config"
	db "github.com/nkuznetsov/tgarchive/internal/storage"
)

func main() {
	mode := flag.String("mode", "serve", "Service mode (serve, sync, scan)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flush, err := app.InitSentry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init error reporting")
	}
	defer flush()

	database := connectDatabase(ctx, cfg, &logger)
	if database != nil {
		defer database.Close()
	}

	application, err := app.New(cfg, database, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}

	go func() {
		if err := application.StartHealthServer(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := runMode(ctx, application, *mode); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// connectDatabase dials the SQL mirror when a DSN is configured. A missing
// or unreachable mirror is not fatal: the archive serves from the
// filesystem and the mirror catches up on the next successful sync.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *db.DB {
	if cfg.PostgresDSN == "" {
		logger.Warn().Msg("POSTGRES_DSN not set, running filesystem-only")

		return nil
	}

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("database unavailable, running filesystem-only")

		return nil
	}

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("migrations failed, running filesystem-only")
		database.Close()

		return nil
	}

	return database
}

func runMode(ctx context.Context, application *app.App, mode string) error {
	switch mode {
	case "serve":
		return application.RunServe(ctx)
	case "sync":
		return application.RunSync(ctx)
	case "scan":
		return application.RunScan(ctx)
	default:
		log.Fatalf("Usage: %s --mode=[serve|sync|scan]", os.Args[0])

		return nil
	}
}
