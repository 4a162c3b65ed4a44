// Package app wires the archive's components together and exposes the
// operational modes:
//
//   - serve: HTTP API + static UI, background ingest loop, avatar queue
//   - sync: one full corpus walk into the SQL mirror, then exit
//   - scan: rebuild the chat directory cache, then exit
//
// The SQL mirror and the bot relay are both optional: without POSTGRES_DSN
// every read degrades to the filesystem, without BOT_TOKEN the relay
// endpoints answer failed results.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/avatars"
	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/corpus"
	"github.com/nkuznetsov/tgarchive/internal/httpapi"
	"github.com/nkuznetsov/tgarchive/internal/ingest"
	"github.com/nkuznetsov/tgarchive/internal/platform/config"
	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
	"github.com/nkuznetsov/tgarchive/internal/platform/worker"
	"github.com/nkuznetsov/tgarchive/internal/scanner"
	"github.com/nkuznetsov/tgarchive/internal/stats"
	db "github.com/nkuznetsov/tgarchive/internal/storage"
	"github.com/nkuznetsov/tgarchive/internal/telegram"
)

const sentryFlushTimeout = 2 * time.Second

type App struct {
	cfg    *config.Config
	logger *zerolog.Logger

	corpus   *corpus.Corpus
	database *db.DB
	scanner  *scanner.Scanner
	bot      *telegram.Client
	avatars  *avatars.Cache
}

// New builds the dependency graph. database and bot may be nil.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) (*App, error) {
	if cfg.CorpusRoot == "" {
		return nil, fmt.Errorf("corpus root is not configured")
	}

	if _, err := os.Stat(cfg.CorpusRoot); err != nil {
		return nil, fmt.Errorf("corpus root %q: %w", cfg.CorpusRoot, err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		database: database,
	}

	a.corpus = corpus.New(cfg.CorpusRoot, cfg.ArchiveRoot, logger)
	a.scanner = scanner.New(a.corpus, cfg.ChatCachePath, logger)

	if cfg.BotToken != "" {
		bot, err := telegram.New(cfg.BotToken, cfg.BotRateLimitRPS, logger)
		if err != nil {
			return nil, fmt.Errorf("bot client init: %w", err)
		}

		a.bot = bot
	} else {
		logger.Warn().Msg("BOT_TOKEN not set, relay endpoints disabled")
	}

	if a.bot != nil {
		var photoStore avatars.Store
		if database != nil {
			photoStore = database
		}

		a.avatars = avatars.New(a.bot, photoStore, logger)
	}

	return a, nil
}

// InitSentry configures error reporting when a DSN is present. The returned
// flush function is safe to call either way.
func InitSentry(cfg *config.Config) (func(), error) {
	if cfg.SentryDSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}

	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// StartHealthServer runs the health and metrics endpoint until ctx ends.
func (a *App) StartHealthServer(ctx context.Context) error {
	var pinger observability.Pinger
	if a.database != nil {
		pinger = a.database
	}

	return observability.NewServer(pinger, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunServe runs the archive server: HTTP API, the periodic recent-window
// ingest loop, and the avatar fetch queue. A full corpus sync runs once in
// the background at startup so the mirror catches up after downtime.
func (a *App) RunServe(ctx context.Context) error {
	engine := a.ingestEngine()

	go func() {
		defer worker.RecoverPanic(a.logger, "startup sync")

		if err := engine.Sync(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error().Err(err).Msg("startup sync failed")
		}
	}()

	go func() {
		defer worker.RecoverPanic(a.logger, "ingest loop")

		err := worker.Loop(ctx, worker.Config{
			Name:         "recent sync",
			PollInterval: a.cfg.SyncPollInterval,
			Process: func(ctx context.Context) error {
				return engine.SyncRecent(ctx, a.cfg.SyncRecentWindow)
			},
			Logger: a.logger,
		})
		if err != nil && ctx.Err() == nil {
			a.logger.Error().Err(err).Msg("ingest loop stopped")
		}
	}()

	if a.avatars != nil {
		go func() {
			defer worker.RecoverPanic(a.logger, "avatar queue")

			if err := a.avatars.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Msg("avatar queue stopped")
			}
		}()
	}

	server := httpapi.NewServer(
		httpapi.Config{
			Addr:      fmt.Sprintf(":%d", a.cfg.Port),
			StaticDir: a.cfg.StaticDir,
		},
		a.handlers(),
		a.logger,
	)

	return server.Run(ctx)
}

// RunSync performs one full corpus walk into the SQL mirror.
func (a *App) RunSync(ctx context.Context) error {
	if a.database == nil {
		return fmt.Errorf("sync mode requires POSTGRES_DSN")
	}

	if err := a.ingestEngine().Sync(ctx); err != nil {
		return err
	}

	total, err := a.database.CountMessages(ctx)
	if err != nil {
		return fmt.Errorf("count mirrored messages: %w", err)
	}

	a.logger.Info().Int64("messages", total).Msg("mirror in sync with corpus")

	return nil
}

// RunScan rebuilds the chat directory cache from the corpus.
func (a *App) RunScan(ctx context.Context) error {
	chats, err := a.scanner.Chats(ctx, true, true)
	if err != nil {
		return fmt.Errorf("scan chats: %w", err)
	}

	a.logger.Info().Int("chats", len(chats)).Msg("chat cache rebuilt")

	return nil
}

func (a *App) ingestEngine() *ingest.Engine {
	var store ingest.Store
	if a.database != nil {
		store = a.database
	}

	return ingest.New(a.corpus, store, ingest.Config{
		BatchSize: a.cfg.SyncBatchSize,
		Yield:     a.cfg.SyncYield,
	}, a.logger)
}

func (a *App) handlers() *httpapi.Handlers {
	var (
		bot       httpapi.Bot
		store     ingest.Store
		mirror    httpapi.MessageMirror
		statStore stats.Store
		avatarSrc httpapi.AvatarSource
	)

	var chats httpapi.ChatSource = a.scanner

	if a.bot != nil {
		bot = a.bot
	}

	if a.database != nil {
		store = a.database
		mirror = a.database
		statStore = a.database
		chats = &mirroredChatSource{scanner: a.scanner, database: a.database, logger: a.logger}
	}

	if a.avatars != nil {
		avatarSrc = a.avatars
	}

	return httpapi.NewHandlers(
		a.corpus,
		chats,
		avatarSrc,
		bot,
		store,
		mirror,
		stats.NewAggregator(statStore, a.logger),
		a.logger,
	)
}

// mirroredChatSource answers from the corpus scanner and falls back to the
// SQL mirror when the filesystem walk fails.
type mirroredChatSource struct {
	scanner  *scanner.Scanner
	database *db.DB
	logger   *zerolog.Logger
}

func (s *mirroredChatSource) Chats(ctx context.Context, includeArchive, force bool) ([]domain.Chat, error) {
	chats, err := s.scanner.Chats(ctx, includeArchive, force)
	if err == nil {
		return chats, nil
	}

	s.logger.Warn().Err(err).Msg("chat scan failed, serving mirror")

	return s.database.Chats(ctx)
}
