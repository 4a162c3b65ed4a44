// Package ingest brings the message store into agreement with the filesystem
// corpus. The walk is fully idempotent: interrupting it and re-running from
// the start produces no additional writes over unchanged data.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/corpus"
	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
	"github.com/nkuznetsov/tgarchive/internal/platform/worker"
	"github.com/nkuznetsov/tgarchive/internal/storage"
)

// Store is the subset of the message store the sync engine writes to.
type Store interface {
	UpsertMessage(ctx context.Context, msg *domain.Message) (storage.UpsertStatus, error)
	TouchChat(ctx context.Context, chat domain.Chat, kind domain.ChatKind, lastDate time.Time, preview string) error
	UpsertUser(ctx context.Context, user *domain.User) error
}

// Config tunes the sync engine's cooperative scheduling.
type Config struct {
	// BatchSize is how many files are processed between yields.
	BatchSize int

	// Yield is how long the engine pauses between batches so request
	// traffic is not starved during a long walk.
	Yield time.Duration
}

type Engine struct {
	corpus *corpus.Corpus
	store  Store
	cfg    Config
	logger *zerolog.Logger
}

func New(c *corpus.Corpus, store Store, cfg Config, logger *zerolog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	return &Engine{
		corpus: c,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Sync walks the whole corpus and mirrors every message into the store.
// Corrupt files are skipped, failed writes retried once per message; neither
// halts the walk.
func (e *Engine) Sync(ctx context.Context) error {
	dirs, err := e.corpus.DateDirs(false)
	if err != nil {
		return err
	}

	return e.syncDirs(ctx, dirs, "full", time.Time{})
}

// SyncRecent restricts the walk to today's and yesterday's date directories
// and skips files whose mtime falls outside the window. Used for cheap
// incremental catch-up without re-walking history.
func (e *Engine) SyncRecent(ctx context.Context, window time.Duration) error {
	dirs, err := e.corpus.DateDirs(false)
	if err != nil {
		return err
	}

	today := time.Now().Format(corpus.DateLayout)
	yesterday := time.Now().AddDate(0, 0, -1).Format(corpus.DateLayout)

	var recent []corpus.DateDir

	for _, dir := range dirs {
		if dir.Name == today || dir.Name == yesterday {
			recent = append(recent, dir)
		}
	}

	return e.syncDirs(ctx, recent, "recent", time.Now().Add(-window))
}

func (e *Engine) syncDirs(ctx context.Context, dirs []corpus.DateDir, mode string, cutoff time.Time) error {
	run := uuid.NewString()
	logger := e.logger.With().Str("run", run).Str("mode", mode).Logger()

	start := time.Now()

	var walked, skipped, failed int

	inBatch := 0
	batchStart := time.Now()

	for _, dir := range dirs {
		err := e.corpus.WalkDate(dir, func(f corpus.File) error {
			if !cutoff.IsZero() && f.ModTime.Before(cutoff) {
				return nil
			}

			walked++
			observability.FilesWalked.WithLabelValues(mode).Inc()

			if !e.processFile(ctx, &logger, f) {
				skipped++
			}

			inBatch++
			if inBatch >= e.cfg.BatchSize {
				observability.SyncBatchDurationSeconds.Observe(time.Since(batchStart).Seconds())

				// yield so concurrent request handling is never starved
				if err := worker.Wait(ctx, e.cfg.Yield); err != nil {
					return err
				}

				inBatch = 0
				batchStart = time.Now()
			}

			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}

			// a vanished or unreadable directory is not fatal to the walk
			logger.Warn().Str("dir", dir.Path).Err(err).Msg("skipping unreadable date directory")

			failed++
		}
	}

	logger.Info().
		Int("walked", walked).
		Int("skipped", skipped).
		Int("dir_errors", failed).
		Dur("elapsed", time.Since(start)).
		Msg("sync finished")

	return nil
}

// processFile ingests one corpus file. Returns false when the file was
// skipped (empty, corrupt, or persistently unwritable).
func (e *Engine) processFile(ctx context.Context, logger *zerolog.Logger, f corpus.File) bool {
	raw, err := e.corpus.Read(f)
	if err != nil {
		observability.FilesSkipped.WithLabelValues("unreadable").Inc()
		logger.Debug().Str("path", f.Path).Err(err).Msg("skipping unreadable file")

		return false
	}

	if len(raw) == 0 {
		observability.FilesSkipped.WithLabelValues("empty").Inc()

		return false
	}

	msg, err := domain.NormalizeRaw(raw)
	if err != nil {
		observability.FilesSkipped.WithLabelValues("corrupt").Inc()
		logger.Debug().Str("path", f.Path).Err(err).Msg("skipping malformed file")

		return false
	}

	if msg.ChatID == 0 && f.SubdirChatID != 0 {
		msg.ChatID = f.SubdirChatID
	}

	e.corpus.RememberPath(msg.ChatID, msg.MessageID, f.Path)

	if msg.Type == domain.TypeUnknown {
		observability.UnknownMediaShapes.Inc()
		logger.Warn().Str("path", f.Path).Msg("unknown media shape resolved by generic file_id search")
	}

	if e.store == nil {
		return true
	}

	return e.mirror(ctx, logger, msg, raw, f.Path)
}

// mirror upserts message, chat and user rows. Each write is retried once;
// a still-failing write is logged and the walk continues, the next run
// converges.
func (e *Engine) mirror(ctx context.Context, logger *zerolog.Logger, msg *domain.Message, raw []byte, path string) bool {
	status, err := upsertWithRetry(ctx, e.store, msg)
	if err != nil {
		observability.MessagesUpserted.WithLabelValues("error").Inc()
		logger.Warn().Str("path", path).Err(err).Msg("message upsert failed")

		return false
	}

	observability.MessagesUpserted.WithLabelValues(string(status)).Inc()

	chat, kind := domain.ChatOf(raw)
	if chat.ID != 0 {
		if err := e.store.TouchChat(ctx, chat, kind, time.Unix(msg.Date, 0), preview(msg)); err != nil {
			logger.Warn().Int64("chat", chat.ID).Err(err).Msg("chat upsert failed")
		}
	}

	if sender := domain.SenderOf(raw); sender != nil {
		if err := e.store.UpsertUser(ctx, sender); err != nil {
			logger.Warn().Int64("user", sender.ID).Err(err).Msg("user upsert failed")
		}
	}

	return true
}

func upsertWithRetry(ctx context.Context, store Store, msg *domain.Message) (storage.UpsertStatus, error) {
	status, err := store.UpsertMessage(ctx, msg)
	if err == nil || ctx.Err() != nil {
		return status, err
	}

	return store.UpsertMessage(ctx, msg)
}

const previewLimit = 80

func preview(msg *domain.Message) string {
	body := msg.Body()
	if body == "" {
		body = string(msg.Type)
	}

	runes := []rune(body)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit])
	}

	return body
}
