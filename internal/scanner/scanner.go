// Package scanner derives the set of known conversations and their
// latest-activity metadata straight from the filesystem corpus, without
// needing the relational store. Results are cached in a JSON artifact so a
// request rarely pays for a full walk.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/corpus"
	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
)

type Scanner struct {
	corpus    *corpus.Corpus
	cachePath string
	logger    *zerolog.Logger

	mu     sync.Mutex
	cached map[bool][]domain.Chat
}

func New(c *corpus.Corpus, cachePath string, logger *zerolog.Logger) *Scanner {
	return &Scanner{
		corpus:    c,
		cachePath: cachePath,
		logger:    logger,
		cached:    make(map[bool][]domain.Chat),
	}
}

// Chats returns chat summaries ordered by recency. The scanner serves from
// its cache (memory, then the on-disk artifact) unless force is set; a
// corrupt or absent cache triggers a full rescan, never a caller error.
// Caches are kept per archive inclusion: an archive-including request is
// never answered from a live-only scan, and vice versa.
func (s *Scanner) Chats(ctx context.Context, includeArchive, force bool) ([]domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		if cached := s.cached[includeArchive]; len(cached) > 0 {
			observability.ChatCacheHits.WithLabelValues("memory").Inc()

			return cloneChats(cached), nil
		}

		if chats, ok := s.loadCache(includeArchive); ok {
			observability.ChatCacheHits.WithLabelValues("disk").Inc()
			s.cached[includeArchive] = chats

			return cloneChats(chats), nil
		}
	}

	observability.ChatCacheHits.WithLabelValues("miss").Inc()

	chats, err := s.fullScan(ctx, includeArchive)
	if err != nil {
		return nil, err
	}

	s.cached[includeArchive] = chats
	s.saveCache(includeArchive, chats)

	return cloneChats(chats), nil
}

// fullScan walks date directories newest-first, so the first sighting of a
// chat id already carries its true latest activity; older sightings only get
// to upgrade a placeholder name.
func (s *Scanner) fullScan(ctx context.Context, includeArchive bool) ([]domain.Chat, error) {
	start := time.Now()

	dirs, err := s.corpus.DateDirs(includeArchive)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*domain.Chat)

	for i := len(dirs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err := s.corpus.WalkDate(dirs[i], func(f corpus.File) error {
			s.observe(byID, f)

			return nil
		}); err != nil {
			s.logger.Warn().Str("dir", dirs[i].Path).Err(err).Msg("skipping unreadable date directory")
		}
	}

	chats := make([]domain.Chat, 0, len(byID))
	for _, chat := range byID {
		chats = append(chats, *chat)
	}

	sort.Slice(chats, func(i, j int) bool { return chats[i].LastDate > chats[j].LastDate })

	observability.ChatScanDurationSeconds.Observe(time.Since(start).Seconds())
	s.logger.Info().Int("chats", len(chats)).Dur("elapsed", time.Since(start)).Msg("chat directory scan finished")

	return chats, nil
}

func (s *Scanner) observe(byID map[int64]*domain.Chat, f corpus.File) {
	raw, err := s.corpus.Read(f)
	if err != nil || len(raw) == 0 {
		return
	}

	msg, err := domain.NormalizeRaw(raw)
	if err != nil {
		return
	}

	if msg.ChatID == 0 && f.SubdirChatID != 0 {
		msg.ChatID = f.SubdirChatID
	}

	if msg.ChatID == 0 {
		return
	}

	seen, name := byID[msg.ChatID], chatNameOf(raw)

	if seen == nil {
		byID[msg.ChatID] = &domain.Chat{
			ID:          msg.ChatID,
			Name:        name,
			LastDate:    msg.Date,
			LastMessage: msg.Body(),
		}

		return
	}

	// newest-first walk: recency metadata is already correct, only a
	// placeholder name may be upgraded
	if domain.IsPlaceholderName(seen.Name, seen.ID) && !domain.IsPlaceholderName(name, msg.ChatID) {
		seen.Name = name
	}
}

func chatNameOf(raw []byte) string {
	chat, _ := domain.ChatOf(raw)

	return chat.Name
}

func cloneChats(chats []domain.Chat) []domain.Chat {
	out := make([]domain.Chat, len(chats))
	copy(out, chats)

	return out
}
