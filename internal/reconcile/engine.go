package reconcile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
	"github.com/nkuznetsov/tgarchive/internal/platform/worker"
)

// Query is the message fetch request the engine issues against the API.
type Query struct {
	Since          int64
	Date           string
	Group          string
	Limit          int
	IncludeArchive bool
}

// Fetcher is the server surface the engine polls.
type Fetcher interface {
	// Messages returns records ordered by recency descending.
	Messages(ctx context.Context, q Query) ([]*domain.Message, error)
	Chats(ctx context.Context, force bool) ([]domain.Chat, error)
}

// Renderer receives render decisions. Implementations own the actual
// presentation; the engine only decides what must repaint.
type Renderer interface {
	// RenderChats repaints the chat list.
	RenderChats(chats []domain.Chat)

	// RenderMessage repaints one message whose content hash changed.
	RenderMessage(msg *domain.Message)

	// IsPlaying reports whether the message's media element is currently
	// playing. Playing elements are never replaced, regardless of hash.
	IsPlaying(key string) bool

	// ContentHeight and RestoreScroll let backfill preserve the viewport.
	ContentHeight() int
	RestoreScroll(delta int)
}

const (
	chatRefreshInterval  = 15 * time.Second
	activeChatFetchLimit = 50
	defaultLatestLimit   = 200
	defaultPollInterval  = 3 * time.Second
)

// Config tunes the engine.
type Config struct {
	PollInterval time.Duration
	LatestLimit  int
	DateFilter   string // optional DD.MM.YYYY scope for every poll fetch
}

type Engine struct {
	fetcher  Fetcher
	renderer Renderer
	store    *Store
	cfg      Config
	logger   *zerolog.Logger

	mu              sync.Mutex
	activeChat      int64
	chats           []domain.Chat
	lastChatRefresh time.Time
	lastChatsHash   string

	backfillMu      sync.Mutex
	backfillRunning bool
	lastBackfill    time.Time
	loadedDays      map[string]struct{}
	oldestDay       time.Time
}

func NewEngine(fetcher Fetcher, renderer Renderer, store *Store, cfg Config, logger *zerolog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.LatestLimit <= 0 {
		cfg.LatestLimit = defaultLatestLimit
	}

	return &Engine{
		fetcher:    fetcher,
		renderer:   renderer,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		loadedDays: make(map[string]struct{}),
	}
}

// Store exposes the engine's message store.
func (e *Engine) Store() *Store { return e.store }

// SetActiveChat records the conversation the user has open. Zero clears it.
func (e *Engine) SetActiveChat(id int64) {
	e.mu.Lock()
	e.activeChat = id
	e.mu.Unlock()
}

// ActiveChat returns the open conversation id, zero for none.
func (e *Engine) ActiveChat() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.activeChat
}

// Run drives the periodic poll cycle until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "client poll",
		PollInterval: e.cfg.PollInterval,
		Process:      e.Cycle,
		Logger:       e.logger,
	})
}

// Cycle executes one reconciliation pass: chat-list refresh, since-cursor
// message fetch with corrective merge and re-partition, hash-gated render,
// then the active-chat incremental update.
func (e *Engine) Cycle(ctx context.Context) error {
	if err := e.refreshChats(ctx); err != nil {
		return e.classify(err)
	}

	if err := e.fetchNew(ctx); err != nil {
		return e.classify(err)
	}

	if err := e.refreshActive(ctx); err != nil {
		return e.classify(err)
	}

	observability.PollCycles.WithLabelValues("ok").Inc()

	return nil
}

// classify swallows generic connectivity failures — transient network jitter
// would otherwise spam the log every poll — while surfacing anything that
// looks like a programming error.
func (e *Engine) classify(err error) error {
	observability.PollCycles.WithLabelValues("error").Inc()

	if isConnectivityError(err) {
		e.logger.Debug().Err(err).Msg("poll skipped on connectivity error")

		return nil
	}

	return err
}

func isConnectivityError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded)
}

// refreshChats fetches chat summaries at most every 15 seconds (always when
// none are loaded yet) and repaints the list only when the content hash over
// (id, last activity) pairs moved.
func (e *Engine) refreshChats(ctx context.Context) error {
	e.mu.Lock()
	due := len(e.chats) == 0 || time.Since(e.lastChatRefresh) >= chatRefreshInterval
	e.mu.Unlock()

	if !due {
		return nil
	}

	chats, err := e.fetcher.Chats(ctx, false)
	if err != nil {
		return fmt.Errorf("fetch chats: %w", err)
	}

	hash := chatListHash(chats)

	e.mu.Lock()
	e.chats = chats
	e.lastChatRefresh = time.Now()
	unchanged := hash == e.lastChatsHash
	e.lastChatsHash = hash
	e.mu.Unlock()

	for _, chat := range chats {
		e.store.RememberName(chat.ID, chat.Name)
	}

	if unchanged {
		return nil
	}

	e.renderer.RenderChats(chats)

	return nil
}

func chatListHash(chats []domain.Chat) string {
	h := sha1.New()
	for _, chat := range chats {
		fmt.Fprintf(h, "%d:%d;", chat.ID, chat.LastDate)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// fetchNew pulls messages past the since-cursor and folds them in. The
// initial load asks for the most recent N (server order is descending) and
// inverts to chronological before merging.
func (e *Engine) fetchNew(ctx context.Context) error {
	q := Query{
		Since: e.store.MaxMessageID(),
		Date:  e.cfg.DateFilter,
		Group: "allPrivate",
	}

	if q.Since == 0 && q.Date == "" {
		q.Limit = e.cfg.LatestLimit
	}

	msgs, err := e.fetcher.Messages(ctx, q)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	// descending by recency -> chronological
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	e.render(e.store.Merge(msgs, true))

	return nil
}

// refreshActive re-fetches the open conversation's tail so reaction and edit
// updates a since-cursor fetch cannot see still land. The response is only
// applied when the conversation is still the active one.
func (e *Engine) refreshActive(ctx context.Context) error {
	id := e.ActiveChat()
	if id == 0 {
		return nil
	}

	msgs, err := e.fetcher.Messages(ctx, Query{
		Group: strconv.FormatInt(id, 10),
		Limit: activeChatFetchLimit,
	})
	if err != nil {
		return fmt.Errorf("fetch active chat: %w", err)
	}

	// the user may have navigated away while the fetch was in flight
	if e.ActiveChat() != id {
		return nil
	}

	e.render(e.store.Merge(msgs, true))

	return nil
}

// render repaints changed messages, skipping any element whose media is
// currently playing no matter what its hash says.
func (e *Engine) render(changed []*domain.Message) {
	for _, msg := range changed {
		if e.renderer.IsPlaying(normalizedKey(msg)) {
			continue
		}

		e.renderer.RenderMessage(msg)
	}
}
