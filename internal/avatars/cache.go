// Package avatars resolves user profile photos asynchronously, decoupled
// from message ingestion latency. Lookup order: memory cache, then
// pending-request dedup, then a background fetch whose result notifies every
// waiting subscriber exactly once. A confirmed "no photo" is remembered via
// the none sentinel so it is never re-fetched.
package avatars

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
	"github.com/nkuznetsov/tgarchive/internal/platform/worker"
)

// Fetcher resolves a user's profile photo URL, empty when none exists.
type Fetcher interface {
	ProfilePhotoURL(ctx context.Context, userID int64) (string, error)
}

// Store is the optional persistence backend: previously resolved photo urls
// are read back before the bot API is asked, and new results written through.
type Store interface {
	User(ctx context.Context, userID int64) (*domain.User, error)
	SetUserPhoto(ctx context.Context, userID int64, photoURL string) error
}

const queueCapacity = 256

type Cache struct {
	fetcher Fetcher
	store   Store
	logger  *zerolog.Logger

	mu      sync.Mutex
	urls    map[int64]string
	pending map[int64][]chan string

	queue chan int64
}

// New builds the cache. The instance is constructed once at startup and
// passed to its consumers explicitly; store may be nil.
func New(fetcher Fetcher, store Store, logger *zerolog.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		urls:    make(map[int64]string),
		pending: make(map[int64][]chan string),
		queue:   make(chan int64, queueCapacity),
	}
}

// Get returns the cached photo url. The second result reports whether the
// user has been checked at all; a checked user without a photo yields ("",
// true).
func (c *Cache) Get(userID int64) (string, bool) {
	c.mu.Lock()
	url, ok := c.urls[userID]
	c.mu.Unlock()

	if url == domain.PhotoNone {
		return "", true
	}

	return url, ok
}

// Resolve subscribes to a user's photo resolution. The returned channel
// receives exactly one value (possibly empty for "no photo") and is then
// closed. Concurrent resolves for the same user share one fetch.
func (c *Cache) Resolve(userID int64) <-chan string {
	ch := make(chan string, 1)

	c.mu.Lock()

	if url, ok := c.urls[userID]; ok {
		c.mu.Unlock()

		if url == domain.PhotoNone {
			url = ""
		}

		ch <- url
		close(ch)

		return ch
	}

	waiting := c.pending[userID]
	c.pending[userID] = append(waiting, ch)
	first := len(waiting) == 0

	c.mu.Unlock()

	if first {
		select {
		case c.queue <- userID:
		default:
			// queue full: fail the subscribers now rather than hang them
			c.notify(userID, "")
		}
	}

	return ch
}

// Run drains the fetch queue until the context is canceled.
func (c *Cache) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("avatar cache: %w", ctx.Err())
		case userID := <-c.queue:
			c.fetch(ctx, userID)
		}
	}
}

func (c *Cache) fetch(ctx context.Context, userID int64) {
	defer worker.RecoverPanic(c.logger, "avatar fetch")

	if url, ok := c.fromStore(ctx, userID); ok {
		c.mu.Lock()
		c.urls[userID] = url
		c.mu.Unlock()

		if url == domain.PhotoNone {
			url = ""
		}

		c.notify(userID, url)

		return
	}

	url, err := c.fetcher.ProfilePhotoURL(ctx, userID)
	if err != nil {
		observability.AvatarFetches.WithLabelValues("error").Inc()
		c.logger.Debug().Int64("user", userID).Err(err).Msg("avatar fetch failed")
		// transient failure: do not poison the cache, notify with nothing
		c.notify(userID, "")

		return
	}

	stored := url
	if stored == "" {
		stored = domain.PhotoNone

		observability.AvatarFetches.WithLabelValues("none").Inc()
	} else {
		observability.AvatarFetches.WithLabelValues("ok").Inc()
	}

	c.mu.Lock()
	c.urls[userID] = stored
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SetUserPhoto(ctx, userID, stored); err != nil {
			c.logger.Debug().Int64("user", userID).Err(err).Msg("photo write-through failed")
		}
	}

	c.notify(userID, url)
}

// fromStore reads a previously persisted photo url, including the none
// sentinel. A miss or read error falls through to the bot API.
func (c *Cache) fromStore(ctx context.Context, userID int64) (string, bool) {
	if c.store == nil {
		return "", false
	}

	user, err := c.store.User(ctx, userID)
	if err != nil || user == nil || user.PhotoURL == "" {
		return "", false
	}

	observability.AvatarFetches.WithLabelValues("store").Inc()

	return user.PhotoURL, true
}

// notify delivers the result to every subscriber exactly once.
func (c *Cache) notify(userID int64, url string) {
	c.mu.Lock()
	waiting := c.pending[userID]
	delete(c.pending, userID)
	c.mu.Unlock()

	for _, ch := range waiting {
		ch <- url
		close(ch)
	}
}
