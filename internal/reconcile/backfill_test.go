package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/corpus"
)

func dayBefore(unix int64) string {
	day := time.Unix(unix, 0).AddDate(0, 0, -1)

	return day.Format(corpus.DateLayout)
}

func TestBackfillFetchesPreviousDay(t *testing.T) {
	anchor := int64(1768800000)
	fetcher := &fakeFetcher{
		messages: map[string][]*domain.Message{
			dayBefore(anchor): {msg(1, 5, anchor - 86400, "yesterday")},
		},
	}
	renderer := &fakeRenderer{}
	engine := newTestEngine(fetcher, renderer)
	engine.Store().Merge([]*domain.Message{msg(1, 10, anchor, "today")}, true)

	require.NoError(t, engine.Backfill(context.Background()))

	calls := fetcher.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, dayBefore(anchor), calls[0].Date)
	assert.Equal(t, "allPrivate", calls[0].Group)
	assert.Equal(t, 2, engine.Store().Len())
}

func TestBackfillDebouncedWithinOneSecond(t *testing.T) {
	anchor := int64(1768800000)
	fetcher := &fakeFetcher{
		messages: map[string][]*domain.Message{
			dayBefore(anchor): {msg(1, 5, anchor - 86400, "yesterday")},
		},
	}
	renderer := &fakeRenderer{}
	engine := newTestEngine(fetcher, renderer)
	engine.Store().Merge([]*domain.Message{msg(1, 10, anchor, "today")}, true)

	require.NoError(t, engine.Backfill(context.Background()))
	require.NoError(t, engine.Backfill(context.Background()))

	assert.Len(t, fetcher.calls(), 1)
}

func TestBackfillSkipsAlreadyLoadedDay(t *testing.T) {
	anchor := int64(1768800000)
	fetcher := &fakeFetcher{
		messages: map[string][]*domain.Message{
			dayBefore(anchor): {msg(1, 5, anchor - 86400, "yesterday")},
		},
	}
	renderer := &fakeRenderer{}
	engine := newTestEngine(fetcher, renderer)
	engine.Store().Merge([]*domain.Message{msg(1, 10, anchor, "today")}, true)

	require.NoError(t, engine.Backfill(context.Background()))

	// re-anchor on the already-loaded day and defeat the debounce
	engine.backfillMu.Lock()
	engine.oldestDay = engine.oldestDay.AddDate(0, 0, 1)
	engine.lastBackfill = time.Now().Add(-time.Minute)
	engine.backfillMu.Unlock()

	require.NoError(t, engine.Backfill(context.Background()))

	assert.Len(t, fetcher.calls(), 1)
}

func TestBackfillWalksBackwardDayByDay(t *testing.T) {
	anchor := int64(1768800000)
	twoBack := time.Unix(anchor, 0).AddDate(0, 0, -2).Format(corpus.DateLayout)
	fetcher := &fakeFetcher{
		messages: map[string][]*domain.Message{
			dayBefore(anchor): {msg(1, 5, anchor - 86400, "yesterday")},
			twoBack:           {msg(1, 3, anchor - 2*86400, "day before")},
		},
	}
	renderer := &fakeRenderer{}
	engine := newTestEngine(fetcher, renderer)
	engine.Store().Merge([]*domain.Message{msg(1, 10, anchor, "today")}, true)

	require.NoError(t, engine.Backfill(context.Background()))

	engine.backfillMu.Lock()
	engine.lastBackfill = time.Now().Add(-time.Minute)
	engine.backfillMu.Unlock()

	require.NoError(t, engine.Backfill(context.Background()))

	calls := fetcher.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, twoBack, calls[1].Date)
	assert.Equal(t, 3, engine.Store().Len())
}

func TestBackfillNoOpOnEmptyStore(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{}
	engine := newTestEngine(fetcher, renderer)

	require.NoError(t, engine.Backfill(context.Background()))
	assert.Empty(t, fetcher.calls())
}

func TestBackfillRestoresScrollByHeightDelta(t *testing.T) {
	anchor := int64(1768800000)
	fetcher := &growingFetcher{
		fakeFetcher: fakeFetcher{
			messages: map[string][]*domain.Message{
				dayBefore(anchor): {msg(1, 5, anchor - 86400, "yesterday")},
			},
		},
	}
	renderer := &fakeRenderer{height: 1000}
	engine := newTestEngine(fetcher, renderer)
	engine.Store().Merge([]*domain.Message{msg(1, 10, anchor, "today")}, true)

	fetcher.renderer = renderer
	fetcher.grownHeight = 1400

	require.NoError(t, engine.Backfill(context.Background()))
	assert.Equal(t, 400, renderer.scrollDelta)
}

// growingFetcher bumps the rendered content height mid-backfill, the way
// prepending a day of history grows the document.
type growingFetcher struct {
	fakeFetcher
	renderer    *fakeRenderer
	grownHeight int
}

func (f *growingFetcher) Messages(ctx context.Context, q Query) ([]*domain.Message, error) {
	out, err := f.fakeFetcher.Messages(ctx, q)

	f.renderer.mu.Lock()
	f.renderer.height = f.grownHeight
	f.renderer.mu.Unlock()

	return out, err
}
