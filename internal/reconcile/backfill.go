package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/nkuznetsov/tgarchive/internal/corpus"
)

// backfillMinInterval debounces rapid scroll-triggered backfill requests.
const backfillMinInterval = time.Second

// Backfill loads the calendar day immediately preceding the oldest tracked
// day and merges it additively — history never overwrites what the live poll
// already holds. It is a no-op when a backfill is in flight, one ran less
// than a second ago, or the target day is already loaded. The viewport is
// restored by the content-height delta around the insertion.
func (e *Engine) Backfill(ctx context.Context) error {
	e.backfillMu.Lock()

	if e.backfillRunning || time.Since(e.lastBackfill) < backfillMinInterval {
		e.backfillMu.Unlock()

		return nil
	}

	day, ok := e.previousDayLocked()
	if !ok {
		e.backfillMu.Unlock()

		return nil
	}

	dayName := day.Format(corpus.DateLayout)
	if _, loaded := e.loadedDays[dayName]; loaded {
		e.lastBackfill = time.Now()
		e.backfillMu.Unlock()

		return nil
	}

	e.backfillRunning = true
	e.lastBackfill = time.Now()
	e.backfillMu.Unlock()

	defer func() {
		e.backfillMu.Lock()
		e.backfillRunning = false
		e.backfillMu.Unlock()
	}()

	heightBefore := e.renderer.ContentHeight()

	msgs, err := e.fetcher.Messages(ctx, Query{Date: dayName, Group: "allPrivate"})
	if err != nil {
		return e.classify(fmt.Errorf("backfill %s: %w", dayName, err))
	}

	e.render(e.store.Merge(msgs, false))

	e.backfillMu.Lock()
	e.loadedDays[dayName] = struct{}{}
	e.oldestDay = day
	e.backfillMu.Unlock()

	e.renderer.RestoreScroll(e.renderer.ContentHeight() - heightBefore)

	return nil
}

// previousDayLocked computes the day before the oldest tracked day pointer,
// falling back to the oldest loaded message's day. Caller holds backfillMu.
func (e *Engine) previousDayLocked() (time.Time, bool) {
	anchor := e.oldestDay
	if anchor.IsZero() {
		oldest, ok := e.store.OldestDate()
		if !ok {
			return time.Time{}, false
		}

		anchor = oldest
	}

	day := anchor.AddDate(0, 0, -1)

	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()), true
}
