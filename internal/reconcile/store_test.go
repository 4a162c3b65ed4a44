package reconcile

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

func msg(chatID, messageID, date int64, text string) *domain.Message {
	return &domain.Message{
		ChatID:    chatID,
		MessageID: messageID,
		Date:      date,
		Text:      text,
		Type:      domain.TypeText,
	}
}

func TestPartitionFlattenRoundTrip(t *testing.T) {
	store := NewStore()
	store.Merge([]*domain.Message{
		msg(1, 10, 100, "a"),
		msg(2, 11, 101, "b"),
		msg(1, 12, 102, "c"),
		msg(3, 13, 103, "d"),
		msg(2, 14, 104, "e"),
	}, true)

	var flattened []string
	for _, id := range store.GroupIDs() {
		g, ok := store.Group(id)
		require.True(t, ok)

		for _, m := range g.Messages {
			flattened = append(flattened, normalizedKey(m))
		}
	}

	var flat []string
	for _, m := range store.Flat() {
		flat = append(flat, normalizedKey(m))
	}

	sort.Strings(flattened)
	sort.Strings(flat)
	assert.Equal(t, flat, flattened)
	assert.Len(t, flat, 5)
}

func TestMergeKeepsOneEntryPerIdentity(t *testing.T) {
	store := NewStore()
	store.Merge([]*domain.Message{msg(1, 10, 100, "original")}, true)

	edited := msg(1, 10, 100, "edited")
	changed := store.Merge([]*domain.Message{edited, msg(1, 10, 100, "edited")}, true)

	require.Len(t, changed, 1)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, "edited", store.Flat()[0].Text)
}

func TestMergeSameMessageIDAcrossChats(t *testing.T) {
	store := NewStore()
	store.Merge([]*domain.Message{
		msg(1, 10, 100, "chat one"),
		msg(2, 10, 101, "chat two"),
	}, true)

	assert.Equal(t, 2, store.Len())
}

func TestCorrectiveMergeReplacesOnlyOnContentChange(t *testing.T) {
	store := NewStore()
	store.Merge([]*domain.Message{msg(1, 10, 100, "hello")}, true)

	unchanged := store.Merge([]*domain.Message{msg(1, 10, 100, "hello")}, true)
	assert.Empty(t, unchanged)

	withReaction := msg(1, 10, 100, "hello")
	withReaction.Reactions = []domain.Reaction{{Emoji: "👍", Count: 1}}

	changed := store.Merge([]*domain.Message{withReaction}, true)
	require.Len(t, changed, 1)
	assert.Equal(t, withReaction.Reactions, store.Flat()[0].Reactions)
}

func TestAdditiveMergeNeverOverwrites(t *testing.T) {
	store := NewStore()
	store.Merge([]*domain.Message{msg(1, 10, 100, "live")}, true)

	changed := store.Merge([]*domain.Message{
		msg(1, 10, 100, "stale history copy"),
		msg(1, 5, 50, "older"),
	}, false)

	require.Len(t, changed, 1)
	assert.Equal(t, int64(5), changed[0].MessageID)

	flat := store.Flat()
	require.Len(t, flat, 2)
	assert.Equal(t, "older", flat[0].Text)
	assert.Equal(t, "live", flat[1].Text)
}

func TestFlatOrderIsChronological(t *testing.T) {
	store := NewStore()
	store.Merge([]*domain.Message{
		msg(1, 30, 300, "newest"),
		msg(1, 10, 100, "oldest"),
		msg(1, 21, 200, "tie-b"),
		msg(1, 20, 200, "tie-a"),
	}, true)

	flat := store.Flat()
	require.Len(t, flat, 4)
	assert.Equal(t, "oldest", flat[0].Text)
	assert.Equal(t, "tie-a", flat[1].Text)
	assert.Equal(t, "tie-b", flat[2].Text)
	assert.Equal(t, "newest", flat[3].Text)
}

func TestGroupLastTracksNewest(t *testing.T) {
	store := NewStore()
	store.RememberName(1, "alice")
	store.Merge([]*domain.Message{
		msg(1, 10, 100, "first"),
		msg(1, 11, 200, "latest"),
	}, true)

	g, ok := store.Group(1)
	require.True(t, ok)
	assert.Equal(t, "alice", g.Name)
	require.NotNil(t, g.Last)
	assert.Equal(t, "latest", g.Last.Text)
}

func TestMaxMessageIDAndOldestDate(t *testing.T) {
	store := NewStore()

	_, ok := store.OldestDate()
	assert.False(t, ok)
	assert.Zero(t, store.MaxMessageID())

	store.Merge([]*domain.Message{
		msg(1, 42, 500, "a"),
		msg(2, 7, 100, "b"),
	}, true)

	assert.Equal(t, int64(42), store.MaxMessageID())

	oldest, ok := store.OldestDate()
	require.True(t, ok)
	assert.Equal(t, int64(100), oldest.Unix())
}
