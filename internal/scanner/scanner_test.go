package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkuznetsov/tgarchive/internal/corpus"
)

func newScanner(t *testing.T) (*Scanner, string) {
	t.Helper()

	root := t.TempDir()
	logger := zerolog.Nop()
	c := corpus.New(root, "", &logger)
	cachePath := filepath.Join(t.TempDir(), "chats.json")

	return New(c, cachePath, &logger), root
}

func write(t *testing.T, root string, parts ...string) {
	t.Helper()

	path := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(parts[len(parts)-1]), 0o644))
}

func TestScanDerivesChatsNewestFirst(t *testing.T) {
	s, root := newScanner(t)
	write(t, root, "18.01.2026", "1.json", `{"message_id":1,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":100,"text":"old"}`)
	write(t, root, "19.01.2026", "2.json", `{"message_id":2,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":200,"text":"new"}`)
	write(t, root, "19.01.2026", "-7", "3.json", `{"message_id":3,"chat":{"id":-7,"type":"group","title":"Friends"},"date":300,"text":"grp"}`)

	chats, err := s.Chats(context.Background(), false, true)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	// ordered by recency
	assert.Equal(t, int64(-7), chats[0].ID)
	assert.Equal(t, "Friends", chats[0].Name)
	assert.Equal(t, int64(555), chats[1].ID)
	assert.Equal(t, "Ann", chats[1].Name)
	assert.Equal(t, int64(200), chats[1].LastDate)
	assert.Equal(t, "new", chats[1].LastMessage)
}

func TestScanUpgradesPlaceholderNameOnly(t *testing.T) {
	s, root := newScanner(t)
	// newest sighting has no name, an older one does
	write(t, root, "19.01.2026", "2.json", `{"message_id":2,"chat":{"id":555,"type":"private"},"date":200,"text":"new"}`)
	write(t, root, "18.01.2026", "1.json", `{"message_id":1,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":100,"text":"old"}`)

	chats, err := s.Chats(context.Background(), false, true)
	require.NoError(t, err)
	require.Len(t, chats, 1)

	assert.Equal(t, "Ann", chats[0].Name)
	// recency still comes from the newest sighting
	assert.Equal(t, int64(200), chats[0].LastDate)
}

func TestScanServesFromCache(t *testing.T) {
	s, root := newScanner(t)
	write(t, root, "19.01.2026", "1.json", `{"message_id":1,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":100,"text":"x"}`)

	chats, err := s.Chats(context.Background(), false, false)
	require.NoError(t, err)
	require.Len(t, chats, 1)

	// the corpus changes; without force the cache answer stands
	write(t, root, "19.01.2026", "2.json", `{"message_id":2,"chat":{"id":777,"type":"private","first_name":"Bob"},"date":200,"text":"y"}`)

	chats, err = s.Chats(context.Background(), false, false)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	chats, err = s.Chats(context.Background(), false, true)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestScanCachesPerArchiveInclusion(t *testing.T) {
	root := t.TempDir()
	archiveRoot := t.TempDir()
	logger := zerolog.Nop()
	c := corpus.New(root, archiveRoot, &logger)
	cachePath := filepath.Join(t.TempDir(), "chats.json")
	s := New(c, cachePath, &logger)

	write(t, root, "19.01.2026", "1.json", `{"message_id":1,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":200,"text":"live"}`)
	write(t, archiveRoot, "12.01.2026", "2.json", `{"message_id":2,"chat":{"id":777,"type":"private","first_name":"Bob"},"date":100,"text":"archived"}`)

	chats, err := s.Chats(context.Background(), false, false)
	require.NoError(t, err)
	require.Len(t, chats, 1)

	// a warm live-only cache must not shadow the archived chat
	chats, err = s.Chats(context.Background(), true, false)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, int64(555), chats[0].ID)
	assert.Equal(t, int64(777), chats[1].ID)

	chats, err = s.Chats(context.Background(), false, false)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestDiskCacheRejectsMismatchedInclusion(t *testing.T) {
	root := t.TempDir()
	archiveRoot := t.TempDir()
	logger := zerolog.Nop()
	cachePath := filepath.Join(t.TempDir(), "chats.json")

	write(t, root, "19.01.2026", "1.json", `{"message_id":1,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":200,"text":"live"}`)
	write(t, archiveRoot, "12.01.2026", "2.json", `{"message_id":2,"chat":{"id":777,"type":"private","first_name":"Bob"},"date":100,"text":"archived"}`)

	first := New(corpus.New(root, archiveRoot, &logger), cachePath, &logger)
	chats, err := first.Chats(context.Background(), false, false)
	require.NoError(t, err)
	require.Len(t, chats, 1)

	// fresh process, warm disk artifact from a live-only scan
	second := New(corpus.New(root, archiveRoot, &logger), cachePath, &logger)
	chats, err = second.Chats(context.Background(), true, false)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestScanCorruptCacheTriggersRescan(t *testing.T) {
	s, root := newScanner(t)
	write(t, root, "19.01.2026", "1.json", `{"message_id":1,"chat":{"id":555,"type":"private","first_name":"Ann"},"date":100,"text":"x"}`)

	require.NoError(t, os.WriteFile(s.cachePath, []byte("{broken"), 0o644))

	chats, err := s.Chats(context.Background(), false, false)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}
