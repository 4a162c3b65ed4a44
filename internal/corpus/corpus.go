// Package corpus implements the on-disk message layout: one JSON file per
// message under locale-formatted date directories, with optional per-chat
// subdirectories for group chats. The corpus is the source of truth; the
// relational store is a mirror of it.
package corpus

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DateLayout is the directory naming convention, e.g. 19.01.2026.
const DateLayout = "02.01.2006"

// Corpus provides read/write access to one corpus root. A second root holds
// archived (cold) chats and is consulted only on request.
type Corpus struct {
	root        string
	archiveRoot string
	logger      *zerolog.Logger

	mu    sync.RWMutex
	index map[string]string // "chatID:messageID" -> file path
}

func New(root, archiveRoot string, logger *zerolog.Logger) *Corpus {
	return &Corpus{
		root:        root,
		archiveRoot: archiveRoot,
		logger:      logger,
		index:       make(map[string]string),
	}
}

func (c *Corpus) Root() string { return c.root }

// DateDir is one calendar day's directory within a corpus root.
type DateDir struct {
	Path string
	Name string
	Date time.Time
}

// DateDirs lists date directories across the live root (and the archive root
// when requested), sorted oldest first. Non-date entries are ignored.
func (c *Corpus) DateDirs(includeArchive bool) ([]DateDir, error) {
	roots := []string{c.root}
	if includeArchive && c.archiveRoot != "" {
		roots = append(roots, c.archiveRoot)
	}

	var dirs []DateDir

	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, err
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}

			date, err := time.Parse(DateLayout, e.Name())
			if err != nil {
				continue
			}

			dirs = append(dirs, DateDir{
				Path: filepath.Join(root, e.Name()),
				Name: e.Name(),
				Date: date,
			})
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Date.Before(dirs[j].Date) })

	return dirs, nil
}

// File is one message file discovered during a walk. SubdirChatID is nonzero
// when the file lives in a per-chat subdirectory.
type File struct {
	Path         string
	SubdirChatID int64
	ModTime      time.Time
	Size         int64
}

// WalkDate visits every message file under one date directory, flat files
// first, then per-chat subdirectories. The callback decides what to do with
// unreadable content; WalkDate itself only skips non-json entries.
func (c *Corpus) WalkDate(dir DateDir, fn func(f File) error) error {
	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			chatID, err := strconv.ParseInt(e.Name(), 10, 64)
			if err != nil {
				continue
			}

			if err := c.walkChatDir(filepath.Join(dir.Path, e.Name()), chatID, fn); err != nil {
				return err
			}

			continue
		}

		f, ok := statFile(dir.Path, e)
		if !ok {
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

func (c *Corpus) walkChatDir(path string, chatID int64, fn func(f File) error) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		f, ok := statFile(path, e)
		if !ok {
			continue
		}

		f.SubdirChatID = chatID

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

func statFile(dir string, e os.DirEntry) (File, bool) {
	if !strings.HasSuffix(e.Name(), ".json") {
		return File{}, false
	}

	info, err := e.Info()
	if err != nil {
		return File{}, false
	}

	return File{
		Path:    filepath.Join(dir, e.Name()),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, true
}

// Read returns a message file's raw bytes. Zero-byte files yield nil with no
// error; corruption is the caller's concern (skip-and-continue everywhere).
func (c *Corpus) Read(f File) ([]byte, error) {
	if f.Size == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil
	}

	return data, nil
}

func indexKey(chatID, messageID int64) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(messageID, 10)
}

// RememberPath records a message file location in the in-memory index, built
// as a side effect of walks so reaction persistence avoids directory probing.
func (c *Corpus) RememberPath(chatID, messageID int64, path string) {
	c.mu.Lock()
	c.index[indexKey(chatID, messageID)] = path
	c.mu.Unlock()
}

// KnownPath looks up a message file location from the index.
func (c *Corpus) KnownPath(chatID, messageID int64) (string, bool) {
	c.mu.RLock()
	path, ok := c.index[indexKey(chatID, messageID)]
	c.mu.RUnlock()

	return path, ok
}
