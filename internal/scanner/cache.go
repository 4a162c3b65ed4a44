package scanner

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// cacheArtifact is the on-disk shape of the scanner cache. It records which
// roots the scan covered so a stale inclusion never satisfies a request.
type cacheArtifact struct {
	ScannedAt      int64         `json:"scanned_at"`
	IncludeArchive bool          `json:"include_archive"`
	Chats          []domain.Chat `json:"chats"`
}

func (s *Scanner) loadCache(includeArchive bool) ([]domain.Chat, bool) {
	if s.cachePath == "" {
		return nil, false
	}

	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		return nil, false
	}

	var artifact cacheArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		s.logger.Warn().Str("path", s.cachePath).Err(err).Msg("chat cache corrupt, rescanning")

		return nil, false
	}

	if artifact.IncludeArchive != includeArchive {
		return nil, false
	}

	if len(artifact.Chats) == 0 {
		return nil, false
	}

	return artifact.Chats, true
}

func (s *Scanner) saveCache(includeArchive bool, chats []domain.Chat) {
	if s.cachePath == "" {
		return
	}

	data, err := json.Marshal(cacheArtifact{ScannedAt: time.Now().Unix(), IncludeArchive: includeArchive, Chats: chats})
	if err != nil {
		return
	}

	if err := os.WriteFile(s.cachePath, data, 0o644); err != nil {
		s.logger.Warn().Str("path", s.cachePath).Err(err).Msg("failed to persist chat cache")
	}
}
