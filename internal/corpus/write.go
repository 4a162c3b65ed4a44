package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// reactionProbeDays bounds the fallback search for a message file when the
// index has no entry (for example right after a restart).
const reactionProbeDays = 31

// WriteMessage persists a message into the corpus at
// <root>/<DD.MM.YYYY>/[<chatID>/]<messageID>.json. Group and channel chats
// get a per-chat subdirectory; private chats use flat files.
func (c *Corpus) WriteMessage(msg *domain.Message) (string, error) {
	date := time.Unix(msg.Date, 0)
	if msg.Date == 0 {
		date = time.Now()
	}

	dir := filepath.Join(c.root, date.Format(DateLayout))

	_, kind := domain.ChatOf(msg.Raw)
	if kind != domain.KindPrivate {
		dir = filepath.Join(dir, strconv.FormatInt(msg.ChatID, 10))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create date dir: %w", err)
	}

	data := []byte(msg.Raw)
	if len(data) == 0 {
		var err error

		data, err = json.Marshal(msg)
		if err != nil {
			return "", fmt.Errorf("encode message: %w", err)
		}
	}

	path := filepath.Join(dir, strconv.FormatInt(msg.MessageID, 10)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write message file: %w", err)
	}

	c.RememberPath(msg.ChatID, msg.MessageID, path)

	return path, nil
}

// ApplyReaction mutates the stored message file so a reaction set through the
// bot API is also visible on the next corpus read. The path comes from the
// walk-built index; a bounded recent-directory probe covers index misses.
func (c *Corpus) ApplyReaction(chatID, messageID int64, emoji, action string) error {
	path, ok := c.KnownPath(chatID, messageID)
	if !ok {
		var err error

		path, err = c.probeForMessage(chatID, messageID)
		if err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read message file: %w", err)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode message file: %w", err)
	}

	reactions := mutateReactions(payload["reactions"], emoji, action)

	encoded, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}

	payload["reactions"] = encoded

	updated, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message file: %w", err)
	}

	if err := os.WriteFile(path, updated, 0o644); err != nil {
		return fmt.Errorf("write message file: %w", err)
	}

	return nil
}

func mutateReactions(raw json.RawMessage, emoji, action string) []domain.Reaction {
	reactions := domain.NormalizeReactions(raw)

	idx := -1

	for i, r := range reactions {
		if r.Emoji == emoji && r.IsOwn {
			idx = i
			break
		}
	}

	switch action {
	case "remove":
		if idx >= 0 {
			reactions = append(reactions[:idx], reactions[idx+1:]...)
		}
	default: // add
		if idx < 0 {
			reactions = append(reactions, domain.Reaction{Emoji: emoji, Count: 1, IsOwn: true})
		}
	}

	return reactions
}

func (c *Corpus) probeForMessage(chatID, messageID int64) (string, error) {
	dirs, err := c.DateDirs(false)
	if err != nil {
		return "", err
	}

	name := strconv.FormatInt(messageID, 10) + ".json"

	probed := 0
	for i := len(dirs) - 1; i >= 0 && probed < reactionProbeDays; i-- {
		probed++

		candidates := []string{
			filepath.Join(dirs[i].Path, strconv.FormatInt(chatID, 10), name),
			filepath.Join(dirs[i].Path, name),
		}

		for _, path := range candidates {
			if _, err := os.Stat(path); err == nil {
				c.RememberPath(chatID, messageID, path)

				return path, nil
			}
		}
	}

	return "", fmt.Errorf("message file not found for %d:%d", chatID, messageID)
}
