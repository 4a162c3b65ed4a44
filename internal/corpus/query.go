package corpus

import (
	"sort"
	"strconv"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// GroupAllPrivate disables chat filtering in a query.
const GroupAllPrivate = "allPrivate"

// Query selects messages from the corpus live tail.
type Query struct {
	Since          int64  // exclude message_id <= Since
	Date           string // DD.MM.YYYY; empty means newest dates first
	Group          string // GroupAllPrivate or a numeric chat id
	Limit          int
	IncludeArchive bool
}

// Messages reads the corpus and returns matching messages ordered by recency
// descending. Corrupt or empty files are skipped silently. When no date
// filter is set, date directories are consumed newest-first until the limit
// is satisfied.
func (c *Corpus) Messages(q Query) ([]*domain.Message, error) {
	dirs, err := c.DateDirs(q.IncludeArchive)
	if err != nil {
		return nil, err
	}

	// newest first
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}

	chatFilter, filtered := parseGroup(q.Group)

	seen := make(map[string]struct{})

	var out []*domain.Message

	for _, dir := range dirs {
		if q.Date != "" && dir.Name != q.Date {
			continue
		}

		if err := c.WalkDate(dir, func(f File) error {
			msg, ok := c.readMessage(f)
			if !ok {
				return nil
			}

			if q.Since > 0 && msg.MessageID <= q.Since {
				return nil
			}

			if filtered && msg.ChatID != chatFilter {
				return nil
			}

			// A chat may hold the same message as both a flat file and a
			// subdirectory file mid-migration; composite identity dedupes.
			key := msg.Key()
			if _, dup := seen[key]; dup {
				return nil
			}

			seen[key] = struct{}{}
			out = append(out, msg)

			return nil
		}); err != nil {
			return nil, err
		}

		if q.Date == "" && q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}

		return out[i].MessageID > out[j].MessageID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (c *Corpus) readMessage(f File) (*domain.Message, bool) {
	raw, err := c.Read(f)
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	msg, err := domain.NormalizeRaw(raw)
	if err != nil {
		c.logger.Debug().Str("path", f.Path).Err(err).Msg("skipping unparseable message file")

		return nil, false
	}

	if msg.ChatID == 0 && f.SubdirChatID != 0 {
		msg.ChatID = f.SubdirChatID
	}

	c.RememberPath(msg.ChatID, msg.MessageID, f.Path)

	return msg, true
}

func parseGroup(group string) (int64, bool) {
	if group == "" || group == GroupAllPrivate {
		return 0, false
	}

	id, err := strconv.ParseInt(group, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}
