// Package reconcile implements the client-side reconciliation engine: a
// polling consumer of the archive HTTP API that keeps a flat chronological
// message store, a derived per-chat grouping, and hash-gated render
// decisions consistent across poll, active-chat and backfill merges.
package reconcile

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// Group is one conversation's derived view over the flat list.
type Group struct {
	ID       int64
	Name     string
	Messages []*domain.Message
	Last     *domain.Message
}

// Store holds the single flat message sequence that is the client's source
// of truth. The per-chat grouping is always recomputed from scratch from the
// flat list, never patched incrementally, so it can never silently diverge.
type Store struct {
	mu     sync.Mutex
	flat   []*domain.Message
	groups map[int64]*Group
	hashes map[string]string
	names  map[int64]string
}

func NewStore() *Store {
	return &Store{
		groups: make(map[int64]*Group),
		hashes: make(map[string]string),
		names:  make(map[int64]string),
	}
}

// Merge folds fetched messages into the flat list. In corrective mode an
// existing entry is replaced in place so reaction and edit updates land; in
// additive mode (history backfill) existing entries are left untouched.
// After merging the flat list is re-sorted by timestamp — fetch order never
// implies final order — and the grouping is recomputed. Returns the messages
// whose rendered content changed.
func (s *Store) Merge(incoming []*domain.Message, corrective bool) []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := make(map[string]int, len(s.flat))
	for i, msg := range s.flat {
		byKey[normalizedKey(msg)] = i
	}

	var changed []*domain.Message

	for _, msg := range incoming {
		if msg == nil {
			continue
		}

		key := normalizedKey(msg)
		hash := contentHash(msg)

		if i, ok := byKey[key]; ok {
			if !corrective {
				continue
			}

			if s.hashes[key] == hash {
				continue
			}

			s.flat[i] = msg
			s.hashes[key] = hash
			changed = append(changed, msg)

			continue
		}

		byKey[key] = len(s.flat)
		s.flat = append(s.flat, msg)
		s.hashes[key] = hash
		changed = append(changed, msg)
	}

	sort.SliceStable(s.flat, func(i, j int) bool {
		if s.flat[i].Date != s.flat[j].Date {
			return s.flat[i].Date < s.flat[j].Date
		}

		return s.flat[i].MessageID < s.flat[j].MessageID
	})

	s.partitionLocked()

	return changed
}

// RememberName records a chat display name for grouping, from the chat list.
func (s *Store) RememberName(id int64, name string) {
	s.mu.Lock()
	s.names[id] = name
	s.partitionLocked()
	s.mu.Unlock()
}

// partitionLocked rebuilds the chat grouping from the flat list from
// scratch. flatten(partition(M)) must always reproduce M exactly.
func (s *Store) partitionLocked() {
	groups := make(map[int64]*Group)

	for _, msg := range s.flat {
		id := msg.ChatID

		g, ok := groups[id]
		if !ok {
			g = &Group{ID: id, Name: s.names[id]}
			groups[id] = g
		}

		g.Messages = append(g.Messages, msg)

		if g.Last == nil || msg.Date >= g.Last.Date {
			g.Last = msg
		}
	}

	s.groups = groups
}

// Flat returns a snapshot of the flat chronological list.
func (s *Store) Flat() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Message, len(s.flat))
	copy(out, s.flat)

	return out
}

// Group returns a snapshot of one conversation's derived view.
func (s *Store) Group(id int64) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return Group{}, false
	}

	msgs := make([]*domain.Message, len(g.Messages))
	copy(msgs, g.Messages)

	return Group{ID: g.ID, Name: g.Name, Messages: msgs, Last: g.Last}, true
}

// GroupIDs returns the ids of all derived groups.
func (s *Store) GroupIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(s.groups))
	for id := range s.groups {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// MaxMessageID returns the highest message id observed, the since-cursor for
// the next poll.
func (s *Store) MaxMessageID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max int64

	for _, msg := range s.flat {
		if msg.MessageID > max {
			max = msg.MessageID
		}
	}

	return max
}

// OldestDate returns the day of the oldest loaded message.
func (s *Store) OldestDate() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.flat) == 0 {
		return time.Time{}, false
	}

	return time.Unix(s.flat[0].Date, 0), true
}

// Len returns the number of loaded messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.flat)
}

// normalizedKey is the string-normalized composite identity used for merge
// lookups.
func normalizedKey(msg *domain.Message) string {
	return strconv.FormatInt(msg.ChatID, 10) + ":" + strconv.FormatInt(msg.MessageID, 10)
}

// contentHash digests the render-relevant content of a message. Messages
// whose hash is unchanged are never repainted.
func contentHash(msg *domain.Message) string {
	reactions, _ := json.Marshal(msg.Reactions)

	h := sha1.New()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%s|%s", msg.ChatID, msg.MessageID, msg.Text, msg.Caption, msg.Type, msg.MediaRef, reactions)

	return hex.EncodeToString(h.Sum(nil))
}
