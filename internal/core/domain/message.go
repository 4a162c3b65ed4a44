// Package domain defines the archive's core model: messages, chats, users,
// media type classification and normalization of raw Telegram payloads.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MediaType is the single authoritative media classification of a message.
type MediaType string

const (
	TypeText      MediaType = "text"
	TypePhoto     MediaType = "photo"
	TypeVideo     MediaType = "video"
	TypeVoice     MediaType = "voice"
	TypeAudio     MediaType = "audio"
	TypeSticker   MediaType = "sticker"
	TypeAnimation MediaType = "animation"
	TypeVideoNote MediaType = "video_note"
	TypeDocument  MediaType = "document"
	TypePoll      MediaType = "poll"
	TypeContact   MediaType = "contact"
	TypeDice      MediaType = "dice"
	TypeVenue     MediaType = "venue"
	TypeLocation  MediaType = "location"
	TypeUnknown   MediaType = "unknown"
)

// Reaction is one emoji reaction on a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	IsOwn bool   `json:"is_own,omitempty"`
}

// Message is one inbound or outbound chat event. Identity is the composite
// (ChatID, MessageID); MessageID alone is scoped per chat and not unique.
type Message struct {
	ChatID    int64           `json:"chat_id"`
	MessageID int64           `json:"message_id"`
	FromID    *int64          `json:"from_id,omitempty"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	Type      MediaType       `json:"type"`
	MediaRef  string          `json:"media_ref,omitempty"`
	Reactions []Reaction      `json:"reactions,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Body returns the displayable text of a message, preferring text over caption.
func (m *Message) Body() string {
	if m.Text != "" {
		return m.Text
	}

	return m.Caption
}

// Key returns the composite identity as a stable string.
func (m *Message) Key() string {
	return fmt.Sprintf("%d:%d", m.ChatID, m.MessageID)
}

// ChatKindPrivate and friends discriminate chat storage and filter branches.
type ChatKind string

const (
	KindPrivate ChatKind = "private"
	KindGroup   ChatKind = "group"
	KindChannel ChatKind = "channel"
)

// Chat is a conversation summary derived from its messages.
type Chat struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Photo       string `json:"photo,omitempty"`
	LastDate    int64  `json:"lastDate"`
	LastMessage string `json:"lastMessage,omitempty"`
}

// Kind resolves the chat kind. The chat.type field carried on messages is
// authoritative; the Telegram id sign convention (negative = group/channel)
// is the fallback only.
func Kind(typeField string, id int64) ChatKind {
	switch typeField {
	case "private":
		return KindPrivate
	case "group", "supergroup":
		return KindGroup
	case "channel":
		return KindChannel
	}

	if id < 0 {
		return KindGroup
	}

	return KindPrivate
}

// User is a sender identity. PhotoURL uses the sentinel "none" to record
// "checked, no photo exists" and short-circuit retries.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// PhotoNone marks a user whose profile photo was checked and does not exist.
const PhotoNone = "none"

// DisplayName derives a user's display name: full name, else username,
// else the raw id.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}

	if u.Username != "" {
		return u.Username
	}

	return strconv.FormatInt(u.ID, 10)
}

// IsPlaceholderName reports whether a chat name is just the bare id, i.e.
// a placeholder a scanner may later upgrade to a real name.
func IsPlaceholderName(name string, id int64) bool {
	return name == "" || name == strconv.FormatInt(id, 10)
}
