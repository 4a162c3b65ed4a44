package domain

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/araddon/dateparse"
)

// ErrEmptyPayload is returned for zero-byte or whitespace-only inputs.
var ErrEmptyPayload = errors.New("empty message payload")

// rawEnvelope captures the fields the archive understands from a raw Telegram
// message payload. Unknown fields survive in Message.Raw untouched.
type rawEnvelope struct {
	MessageID int64           `json:"message_id"`
	ChatID    int64           `json:"chat_id"`
	Chat      *rawChat        `json:"chat"`
	From      *User           `json:"from"`
	Date      int64           `json:"date"`
	Time      string          `json:"time"`
	Text      string          `json:"text"`
	Caption   string          `json:"caption"`
	Reactions json.RawMessage `json:"reactions"`

	Photo     json.RawMessage `json:"photo"`
	Video     json.RawMessage `json:"video"`
	Voice     json.RawMessage `json:"voice"`
	Audio     json.RawMessage `json:"audio"`
	Sticker   json.RawMessage `json:"sticker"`
	Animation json.RawMessage `json:"animation"`
	VideoNote json.RawMessage `json:"video_note"`
	Document  json.RawMessage `json:"document"`
	Poll      json.RawMessage `json:"poll"`
	Contact   json.RawMessage `json:"contact"`
	Dice      json.RawMessage `json:"dice"`
	Venue     json.RawMessage `json:"venue"`
	Location  json.RawMessage `json:"location"`
}

type rawChat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// NormalizeRaw converts a raw Telegram message payload into the canonical
// Message representation. All shape sniffing (reactions as array vs object,
// media as string vs object) happens here, once, at the ingestion boundary.
func NormalizeRaw(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}

	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	if env.MessageID == 0 {
		return nil, errors.New("message without message_id")
	}

	msg := &Message{
		ChatID:    resolveConversationID(&env),
		MessageID: env.MessageID,
		Date:      resolveDate(&env),
		Text:      env.Text,
		Caption:   env.Caption,
		Reactions: NormalizeReactions(env.Reactions),
		Raw:       append(json.RawMessage(nil), raw...),
	}

	if env.From != nil && env.From.ID != 0 {
		id := env.From.ID
		msg.FromID = &id
	}

	msg.Type, msg.MediaRef = ClassifyMedia(&env, raw)

	return msg, nil
}

// ChatOf extracts the chat summary carried on a raw message payload.
func ChatOf(raw []byte) (Chat, ChatKind) {
	var env rawEnvelope
	_ = json.Unmarshal(raw, &env)

	id := resolveConversationID(&env)

	chat := Chat{ID: id, Name: chatName(&env, id)}
	if env.Chat != nil {
		return chat, Kind(env.Chat.Type, id)
	}

	return chat, Kind("", id)
}

// SenderOf extracts the sender identity from a raw message payload, or nil
// for sender-less events such as channel posts.
func SenderOf(raw []byte) *User {
	var env rawEnvelope
	_ = json.Unmarshal(raw, &env)

	if env.From == nil || env.From.ID == 0 {
		return nil
	}

	u := *env.From

	return &u
}

// resolveConversationID resolves the identity used to group messages into a
// thread: explicit chat_id, else the nested chat object id, else (for bot
// replies) the sender id, else zero for unknown.
func resolveConversationID(env *rawEnvelope) int64 {
	if env.ChatID != 0 {
		return env.ChatID
	}

	if env.Chat != nil && env.Chat.ID != 0 {
		return env.Chat.ID
	}

	if env.From != nil && env.From.IsBot && env.From.ID != 0 {
		return env.From.ID
	}

	return 0
}

func chatName(env *rawEnvelope, id int64) string {
	if env.Chat != nil {
		if env.Chat.Title != "" {
			return env.Chat.Title
		}

		person := User{FirstName: env.Chat.FirstName, LastName: env.Chat.LastName, Username: env.Chat.Username, ID: id}
		if name := person.DisplayName(); !IsPlaceholderName(name, id) {
			return name
		}
	}

	if env.From != nil {
		if name := env.From.DisplayName(); !IsPlaceholderName(name, env.From.ID) && env.From.ID == id {
			return name
		}
	}

	return ""
}

// resolveDate trusts the unix seconds field; locale-formatted string "time"
// fields are a fallback only, for legacy files written without a date.
func resolveDate(env *rawEnvelope) int64 {
	if env.Date != 0 {
		return env.Date
	}

	if env.Time != "" {
		if t, err := dateparse.ParseAny(env.Time); err == nil {
			return t.Unix()
		}
	}

	return 0
}

// NormalizeReactions accepts both wire shapes: an ordered array of
// {emoji,count,is_own} and a legacy object keyed by emoji with counts.
func NormalizeReactions(raw json.RawMessage) []Reaction {
	if len(raw) == 0 {
		return nil
	}

	var list []Reaction
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, r := range list {
			if r.Emoji != "" {
				out = append(out, r)
			}
		}

		if len(out) == 0 {
			return nil
		}

		return out
	}

	var byEmoji map[string]int
	if err := json.Unmarshal(raw, &byEmoji); err == nil {
		out := make([]Reaction, 0, len(byEmoji))
		for emoji, count := range byEmoji {
			out = append(out, Reaction{Emoji: emoji, Count: count})
		}

		sort.Slice(out, func(i, j int) bool { return out[i].Emoji < out[j].Emoji })

		if len(out) == 0 {
			return nil
		}

		return out
	}

	return nil
}
