package domain

import (
	"testing"
)

func TestNormalizeRawBasics(t *testing.T) {
	raw := []byte(`{"message_id":100,"chat":{"id":555,"type":"private","first_name":"Ann"},"from":{"id":555,"first_name":"Ann"},"date":1768800000,"text":"hi"}`)

	msg, err := NormalizeRaw(raw)
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if msg.ChatID != 555 || msg.MessageID != 100 {
		t.Errorf("identity = (%d,%d), want (555,100)", msg.ChatID, msg.MessageID)
	}

	if msg.Date != 1768800000 {
		t.Errorf("date = %d, want 1768800000", msg.Date)
	}

	if msg.Text != "hi" || msg.Type != TypeText {
		t.Errorf("text/type = %q/%q, want hi/text", msg.Text, msg.Type)
	}

	if msg.FromID == nil || *msg.FromID != 555 {
		t.Errorf("from_id = %v, want 555", msg.FromID)
	}
}

func TestNormalizeRawEmpty(t *testing.T) {
	if _, err := NormalizeRaw(nil); err == nil {
		t.Error("expected error for empty payload")
	}

	if _, err := NormalizeRaw([]byte(`{"text":"no id"}`)); err == nil {
		t.Error("expected error for payload without message_id")
	}
}

func TestConversationIDResolution(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"explicit chat_id wins", `{"message_id":1,"chat_id":42,"chat":{"id":99}}`, 42},
		{"nested chat id", `{"message_id":1,"chat":{"id":99}}`, 99},
		{"bot sender fallback", `{"message_id":1,"from":{"id":7,"is_bot":true}}`, 7},
		{"human sender is not a fallback", `{"message_id":1,"from":{"id":7}}`, 0},
		{"unknown", `{"message_id":1}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NormalizeRaw([]byte(tt.raw))
			if err != nil {
				t.Fatalf("NormalizeRaw: %v", err)
			}

			if msg.ChatID != tt.want {
				t.Errorf("ChatID = %d, want %d", msg.ChatID, tt.want)
			}
		})
	}
}

func TestNormalizeReactionShapes(t *testing.T) {
	array := []byte(`{"message_id":1,"chat":{"id":5},"reactions":[{"emoji":"👍","count":2,"is_own":true},{"emoji":"🔥","count":1}]}`)

	msg, err := NormalizeRaw(array)
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if len(msg.Reactions) != 2 || msg.Reactions[0].Emoji != "👍" || !msg.Reactions[0].IsOwn {
		t.Errorf("array reactions = %+v", msg.Reactions)
	}

	object := []byte(`{"message_id":1,"chat":{"id":5},"reactions":{"👍":3}}`)

	msg, err = NormalizeRaw(object)
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if len(msg.Reactions) != 1 || msg.Reactions[0].Emoji != "👍" || msg.Reactions[0].Count != 3 {
		t.Errorf("object reactions = %+v", msg.Reactions)
	}
}

func TestResolveDateStringFallback(t *testing.T) {
	msg, err := NormalizeRaw([]byte(`{"message_id":1,"chat":{"id":5},"time":"2026-01-19T09:20:00Z"}`))
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if msg.Date == 0 {
		t.Error("expected fallback date from string time field")
	}

	// The unix field is authoritative even when a string time disagrees.
	msg, err = NormalizeRaw([]byte(`{"message_id":1,"chat":{"id":5},"date":1768800000,"time":"01.01.1999"}`))
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if msg.Date != 1768800000 {
		t.Errorf("date = %d, want authoritative unix value", msg.Date)
	}
}

func TestChatKind(t *testing.T) {
	tests := []struct {
		typeField string
		id        int64
		want      ChatKind
	}{
		{"private", -100, KindPrivate}, // type field beats the sign convention
		{"supergroup", 42, KindGroup},
		{"channel", 42, KindChannel},
		{"", -1009999, KindGroup},
		{"", 4242, KindPrivate},
	}

	for _, tt := range tests {
		if got := Kind(tt.typeField, tt.id); got != tt.want {
			t.Errorf("Kind(%q, %d) = %q, want %q", tt.typeField, tt.id, got, tt.want)
		}
	}
}

func TestChatOfNames(t *testing.T) {
	chat, kind := ChatOf([]byte(`{"message_id":1,"chat":{"id":-7,"type":"group","title":"Friends"}}`))
	if chat.Name != "Friends" || kind != KindGroup {
		t.Errorf("group chat = %+v kind %q", chat, kind)
	}

	chat, _ = ChatOf([]byte(`{"message_id":1,"chat":{"id":5,"type":"private","first_name":"Ann","last_name":"Lee"}}`))
	if chat.Name != "Ann Lee" {
		t.Errorf("private chat name = %q, want Ann Lee", chat.Name)
	}

	chat, _ = ChatOf([]byte(`{"message_id":1,"chat":{"id":5,"type":"private"}}`))
	if chat.Name != "" {
		t.Errorf("nameless chat name = %q, want empty placeholder", chat.Name)
	}
}
