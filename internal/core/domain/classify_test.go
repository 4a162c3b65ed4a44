package domain

import "testing"

func TestClassifyPriorityOrder(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    MediaType
		wantRef string
	}{
		{"plain text", `{"message_id":1,"chat":{"id":5},"text":"hi"}`, TypeText, ""},
		{"photo beats video", `{"message_id":1,"chat":{"id":5},"photo":[{"file_id":"s"},{"file_id":"l"}],"video":{"file_id":"v"}}`, TypePhoto, "l"},
		{"video beats voice", `{"message_id":1,"chat":{"id":5},"video":{"file_id":"v"},"voice":{"file_id":"o"}}`, TypeVideo, "v"},
		{"voice beats audio", `{"message_id":1,"chat":{"id":5},"voice":{"file_id":"o"},"audio":{"file_id":"a"}}`, TypeVoice, "o"},
		{"sticker", `{"message_id":1,"chat":{"id":5},"sticker":{"file_id":"st"}}`, TypeSticker, "st"},
		{"animation beats video_note", `{"message_id":1,"chat":{"id":5},"animation":{"file_id":"g"},"video_note":{"file_id":"n"}}`, TypeAnimation, "g"},
		{"document last of media", `{"message_id":1,"chat":{"id":5},"document":{"file_id":"d"},"caption":"see"}`, TypeDocument, "d"},
		{"poll", `{"message_id":1,"chat":{"id":5},"poll":{"question":"?"}}`, TypePoll, ""},
		{"location", `{"message_id":1,"chat":{"id":5},"location":{"latitude":1.0}}`, TypeLocation, ""},
		{"media as bare string", `{"message_id":1,"chat":{"id":5},"photo":"abc"}`, TypePhoto, "abc"},
		{"media as url object", `{"message_id":1,"chat":{"id":5},"video":{"url":"https://x/v.mp4"}}`, TypeVideo, "https://x/v.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NormalizeRaw([]byte(tt.raw))
			if err != nil {
				t.Fatalf("NormalizeRaw: %v", err)
			}

			if msg.Type != tt.want {
				t.Errorf("type = %q, want %q", msg.Type, tt.want)
			}

			if msg.MediaRef != tt.wantRef {
				t.Errorf("media ref = %q, want %q", msg.MediaRef, tt.wantRef)
			}
		})
	}
}

func TestClassifyUnknownShapeFallback(t *testing.T) {
	raw := `{"message_id":1,"chat":{"id":5},"story":{"content":{"file_id":"deep"}}}`

	msg, err := NormalizeRaw([]byte(raw))
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if msg.Type != TypeUnknown {
		t.Errorf("type = %q, want unknown for unrecognized payload", msg.Type)
	}

	if msg.MediaRef != "deep" {
		t.Errorf("media ref = %q, want deep via generic file_id search", msg.MediaRef)
	}
}

func TestClassifyEmptyPayloadFieldsIgnored(t *testing.T) {
	msg, err := NormalizeRaw([]byte(`{"message_id":1,"chat":{"id":5},"photo":[],"video":null,"text":"t"}`))
	if err != nil {
		t.Fatalf("NormalizeRaw: %v", err)
	}

	if msg.Type != TypeText {
		t.Errorf("type = %q, want text when media fields are empty", msg.Type)
	}
}
