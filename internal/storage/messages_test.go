package storage

import (
	"encoding/json"
	"testing"
)

func TestRawHasReactions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{
			name: "empty payload",
			raw:  "",
			want: false,
		},
		{
			name: "no reactions field",
			raw:  `{"message_id":1,"text":"hi"}`,
			want: false,
		},
		{
			name: "explicit null",
			raw:  `{"message_id":1,"reactions":null}`,
			want: false,
		},
		{
			name: "empty array still counts as carried",
			raw:  `{"message_id":1,"reactions":[]}`,
			want: true,
		},
		{
			name: "populated array",
			raw:  `{"message_id":1,"reactions":[{"emoji":"👍","count":2}]}`,
			want: true,
		},
		{
			name: "emoji keyed object",
			raw:  `{"message_id":1,"reactions":{"👍":2}}`,
			want: true,
		},
		{
			name: "malformed payload",
			raw:  `{"message_id":`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rawHasReactions(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("rawHasReactions(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSanitizeRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  json.RawMessage
		want []byte
	}{
		{
			name: "empty payload stored as null",
			raw:  nil,
			want: nil,
		},
		{
			name: "valid payload passes through",
			raw:  json.RawMessage(`{"text":"ok"}`),
			want: []byte(`{"text":"ok"}`),
		},
		{
			name: "invalid utf8 stripped",
			raw:  json.RawMessage("{\"text\":\"a\xffb\"}"),
			want: []byte(`{"text":"ab"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeRaw(tt.raw)
			if string(got) != string(tt.want) {
				t.Errorf("sanitizeRaw(%q) = %q, want %q", tt.raw, got, tt.want)
			}

			if (got == nil) != (tt.want == nil) {
				t.Errorf("sanitizeRaw(%q) nil-ness = %v, want %v", tt.raw, got == nil, tt.want == nil)
			}
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "valid ascii", in: "hello", want: "hello"},
		{name: "valid cyrillic", in: "привет", want: "привет"},
		{name: "lone continuation byte dropped", in: "a\x80b", want: "ab"},
		{name: "truncated rune dropped", in: "ок\xd0", want: "ок"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUTF8(tt.in); got != tt.want {
				t.Errorf("SanitizeUTF8(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
