package domain

import "encoding/json"

// classification order. Exactly one type is authoritative per message; the
// first present payload field wins.
var classifiers = []struct {
	typ   MediaType
	field func(*rawEnvelope) json.RawMessage
}{
	{TypePhoto, func(e *rawEnvelope) json.RawMessage { return e.Photo }},
	{TypeVideo, func(e *rawEnvelope) json.RawMessage { return e.Video }},
	{TypeVoice, func(e *rawEnvelope) json.RawMessage { return e.Voice }},
	{TypeAudio, func(e *rawEnvelope) json.RawMessage { return e.Audio }},
	{TypeSticker, func(e *rawEnvelope) json.RawMessage { return e.Sticker }},
	{TypeAnimation, func(e *rawEnvelope) json.RawMessage { return e.Animation }},
	{TypeVideoNote, func(e *rawEnvelope) json.RawMessage { return e.VideoNote }},
	{TypeDocument, func(e *rawEnvelope) json.RawMessage { return e.Document }},
	{TypePoll, func(e *rawEnvelope) json.RawMessage { return e.Poll }},
	{TypeContact, func(e *rawEnvelope) json.RawMessage { return e.Contact }},
	{TypeDice, func(e *rawEnvelope) json.RawMessage { return e.Dice }},
	{TypeVenue, func(e *rawEnvelope) json.RawMessage { return e.Venue }},
	{TypeLocation, func(e *rawEnvelope) json.RawMessage { return e.Location }},
}

// ClassifyMedia determines the authoritative media type of a message and the
// opaque media reference (bot file id) for media types. Priority order:
// photo > video > voice > audio > sticker > animation > video_note > document,
// then the non-file payload types, defaulting to text.
func ClassifyMedia(env *rawEnvelope, raw []byte) (MediaType, string) {
	for _, c := range classifiers {
		payload := c.field(env)
		if isPresent(payload) {
			return c.typ, mediaRef(payload)
		}
	}

	if env.Text != "" || env.Caption != "" {
		return TypeText, ""
	}

	// Unknown shape: fall back to a generic file_id search so future message
	// kinds still resolve media. Callers flag these for review.
	if ref := findAnyFileID(raw); ref != "" {
		return TypeUnknown, ref
	}

	return TypeText, ""
}

func isPresent(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false", "0", `""`, "[]", "{}":
		return false
	}

	return true
}

// mediaRef extracts the opaque media pointer from a payload that may be a bare
// file-id string, an object carrying file_id (or a url), or a sized-variants
// array of which the last entry is the largest.
func mediaRef(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		FileID string `json:"file_id"`
		URL    string `json:"url"`
	}

	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.FileID != "" {
			return obj.FileID
		}

		if obj.URL != "" {
			return obj.URL
		}
	}

	var sizes []struct {
		FileID string `json:"file_id"`
	}

	if err := json.Unmarshal(raw, &sizes); err == nil && len(sizes) > 0 {
		return sizes[len(sizes)-1].FileID
	}

	return ""
}

// findAnyFileID recursively searches an unknown payload for the first file_id
// field. Explicit per-type extraction always runs first; this is the escape
// hatch for message shapes the envelope does not know yet.
func findAnyFileID(raw []byte) string {
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return ""
	}

	return walkFileID(any)
}

func walkFileID(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		if id, ok := val["file_id"].(string); ok && id != "" {
			return id
		}

		for _, child := range val {
			if id := walkFileID(child); id != "" {
				return id
			}
		}
	case []interface{}:
		for _, child := range val {
			if id := walkFileID(child); id != "" {
				return id
			}
		}
	}

	return ""
}
