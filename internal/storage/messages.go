package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// UpsertStatus reports the outcome of a message upsert.
type UpsertStatus string

const (
	UpsertInserted  UpsertStatus = "inserted"
	UpsertUpdated   UpsertStatus = "updated"
	UpsertUnchanged UpsertStatus = "unchanged"
)

// upsertMessageSQL mirrors a message into the store. Only fields expected to
// mutate post-creation are overwritten on conflict (text in case of edits,
// raw payload, media ref, reactions when the incoming record carries them);
// a partial record never clobbers a stored value with an empty one. The
// trailing WHERE keeps re-runs over an unchanged corpus write-free.
const upsertMessageSQL = `
INSERT INTO messages (chat_id, message_id, from_id, msg_date, text, caption, media_type, media_ref, reactions, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (chat_id, message_id) DO UPDATE SET
    text       = CASE WHEN EXCLUDED.text <> '' THEN EXCLUDED.text ELSE messages.text END,
    caption    = CASE WHEN EXCLUDED.caption <> '' THEN EXCLUDED.caption ELSE messages.caption END,
    media_ref  = CASE WHEN EXCLUDED.media_ref <> '' THEN EXCLUDED.media_ref ELSE messages.media_ref END,
    reactions  = CASE WHEN $11 THEN EXCLUDED.reactions ELSE messages.reactions END,
    raw        = COALESCE(EXCLUDED.raw, messages.raw),
    updated_at = now()
WHERE messages.raw IS DISTINCT FROM EXCLUDED.raw
   OR ($11 AND messages.reactions IS DISTINCT FROM EXCLUDED.reactions)
RETURNING (xmax = 0) AS inserted`

// UpsertMessage mirrors one message into the store, keyed by the composite
// (chat_id, message_id) identity.
func (db *DB) UpsertMessage(ctx context.Context, msg *domain.Message) (UpsertStatus, error) {
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return "", fmt.Errorf("encode reactions: %w", err)
	}

	hasReactions := rawHasReactions(msg.Raw)

	var inserted bool

	err = db.Pool.QueryRow(ctx, upsertMessageSQL,
		msg.ChatID,
		msg.MessageID,
		toInt8Ptr(msg.FromID),
		toTimestamptz(time.Unix(msg.Date, 0)),
		toText(msg.Text),
		toText(msg.Caption),
		string(msg.Type),
		toText(msg.MediaRef),
		reactions,
		sanitizeRaw(msg.Raw),
		hasReactions,
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		return UpsertUnchanged, nil
	}

	if err != nil {
		return "", fmt.Errorf("upsert message: %w", err)
	}

	if inserted {
		return UpsertInserted, nil
	}

	return UpsertUpdated, nil
}

// rawHasReactions reports whether the raw payload explicitly carries a
// reactions field, so absent reactions never wipe stored ones.
func rawHasReactions(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var probe struct {
		Reactions json.RawMessage `json:"reactions"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}

	return len(probe.Reactions) > 0 && string(probe.Reactions) != "null"
}

func sanitizeRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}

	return []byte(SanitizeUTF8(string(raw)))
}

// StoredMessage is one mirrored row.
type StoredMessage struct {
	ChatID    int64
	MessageID int64
	FromID    *int64
	Date      time.Time
	Text      string
	Caption   string
	MediaType string
	MediaRef  string
	Reactions []domain.Reaction
	Raw       json.RawMessage
}

// RecentMessages returns a chat's most recent messages, newest first.
func (db *DB) RecentMessages(ctx context.Context, chatID int64, limit int) ([]StoredMessage, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT chat_id, message_id, from_id, msg_date, text, caption, media_type, media_ref, reactions, raw
FROM messages
WHERE chat_id = $1
ORDER BY msg_date DESC, message_id DESC
LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]StoredMessage, error) {
	var out []StoredMessage

	for rows.Next() {
		var (
			m         StoredMessage
			fromID    pgtype.Int8
			date      pgtype.Timestamptz
			text      pgtype.Text
			caption   pgtype.Text
			mediaRef  pgtype.Text
			reactions []byte
		)

		if err := rows.Scan(&m.ChatID, &m.MessageID, &fromID, &date, &text, &caption, &m.MediaType, &mediaRef, &reactions, &m.Raw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		if fromID.Valid {
			id := fromID.Int64
			m.FromID = &id
		}

		m.Date = fromTimestamptz(date)
		m.Text = fromText(text)
		m.Caption = fromText(caption)
		m.MediaRef = fromText(mediaRef)

		if len(reactions) > 0 {
			_ = json.Unmarshal(reactions, &m.Reactions)
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return out, nil
}

// CountMessages returns the total number of mirrored messages.
func (db *DB) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}
