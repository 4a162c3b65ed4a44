package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// upsertChatSQL creates a chat on first sight and refreshes its activity
// metadata afterwards. A placeholder name (empty or the bare id) is upgraded
// when a better one arrives, but a known-good name is never overwritten by a
// worse one. Last activity only moves forward.
const upsertChatSQL = `
INSERT INTO chats (id, name, kind, last_date, last_message)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name = CASE
        WHEN EXCLUDED.name <> '' AND (chats.name = '' OR chats.name = chats.id::text)
        THEN EXCLUDED.name
        ELSE chats.name
    END,
    last_date = GREATEST(chats.last_date, EXCLUDED.last_date),
    last_message = CASE
        WHEN EXCLUDED.last_date >= chats.last_date THEN EXCLUDED.last_message
        ELSE chats.last_message
    END,
    updated_at = now()
WHERE chats.last_date IS NULL
   OR EXCLUDED.last_date > chats.last_date
   OR (EXCLUDED.name <> '' AND (chats.name = '' OR chats.name = chats.id::text))`

// TouchChat upserts chat metadata as a side effect of message ingestion.
func (db *DB) TouchChat(ctx context.Context, chat domain.Chat, kind domain.ChatKind, lastDate time.Time, preview string) error {
	if _, err := db.Pool.Exec(ctx, upsertChatSQL,
		chat.ID,
		toText(chat.Name),
		string(kind),
		toTimestamptz(lastDate),
		toText(preview),
	); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	return nil
}

// Chats returns all known chats ordered by recency of activity.
func (db *DB) Chats(ctx context.Context) ([]domain.Chat, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT id, name, last_date, last_message
FROM chats
ORDER BY last_date DESC NULLS LAST`)
	if err != nil {
		return nil, fmt.Errorf("select chats: %w", err)
	}
	defer rows.Close()

	var out []domain.Chat

	for rows.Next() {
		var (
			chat     domain.Chat
			name     pgtype.Text
			lastDate pgtype.Timestamptz
			preview  pgtype.Text
		)

		if err := rows.Scan(&chat.ID, &name, &lastDate, &preview); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}

		chat.Name = fromText(name)
		chat.LastMessage = fromText(preview)

		if lastDate.Valid {
			chat.LastDate = lastDate.Time.Unix()
		}

		out = append(out, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return out, nil
}
