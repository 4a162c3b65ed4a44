package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// DayCount is one calendar day's message count.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// NameCount is a generic labeled counter used by type/user/command stats.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// MessagesByDay returns per-day message counts over the last n days.
func (db *DB) MessagesByDay(ctx context.Context, days int) ([]DayCount, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT to_char(msg_date, 'DD.MM.YYYY') AS day, count(*)
FROM messages
WHERE msg_date >= now() - make_interval(days => $1)
GROUP BY date_trunc('day', msg_date), day
ORDER BY date_trunc('day', msg_date)`, days)
	if err != nil {
		return nil, fmt.Errorf("messages by day: %w", err)
	}
	defer rows.Close()

	var out []DayCount

	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

// MessageTypeCounts returns per-media-type counts over the last n days.
func (db *DB) MessageTypeCounts(ctx context.Context, days int) ([]NameCount, error) {
	return db.nameCounts(ctx, `
SELECT media_type, count(*)
FROM messages
WHERE msg_date >= now() - make_interval(days => $1)
GROUP BY media_type
ORDER BY count(*) DESC`, days)
}

// TopUsers returns the most active senders over the last n days.
func (db *DB) TopUsers(ctx context.Context, days, limit int) ([]NameCount, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT COALESCE(NULLIF(trim(u.first_name || ' ' || u.last_name), ''), NULLIF(u.username, ''), m.from_id::text) AS name, count(*)
FROM messages m
LEFT JOIN users u ON u.id = m.from_id
WHERE m.from_id IS NOT NULL
  AND m.msg_date >= now() - make_interval(days => $1)
GROUP BY name
ORDER BY count(*) DESC
LIMIT $2`, days, limit)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()

	return scanNameCounts(rows)
}

// TopCommands returns the most frequent /command invocations over n days.
func (db *DB) TopCommands(ctx context.Context, days, limit int) ([]NameCount, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT split_part(text, ' ', 1) AS name, count(*)
FROM messages
WHERE text LIKE '/%'
  AND msg_date >= now() - make_interval(days => $1)
GROUP BY name
ORDER BY count(*) DESC
LIMIT $2`, days, limit)
	if err != nil {
		return nil, fmt.Errorf("top commands: %w", err)
	}
	defer rows.Close()

	return scanNameCounts(rows)
}

// RecentTexts returns non-empty message bodies over the last n days for
// word-cloud tokenization.
func (db *DB) RecentTexts(ctx context.Context, days, limit int) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT COALESCE(NULLIF(text, ''), caption)
FROM messages
WHERE (text <> '' OR caption <> '')
  AND msg_date >= now() - make_interval(days => $1)
ORDER BY msg_date DESC
LIMIT $2`, days, limit)
	if err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var text pgtype.Text
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}

		if text.Valid && text.String != "" {
			out = append(out, text.String)
		}
	}

	return out, rows.Err()
}

func (db *DB) nameCounts(ctx context.Context, sql string, args ...interface{}) ([]NameCount, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("name counts: %w", err)
	}
	defer rows.Close()

	return scanNameCounts(rows)
}

func scanNameCounts(rows pgx.Rows) ([]NameCount, error) {
	var out []NameCount

	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan name count: %w", err)
		}

		out = append(out, nc)
	}

	return out, rows.Err()
}
