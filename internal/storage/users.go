package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

// UpsertUser mirrors a sender identity. Name fields are refreshed from the
// latest sighting when non-empty; the photo url is managed separately by the
// avatar cache and never touched here.
func (db *DB) UpsertUser(ctx context.Context, user *domain.User) error {
	if _, err := db.Pool.Exec(ctx, `
INSERT INTO users (id, first_name, last_name, username, is_bot)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    first_name = CASE WHEN EXCLUDED.first_name <> '' THEN EXCLUDED.first_name ELSE users.first_name END,
    last_name  = CASE WHEN EXCLUDED.last_name  <> '' THEN EXCLUDED.last_name  ELSE users.last_name END,
    username   = CASE WHEN EXCLUDED.username   <> '' THEN EXCLUDED.username   ELSE users.username END,
    is_bot     = EXCLUDED.is_bot,
    updated_at = now()
WHERE users.first_name IS DISTINCT FROM EXCLUDED.first_name
   OR users.last_name  IS DISTINCT FROM EXCLUDED.last_name
   OR users.username   IS DISTINCT FROM EXCLUDED.username`,
		user.ID,
		toText(user.FirstName),
		toText(user.LastName),
		toText(user.Username),
		user.IsBot,
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

// SetUserPhoto records a resolved profile photo url, or the "none" sentinel
// when the check found no photo.
func (db *DB) SetUserPhoto(ctx context.Context, userID int64, photoURL string) error {
	if _, err := db.Pool.Exec(ctx,
		`UPDATE users SET photo_url = $2, updated_at = now() WHERE id = $1`,
		userID, toText(photoURL),
	); err != nil {
		return fmt.Errorf("set user photo: %w", err)
	}

	return nil
}

// User returns one user by id, or nil when unknown.
func (db *DB) User(ctx context.Context, userID int64) (*domain.User, error) {
	var (
		user     domain.User
		first    pgtype.Text
		last     pgtype.Text
		username pgtype.Text
		photo    pgtype.Text
	)

	err := db.Pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, username, is_bot, photo_url FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &first, &last, &username, &user.IsBot, &photo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	user.FirstName = fromText(first)
	user.LastName = fromText(last)
	user.Username = fromText(username)
	user.PhotoURL = fromText(photo)

	return &user, nil
}
