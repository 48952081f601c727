package postgres

import (
	"context"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.UserFeedRepository = (*userFeedRepo)(nil)

type userFeedRepo struct {
	pool *pgxpool.Pool
}

func NewUserFeedRepo(pool *pgxpool.Pool) *userFeedRepo {
	return &userFeedRepo{pool: pool}
}

func (r *userFeedRepo) FindByOwner(ctx context.Context, tx repository.Tx, ownerID string) (*model.UserFeed, error) {
	const q = `
SELECT owner_id, feed_id, display_name, email, artwork_url, created_at, updated_at
FROM user_feeds WHERE owner_id = $1`
	row, err := pickRow(ctx, r.pool, tx, q, ownerID)
	if err != nil {
		return nil, err
	}
	var f model.UserFeed
	if err := row.Scan(&f.OwnerID, &f.FeedID, &f.DisplayName, &f.Email, &f.ArtworkURL, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, notFound(err)
	}

	rows, err := queryRows(ctx, r.pool, tx, `
SELECT guid, owner_id, title, description, audio_url, length_bytes, duration_label,
  published_at, source_link, image_url, author, explicit
FROM feed_entries
WHERE owner_id = $1
ORDER BY published_at DESC, guid`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e model.FeedEntry
		if err := rows.Scan(&e.GUID, &e.OwnerID, &e.Title, &e.Description, &e.AudioURL, &e.LengthBytes,
			&e.DurationLabel, &e.PublishedAt, &e.SourceLink, &e.ImageURL, &e.Author, &e.Explicit); err != nil {
			return nil, err
		}
		f.Entries = append(f.Entries, e)
	}
	return &f, rows.Err()
}

func (r *userFeedRepo) Create(ctx context.Context, tx repository.Tx, feed *model.UserFeed) error {
	const q = `
INSERT INTO user_feeds (owner_id, feed_id, display_name, email, artwork_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := execSQL(ctx, r.pool, tx, q,
		feed.OwnerID, feed.FeedID, feed.DisplayName, feed.Email, feed.ArtworkURL, feed.CreatedAt, feed.UpdatedAt)
	if pgErrCode(err) == pgUniqueViolation {
		return domain.ErrAlreadyExists
	}
	return err
}

// AppendEntry inserts the entry unless its guid is already in the feed.
func (r *userFeedRepo) AppendEntry(ctx context.Context, tx repository.Tx, e *model.FeedEntry) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	const q = `
INSERT INTO feed_entries (guid, owner_id, title, description, audio_url, length_bytes, duration_label,
  published_at, source_link, image_url, author, explicit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (owner_id, guid) DO NOTHING`
	cmd, err := execSQL(ctx, r.pool, tx, q,
		e.GUID, e.OwnerID, e.Title, e.Description, e.AudioURL, e.LengthBytes, e.DurationLabel,
		e.PublishedAt, e.SourceLink, e.ImageURL, e.Author, e.Explicit)
	if pgErrCode(err) == pgForeignKeyViolation {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	_, err = execSQL(ctx, r.pool, tx, `UPDATE user_feeds SET updated_at = $2 WHERE owner_id = $1`, e.OwnerID, time.Now().UTC())
	return true, err
}

func (r *userFeedRepo) UpdateFeedID(ctx context.Context, tx repository.Tx, ownerID, feedID string) error {
	cmd, err := execSQL(ctx, r.pool, tx,
		`UPDATE user_feeds SET feed_id = $2, updated_at = $3 WHERE owner_id = $1`, ownerID, feedID, time.Now().UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
