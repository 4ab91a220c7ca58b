// Package postgres implements the media repository on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemedia.Repository using PostgreSQL.
type Repository struct {
	db DBTX
	// pool is set only on the root repository; transactional views leave it
	// nil so nested WithTx joins the outer transaction.
	pool *pgxpool.Pool
}

// NewWithPool creates a PostgreSQL repository with a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn inside a single database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(simplemedia.Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Album operations

func (r *Repository) CreateAlbum(ctx context.Context, album *simplemedia.Album) error {
	query := `
		INSERT INTO album (
			id, owner_id, title, description, tags, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		album.ID, album.OwnerID, album.Title, album.Description,
		album.Tags, album.CreatedAt, album.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create album", err)
	}
	return nil
}

func (r *Repository) GetAlbum(ctx context.Context, id uuid.UUID) (*simplemedia.Album, error) {
	query := `
		SELECT id, owner_id, title, description, tags, created_at, updated_at, deleted_at
		FROM album WHERE id = $1 AND deleted_at IS NULL`

	var album simplemedia.Album
	err := r.db.QueryRow(ctx, query, id).Scan(
		&album.ID, &album.OwnerID, &album.Title, &album.Description,
		&album.Tags, &album.CreatedAt, &album.UpdatedAt, &album.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrAlbumNotFound
		}
		return nil, r.handlePostgresError("get album", err)
	}
	return &album, nil
}

func (r *Repository) DeleteAlbum(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM album WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete album", err)
	}
	return nil
}

// Media operations

const mediaColumns = `
	id, owner_id, album_id, type, status, source_key,
	small_key, medium_key, large_key, playback_key, preview_key,
	title, description, tags, downloads, attempts,
	created_at, updated_at, deleted_at`

func (r *Repository) CreateMedia(ctx context.Context, item *simplemedia.MediaItem) error {
	query := `
		INSERT INTO media (
			id, owner_id, album_id, type, status, source_key,
			small_key, medium_key, large_key, playback_key, preview_key,
			title, description, tags, downloads, attempts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.Exec(ctx, query,
		item.ID, item.OwnerID, item.AlbumID, item.Type, item.Status, item.SourceKey,
		item.SmallKey, item.MediumKey, item.LargeKey, item.PlaybackKey, item.PreviewKey,
		item.Title, item.Description, item.Tags, item.Downloads, item.Attempts,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create media", err)
	}
	return nil
}

func (r *Repository) GetMedia(ctx context.Context, id uuid.UUID) (*simplemedia.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1 AND deleted_at IS NULL`
	return r.getOne(ctx, query, id)
}

func (r *Repository) GetMediaWithDeleted(ctx context.Context, id uuid.UUID) (*simplemedia.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *Repository) getOne(ctx context.Context, query string, id uuid.UUID) (*simplemedia.MediaItem, error) {
	var item simplemedia.MediaItem
	err := scanMedia(r.db.QueryRow(ctx, query, id), &item)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrMediaNotFound
		}
		return nil, r.handlePostgresError("get media", err)
	}
	return &item, nil
}

func (r *Repository) UpdateMedia(ctx context.Context, item *simplemedia.MediaItem) error {
	query := `
		UPDATE media SET
			album_id = $2, status = $3, source_key = $4,
			small_key = $5, medium_key = $6, large_key = $7,
			playback_key = $8, preview_key = $9,
			title = $10, description = $11, tags = $12,
			downloads = $13, attempts = $14, updated_at = $15, deleted_at = $16
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		item.ID, item.AlbumID, item.Status, item.SourceKey,
		item.SmallKey, item.MediumKey, item.LargeKey,
		item.PlaybackKey, item.PreviewKey,
		item.Title, item.Description, item.Tags,
		item.Downloads, item.Attempts, item.UpdatedAt, item.DeletedAt)
	if err != nil {
		return r.handlePostgresError("update media", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrMediaNotFound
	}
	return nil
}

func (r *Repository) DeleteMedia(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete media", err)
	}
	return nil
}

func (r *Repository) ListMediaByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemedia.MediaItem, error) {
	query := `SELECT ` + mediaColumns + `
		FROM media WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`
	return r.list(ctx, query, ownerID)
}

func (r *Repository) ListAlbumMembers(ctx context.Context, albumID uuid.UUID, withDeleted bool) ([]*simplemedia.MediaItem, error) {
	query := `SELECT ` + mediaColumns + `
		FROM media WHERE album_id = $1 AND ($2 OR deleted_at IS NULL)
		ORDER BY created_at, id`
	return r.list(ctx, query, albumID, withDeleted)
}

// Reconciliation queries

func (r *Repository) ListRequeueCandidates(ctx context.Context, stalledBefore, leaseExpiredBefore time.Time) ([]*simplemedia.MediaItem, error) {
	query := `SELECT ` + mediaColumns + `
		FROM media
		WHERE deleted_at IS NULL
		  AND ((status IN ('pending', 'failed') AND created_at < $1)
		    OR (status = 'processing' AND updated_at < $2))
		ORDER BY created_at, id`
	return r.list(ctx, query, stalledBefore, leaseExpiredBefore)
}

func (r *Repository) ListExpired(ctx context.Context, deletedBefore time.Time) ([]*simplemedia.MediaItem, error) {
	query := `SELECT ` + mediaColumns + `
		FROM media WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY created_at, id`
	return r.list(ctx, query, deletedBefore)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*simplemedia.MediaItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list media", err)
	}
	defer rows.Close()

	var items []*simplemedia.MediaItem
	for rows.Next() {
		var item simplemedia.MediaItem
		if err := scanMedia(rows, &item); err != nil {
			return nil, r.handlePostgresError("scan media", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate media rows", err)
	}
	return items, nil
}

// Tag vocabulary

func (r *Repository) ResolveTags(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT name FROM tag WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, r.handlePostgresError("resolve tags", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, r.handlePostgresError("scan tag", err)
		}
		known[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate tag rows", err)
	}

	// Preserve input order, drop unknowns and duplicates.
	var resolved []string
	seen := make(map[string]bool)
	for _, n := range names {
		if known[n] && !seen[n] {
			seen[n] = true
			resolved = append(resolved, n)
		}
	}
	return resolved, nil
}

func (r *Repository) AddTag(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO tag (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return r.handlePostgresError("add tag", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMedia(row scanner, item *simplemedia.MediaItem) error {
	return row.Scan(
		&item.ID, &item.OwnerID, &item.AlbumID, &item.Type, &item.Status, &item.SourceKey,
		&item.SmallKey, &item.MediumKey, &item.LargeKey, &item.PlaybackKey, &item.PreviewKey,
		&item.Title, &item.Description, &item.Tags, &item.Downloads, &item.Attempts,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
}
