package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/princekumarofficial/gallery-service/internal/config"
	"github.com/princekumarofficial/gallery-service/internal/storage"
	"github.com/princekumarofficial/gallery-service/internal/types/media"
)

const uniqueViolation = "23505"

// Constraint names used to tell duplicate fingerprints from duplicate ids
const (
	imagesPkey            = "images_pkey"
	imagesOriginalHashKey = "images_original_hash_key"
)

type Postgres struct {
	Db *sql.DB
}

func NewPostgres(cfg *config.Config) (*Postgres, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGSQL.Host, cfg.PGSQL.Port, cfg.PGSQL.User, cfg.PGSQL.Password, cfg.PGSQL.DBName, cfg.PGSQL.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("Connected to Postgres database")

	pg := &Postgres{Db: db}
	if err := pg.CreateTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables() error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			uploads BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS images (
			id VARCHAR(32) NOT NULL,
			original_hash CHAR(64) NOT NULL,
			uploader_id VARCHAR(64) NOT NULL,
			uploader_username VARCHAR(255) NOT NULL,
			nsfw BOOLEAN NOT NULL DEFAULT FALSE,
			artist VARCHAR(30),
			tags TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT images_pkey PRIMARY KEY (id),
			CONSTRAINT images_original_hash_key UNIQUE (original_hash)
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS image_comments (
			id SERIAL PRIMARY KEY,
			image_id VARCHAR(32) NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_images_uploader ON images (uploader_id, created_at DESC);`,
	}

	for _, q := range queries {
		if _, err := p.Db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// CreateImage inserts the record. The UNIQUE constraint on original_hash is what
// settles concurrent uploads of the same bytes.
func (p *Postgres) CreateImage(ctx context.Context, img *media.Image) error {
	query := `
	INSERT INTO images (id, original_hash, uploader_id, uploader_username, nsfw, artist, tags)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at
	`

	var artist sql.NullString
	if img.Artist != nil {
		artist = sql.NullString{String: *img.Artist, Valid: true}
	}

	err := p.Db.QueryRowContext(ctx, query,
		img.ID, img.OriginalHash, img.Uploader.ID, img.Uploader.Username, img.NSFW, artist, img.Tags,
	).Scan(&img.CreatedAt)
	if err != nil {
		return translateError(err)
	}

	if img.Comments == nil {
		img.Comments = []media.Comment{}
	}

	return nil
}

func (p *Postgres) FindImageByFingerprint(ctx context.Context, fingerprint string) (*media.Image, error) {
	query := `
	SELECT id, original_hash, uploader_id, uploader_username, nsfw, artist, tags, created_at
	FROM images WHERE original_hash = $1
	`

	var img media.Image
	var artist sql.NullString
	err := p.Db.QueryRowContext(ctx, query, fingerprint).Scan(
		&img.ID, &img.OriginalHash, &img.Uploader.ID, &img.Uploader.Username, &img.NSFW, &artist, &img.Tags, &img.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if artist.Valid {
		img.Artist = &artist.String
	}
	img.Comments = []media.Comment{}

	return &img, nil
}

func (p *Postgres) ImageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.Db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// IncrementUploads bumps the lifetime counter, creating the user row on first upload
func (p *Postgres) IncrementUploads(ctx context.Context, uploader media.Uploader) error {
	query := `
	INSERT INTO users (id, username, uploads)
	VALUES ($1, $2, 1)
	ON CONFLICT (id) DO UPDATE SET uploads = users.uploads + 1, username = EXCLUDED.username
	`

	_, err := p.Db.ExecContext(ctx, query, uploader.ID, uploader.Username)
	return err
}

func (p *Postgres) Close() error {
	return p.Db.Close()
}

func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case imagesOriginalHashKey:
			return fmt.Errorf("%w: %s", storage.ErrDuplicateFingerprint, pqErr.Message)
		case imagesPkey:
			return fmt.Errorf("%w: %s", storage.ErrDuplicateID, pqErr.Message)
		}
	}
	return err
}
