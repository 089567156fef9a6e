package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"resale-pipeline/models"
	"resale-pipeline/utils"
)

const uniqueViolation = "23505"

// PostgresStore persists families, reference images, the listing ledger and
// crawl runs in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection, waits for the server to accept it,
// runs schema migrations and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Warn("[postgres] ping failed (attempt %d/10): %v", i+1, err)
		if serr := utils.SleepContext(ctx, 2*time.Second); serr != nil {
			err = serr
			break
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := NewPostgresStoreFromDB(db)
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

// NewPostgresStoreFromDB wraps an existing handle without migrating.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS families (
			id           BIGSERIAL PRIMARY KEY,
			brand        TEXT        NOT NULL,
			family       TEXT        NOT NULL,
			display_name TEXT        NOT NULL DEFAULT '',
			quota        INTEGER     NOT NULL,
			min_required INTEGER     NOT NULL,
			status       VARCHAR(16) NOT NULL DEFAULT 'building',
			image_count  INTEGER     NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (brand, family)
		);

		CREATE TABLE IF NOT EXISTS reference_images (
			id           BIGSERIAL PRIMARY KEY,
			family_id    BIGINT      NOT NULL REFERENCES families(id),
			content_hash CHAR(64)    NOT NULL UNIQUE,
			storage_path TEXT        NOT NULL,
			origin_url   TEXT        NOT NULL DEFAULT '',
			listing_id   TEXT        NOT NULL DEFAULT '',
			width        INTEGER     NOT NULL DEFAULT 0,
			height       INTEGER     NOT NULL DEFAULT 0,
			format       VARCHAR(16) NOT NULL DEFAULT '',
			byte_size    BIGINT      NOT NULL DEFAULT 0,
			source       VARCHAR(32) NOT NULL DEFAULT 'api',
			embedding    REAL[],
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reference_images_family ON reference_images(family_id);

		CREATE TABLE IF NOT EXISTS processed_listings (
			listing_id    TEXT PRIMARY KEY,
			family_id     BIGINT      NOT NULL REFERENCES families(id),
			images_stored INTEGER     NOT NULL DEFAULT 0,
			processed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS crawl_runs (
			id                  UUID PRIMARY KEY,
			started_at          TIMESTAMPTZ NOT NULL,
			finished_at         TIMESTAMPTZ NOT NULL,
			families_complete   INTEGER     NOT NULL DEFAULT 0,
			families_incomplete INTEGER     NOT NULL DEFAULT 0,
			families_skipped    INTEGER     NOT NULL DEFAULT 0,
			images_stored       INTEGER     NOT NULL DEFAULT 0,
			api_calls           INTEGER     NOT NULL DEFAULT 0
		);
	`)
	return err
}

func (ps *PostgresStore) UpsertFamily(ctx context.Context, f *models.Family) error {
	err := ps.db.QueryRowxContext(ctx, `
		INSERT INTO families (brand, family, display_name, quota, min_required)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (brand, family) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    quota        = EXCLUDED.quota,
		    min_required = EXCLUDED.min_required,
		    updated_at   = NOW()
		RETURNING id, status, image_count, created_at, updated_at
	`, f.Brand, f.Family, f.DisplayName, f.Quota, f.MinRequired).
		Scan(&f.ID, &f.Status, &f.ImageCount, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert family %s: %w", f.Key(), err)
	}
	return nil
}

func (ps *PostgresStore) ListFamilies(ctx context.Context) ([]*models.Family, error) {
	var out []*models.Family
	err := ps.db.SelectContext(ctx, &out, `
		SELECT id, brand, family, display_name, quota, min_required, status, image_count, created_at, updated_at
		FROM families
		ORDER BY brand, family
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list families: %w", err)
	}
	return out, nil
}

func (ps *PostgresStore) UpdateFamilyProgress(ctx context.Context, familyID int64, status models.FamilyStatus, imageCount int) error {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE families SET status = $2, image_count = $3, updated_at = NOW()
		WHERE id = $1
	`, familyID, string(status), imageCount)
	if err != nil {
		return fmt.Errorf("postgres: update family %d: %w", familyID, err)
	}
	return requireAffected(res)
}

func (ps *PostgresStore) CountImages(ctx context.Context, familyID int64) (int, error) {
	var n int
	if err := ps.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reference_images WHERE family_id = $1`, familyID); err != nil {
		return 0, fmt.Errorf("postgres: count images: %w", err)
	}
	return n, nil
}

func (ps *PostgresStore) HashExists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := ps.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM reference_images WHERE content_hash = $1)`, hash)
	if err != nil {
		return false, fmt.Errorf("postgres: hash lookup: %w", err)
	}
	return exists, nil
}

func (ps *PostgresStore) InsertImage(ctx context.Context, img *models.ReferenceImage) error {
	err := ps.db.QueryRowxContext(ctx, `
		INSERT INTO reference_images
			(family_id, content_hash, storage_path, origin_url, listing_id, width, height, format, byte_size, source, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, img.FamilyID, img.ContentHash, img.StoragePath, img.OriginURL, img.ListingID,
		img.Width, img.Height, img.Format, img.ByteSize, img.Source, vectorArg(img.Embedding)).
		Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateHash
		}
		return fmt.Errorf("postgres: insert image: %w", err)
	}
	return nil
}

func (ps *PostgresStore) SetEmbedding(ctx context.Context, imageID int64, vector []float32) error {
	res, err := ps.db.ExecContext(ctx, `UPDATE reference_images SET embedding = $2 WHERE id = $1`, imageID, vectorArg(vector))
	if err != nil {
		return fmt.Errorf("postgres: set embedding %d: %w", imageID, err)
	}
	return requireAffected(res)
}

func (ps *PostgresStore) ImagesMissingEmbedding(ctx context.Context, limit int) ([]*models.ReferenceImage, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*models.ReferenceImage
	err := ps.db.SelectContext(ctx, &out, `
		SELECT id, family_id, content_hash, storage_path, origin_url, listing_id,
		       width, height, format, byte_size, source, created_at
		FROM reference_images
		WHERE embedding IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: images missing embedding: %w", err)
	}
	return out, nil
}

func (ps *PostgresStore) IsListingProcessed(ctx context.Context, listingID string) (bool, error) {
	var exists bool
	err := ps.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM processed_listings WHERE listing_id = $1)`, listingID)
	if err != nil {
		return false, fmt.Errorf("postgres: ledger lookup: %w", err)
	}
	return exists, nil
}

// MarkListingProcessed appends to the ledger. Re-marking a listing is a no-op.
func (ps *PostgresStore) MarkListingProcessed(ctx context.Context, l *models.ProcessedListing) error {
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO processed_listings (listing_id, family_id, images_stored)
		VALUES ($1, $2, $3)
		ON CONFLICT (listing_id) DO NOTHING
	`, l.ListingID, l.FamilyID, l.ImagesStored)
	if err != nil {
		return fmt.Errorf("postgres: mark listing %s: %w", l.ListingID, err)
	}
	return nil
}

func (ps *PostgresStore) RecordRun(ctx context.Context, run *models.CrawlRun) error {
	_, err := ps.db.NamedExecContext(ctx, `
		INSERT INTO crawl_runs
			(id, started_at, finished_at, families_complete, families_incomplete, families_skipped, images_stored, api_calls)
		VALUES
			(:id, :started_at, :finished_at, :families_complete, :families_incomplete, :families_skipped, :images_stored, :api_calls)
	`, run)
	if err != nil {
		return fmt.Errorf("postgres: record run: %w", err)
	}
	return nil
}

func (ps *PostgresStore) LatestRun(ctx context.Context) (*models.CrawlRun, error) {
	var run models.CrawlRun
	err := ps.db.GetContext(ctx, &run, `
		SELECT id, started_at, finished_at, families_complete, families_incomplete,
		       families_skipped, images_stored, api_calls
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: latest run: %w", err)
	}
	return &run, nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// vectorArg converts an embedding for a REAL[] column. Empty vectors become NULL.
func vectorArg(v []float32) pq.Float64Array {
	if len(v) == 0 {
		return nil
	}
	out := make(pq.Float64Array, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
