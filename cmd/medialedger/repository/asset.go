package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lyzr/medialedger/common/db"
	"github.com/lyzr/medialedger/common/models"
)

// ErrDuplicateHash signals that another record already holds the same
// content hash. Callers treat it as "someone created this concurrently"
// and re-query instead of propagating.
var ErrDuplicateHash = errors.New("content hash already exists")

const assetColumns = `
	asset_id, storage_key, delivery_url, content_hash, status,
	expires_at, archived_at, origin_source, origin_context, intended_use,
	used_by, meta, uploaded_by, created_at
`

// AssetRepository handles database operations for the asset ledger
type AssetRepository struct {
	db *db.DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *db.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create inserts a new asset record. Returns ErrDuplicateHash when the
// unique index on content_hash rejects the insert.
func (r *AssetRepository) Create(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO asset (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	usedBy, err := json.Marshal(asset.UsedBy)
	if err != nil {
		return fmt.Errorf("marshal used_by: %w", err)
	}
	meta, err := json.Marshal(asset.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		asset.AssetID,
		asset.StorageKey,
		asset.DeliveryURL,
		asset.ContentHash,
		asset.Status,
		asset.ExpiresAt,
		asset.ArchivedAt,
		asset.Origin.Source,
		asset.Origin.Context,
		asset.IntendedUse,
		string(usedBy),
		string(meta),
		asset.UploadedBy,
		asset.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateHash, asset.ContentHash)
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetByID retrieves an asset by its ID
func (r *AssetRepository) GetByID(ctx context.Context, assetID uuid.UUID) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM asset WHERE asset_id = $1`
	return r.queryOne(ctx, query, assetID)
}

// GetByStorageKey retrieves an asset by its remote storage key
func (r *AssetRepository) GetByStorageKey(ctx context.Context, storageKey string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM asset WHERE storage_key = $1`
	return r.queryOne(ctx, query, storageKey)
}

// GetByContentHash retrieves the live asset holding the given content hash.
// This is the dedup lookup.
func (r *AssetRepository) GetByContentHash(ctx context.Context, contentHash string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM asset WHERE content_hash = $1`
	return r.queryOne(ctx, query, contentHash)
}

// Promote marks the asset permanent and, when ref is non-nil, appends the
// owner reference. One conditional UPDATE: the containment check makes the
// append idempotent, and the status/expiry change rides the same statement
// so concurrent promotions cannot observe a half-promoted record. Archived
// assets are excluded by the status guard and refused with ErrAssetArchived.
func (r *AssetRepository) Promote(ctx context.Context, storageKey string, ref *models.OwnerRef) (*models.Asset, error) {
	var refJSON *string
	if ref != nil {
		b, err := json.Marshal([]models.OwnerRef{*ref})
		if err != nil {
			return nil, fmt.Errorf("marshal owner ref: %w", err)
		}
		s := string(b)
		refJSON = &s
	}

	query := `
		UPDATE asset
		SET status = 'permanent',
		    expires_at = NULL,
		    archived_at = NULL,
		    used_by = CASE
		        WHEN $2::jsonb IS NOT NULL AND NOT used_by @> $2::jsonb
		        THEN used_by || $2::jsonb
		        ELSE used_by
		    END
		WHERE storage_key = $1 AND status <> 'archived'
		RETURNING ` + assetColumns

	asset, err := r.queryOne(ctx, query, storageKey, refJSON)
	if errors.Is(err, models.ErrAssetNotFound) {
		// Guard refused or no such row; re-read to tell the two apart.
		current, rerr := r.GetByStorageKey(ctx, storageKey)
		if rerr != nil {
			return nil, rerr
		}
		if current.Status == models.StatusArchived {
			return nil, models.ErrAssetArchived
		}
		return nil, err
	}
	return asset, err
}

// Detach removes one owner reference from the asset's usage set as a single
// atomic UPDATE. Status is deliberately untouched: a permanent asset with no
// remaining owners stays permanent.
func (r *AssetRepository) Detach(ctx context.Context, storageKey string, ref models.OwnerRef) (*models.Asset, error) {
	refJSON, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("marshal owner ref: %w", err)
	}

	query := `
		UPDATE asset
		SET used_by = (
		    SELECT COALESCE(jsonb_agg(e), '[]'::jsonb)
		    FROM jsonb_array_elements(used_by) e
		    WHERE NOT e @> $2::jsonb
		)
		WHERE storage_key = $1
		RETURNING ` + assetColumns

	return r.queryOne(ctx, query, storageKey, string(refJSON))
}

// Archive soft-deletes a permanent, unused asset. The guards live in the
// WHERE clause so the check and the transition are one atomic operation;
// false means some guard failed and the caller must re-read to find out why.
func (r *AssetRepository) Archive(ctx context.Context, assetID uuid.UUID, archivedAt time.Time) (bool, error) {
	query := `
		UPDATE asset
		SET status = 'archived', archived_at = $2, used_by = '[]'::jsonb
		WHERE asset_id = $1 AND status = 'permanent' AND used_by = '[]'::jsonb
	`

	tag, err := r.db.Exec(ctx, query, assetID, archivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to archive asset: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// DeleteTemp hard-deletes a temp asset, refusing if anything references it.
func (r *AssetRepository) DeleteTemp(ctx context.Context, assetID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM asset
		WHERE asset_id = $1 AND status = 'temp' AND used_by = '[]'::jsonb
	`

	tag, err := r.db.Exec(ctx, query, assetID)
	if err != nil {
		return false, fmt.Errorf("failed to delete temp asset: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListExpiredTemp returns expired, unused temp assets for the reclaimer,
// bounded to limit per run.
func (r *AssetRepository) ListExpiredTemp(ctx context.Context, now time.Time, limit int) ([]*models.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM asset
		WHERE status = 'temp' AND expires_at < $1 AND used_by = '[]'::jsonb
		ORDER BY expires_at ASC
		LIMIT $2
	`
	return r.queryMany(ctx, query, now, limit)
}

// ListArchivedBefore returns archived assets older than the retention cutoff.
func (r *AssetRepository) ListArchivedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM asset
		WHERE status = 'archived' AND archived_at < $1 AND used_by = '[]'::jsonb
		ORDER BY archived_at ASC
		LIMIT $2
	`
	return r.queryMany(ctx, query, cutoff, limit)
}

// PurgeTemp deletes one expired temp record. The WHERE clause re-verifies
// every purge condition at execution time, so an asset promoted or attached
// after candidate selection is left alone.
func (r *AssetRepository) PurgeTemp(ctx context.Context, assetID uuid.UUID, now time.Time) (bool, error) {
	query := `
		DELETE FROM asset
		WHERE asset_id = $1
		  AND status = 'temp'
		  AND expires_at < $2
		  AND used_by = '[]'::jsonb
	`

	tag, err := r.db.Exec(ctx, query, assetID, now)
	if err != nil {
		return false, fmt.Errorf("failed to purge temp asset: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// PurgeArchived deletes one archived record past retention, with the same
// execution-time re-verification as PurgeTemp.
func (r *AssetRepository) PurgeArchived(ctx context.Context, assetID uuid.UUID, cutoff time.Time) (bool, error) {
	query := `
		DELETE FROM asset
		WHERE asset_id = $1
		  AND status = 'archived'
		  AND archived_at < $2
		  AND used_by = '[]'::jsonb
	`

	tag, err := r.db.Exec(ctx, query, assetID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to purge archived asset: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *AssetRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Asset, error) {
	asset, err := scanAsset(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

func (r *AssetRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Asset, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

func scanAsset(row pgx.Row) (*models.Asset, error) {
	asset := &models.Asset{}
	var usedBy, meta []byte

	err := row.Scan(
		&asset.AssetID,
		&asset.StorageKey,
		&asset.DeliveryURL,
		&asset.ContentHash,
		&asset.Status,
		&asset.ExpiresAt,
		&asset.ArchivedAt,
		&asset.Origin.Source,
		&asset.Origin.Context,
		&asset.IntendedUse,
		&usedBy,
		&meta,
		&asset.UploadedBy,
		&asset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(usedBy, &asset.UsedBy); err != nil {
		return nil, fmt.Errorf("unmarshal used_by: %w", err)
	}
	if err := json.Unmarshal(meta, &asset.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}

	return asset, nil
}
