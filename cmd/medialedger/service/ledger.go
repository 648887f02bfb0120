package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/medialedger/cmd/medialedger/repository"
	"github.com/lyzr/medialedger/common/models"
)

// Ledger is the metadata store for assets. The Postgres repository is the
// production implementation; tests substitute an in-memory fake.
//
// Mutating operations are atomic conditional statements: the guard and the
// change execute as one ledger operation, never a read-modify-write from
// application code.
type Ledger interface {
	Create(ctx context.Context, asset *models.Asset) error
	GetByID(ctx context.Context, assetID uuid.UUID) (*models.Asset, error)
	GetByStorageKey(ctx context.Context, storageKey string) (*models.Asset, error)
	GetByContentHash(ctx context.Context, contentHash string) (*models.Asset, error)

	Promote(ctx context.Context, storageKey string, ref *models.OwnerRef) (*models.Asset, error)
	Detach(ctx context.Context, storageKey string, ref models.OwnerRef) (*models.Asset, error)
	Archive(ctx context.Context, assetID uuid.UUID, archivedAt time.Time) (bool, error)
	DeleteTemp(ctx context.Context, assetID uuid.UUID) (bool, error)

	ListExpiredTemp(ctx context.Context, now time.Time, limit int) ([]*models.Asset, error)
	ListArchivedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Asset, error)
	PurgeTemp(ctx context.Context, assetID uuid.UUID, now time.Time) (bool, error)
	PurgeArchived(ctx context.Context, assetID uuid.UUID, cutoff time.Time) (bool, error)
}

var _ Ledger = (*repository.AssetRepository)(nil)
