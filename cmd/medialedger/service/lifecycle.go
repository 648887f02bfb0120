package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/medialedger/common/cache"
	"github.com/lyzr/medialedger/common/clock"
	"github.com/lyzr/medialedger/common/logger"
	"github.com/lyzr/medialedger/common/models"
)

// TagArchived is the store-side label attached when an asset is archived.
const TagArchived = "archived"

// DeleteOutcome reports what a deletion request did.
type DeleteOutcome string

const (
	// OutcomeDeleted: the record is gone and the blob destroy was attempted.
	OutcomeDeleted DeleteOutcome = "deleted"
	// OutcomeArchived: the asset entered its grace period; the blob is
	// destroyed later by the reclaimer, not now.
	OutcomeArchived DeleteOutcome = "archived"
)

// DeleteResult carries the outcome of a single deletion request.
type DeleteResult struct {
	Outcome DeleteOutcome
	Asset   *models.Asset
}

// BatchDeleteItem is the per-item report of a bulk deletion. Bulk requests
// never fail as a whole: each item succeeds or fails on its own.
type BatchDeleteItem struct {
	ID      string            `json:"id"`
	Outcome DeleteOutcome     `json:"outcome,omitempty"`
	Error   string            `json:"error,omitempty"`
	UsedBy  []models.OwnerRef `json:"used_by,omitempty"`
}

// LifecycleService governs promotion, usage tracking and deletion.
type LifecycleService struct {
	ledger Ledger
	store  TagDestroyer
	clock  clock.Clock
	cache  cache.Cache
	log    *logger.Logger
}

// TagDestroyer is the slice of the object store boundary the lifecycle
// engine needs: synchronous deletes destroy blobs, archive/promote shuffle
// store-side labels.
type TagDestroyer interface {
	Destroy(ctx context.Context, key string) (found bool, err error)
	Tag(ctx context.Context, key, label string) error
	Untag(ctx context.Context, key, label string) error
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(
	ledger Ledger,
	store TagDestroyer,
	clk clock.Clock,
	assetCache cache.Cache,
	log *logger.Logger,
) *LifecycleService {
	return &LifecycleService{
		ledger: ledger,
		store:  store,
		clock:  clk,
		cache:  assetCache,
		log:    log,
	}
}

// Promote marks the asset identified by storageKey permanent. When an
// entity type and id are supplied the pair is appended to the usage set;
// re-promoting the same pair is a no-op. Promotion without a concrete
// entity is legal (gallery/picker workflows promote before the owning
// entity saves) and leaves the usage set untouched.
func (s *LifecycleService) Promote(ctx context.Context, storageKey, entityType, entityID string) (*models.Asset, error) {
	var ref *models.OwnerRef
	if entityType != "" || entityID != "" {
		if entityType == "" || entityID == "" {
			return nil, fmt.Errorf("entity type and entity id must be supplied together")
		}
		kind, err := models.ParseOwnerKind(entityType)
		if err != nil {
			return nil, err
		}
		ref = &models.OwnerRef{EntityType: kind, EntityID: entityID}
	}

	asset, err := s.ledger.Promote(ctx, storageKey, ref)
	if err != nil {
		return nil, err
	}

	// The blob no longer counts as an un-promoted upload at the store.
	if err := s.store.Untag(ctx, storageKey, TagTemp); err != nil {
		s.log.Warn("failed to untag promoted blob", "storage_key", storageKey, "error", err)
	}

	s.invalidate(ctx, asset)
	s.log.Info("asset promoted",
		"asset_id", asset.AssetID,
		"storage_key", storageKey,
		"used_by_count", len(asset.UsedBy),
	)

	return asset, nil
}

// Detach removes one owner reference. Status never changes here: a
// permanent asset with an empty usage set stays permanent until an explicit
// deletion request, which avoids state flapping while an entity is
// mid-update.
func (s *LifecycleService) Detach(ctx context.Context, storageKey, entityType, entityID string) (*models.Asset, error) {
	kind, err := models.ParseOwnerKind(entityType)
	if err != nil {
		return nil, err
	}

	asset, err := s.ledger.Detach(ctx, storageKey, models.OwnerRef{EntityType: kind, EntityID: entityID})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, asset)
	s.log.Info("usage detached",
		"asset_id", asset.AssetID,
		"storage_key", storageKey,
		"entity_type", entityType,
		"entity_id", entityID,
		"remaining_owners", len(asset.UsedBy),
	)

	return asset, nil
}

// Delete handles a synchronous deletion request.
//
// temp assets are hard-deleted immediately (never promoted, no durability
// guarantee). permanent assets are refused with the current owner list when
// in use, refused as protected without the force flag, and archived with a
// grace period when forced: the record survives until the reclaimer's
// retention window elapses. archived assets are a no-op. The actual blob
// destroy for archived assets happens only in the reclaimer, never here.
func (s *LifecycleService) Delete(ctx context.Context, idOrKey string, force bool) (*DeleteResult, error) {
	asset, err := s.resolve(ctx, idOrKey)
	if err != nil {
		return nil, err
	}

	switch asset.Status {
	case models.StatusTemp:
		return s.deleteTemp(ctx, asset)
	case models.StatusPermanent:
		return s.archivePermanent(ctx, asset, force)
	case models.StatusArchived:
		// Already in its grace period; the reclaimer finishes the job.
		return &DeleteResult{Outcome: OutcomeArchived, Asset: asset}, nil
	default:
		return nil, fmt.Errorf("asset %s has unknown status %q", asset.AssetID, asset.Status)
	}
}

func (s *LifecycleService) deleteTemp(ctx context.Context, asset *models.Asset) (*DeleteResult, error) {
	if !asset.IsUnused() {
		// Should not happen for temp assets, but defend against races.
		return nil, &models.AssetInUseError{StorageKey: asset.StorageKey, UsedBy: asset.UsedBy}
	}

	ok, err := s.ledger.DeleteTemp(ctx, asset.AssetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The conditional delete was refused: the asset changed under us.
		current, rerr := s.ledger.GetByID(ctx, asset.AssetID)
		if errors.Is(rerr, models.ErrAssetNotFound) {
			// Concurrently deleted; treat as done.
			s.invalidate(ctx, asset)
			return &DeleteResult{Outcome: OutcomeDeleted, Asset: asset}, nil
		}
		if rerr != nil {
			return nil, rerr
		}
		return nil, &models.AssetInUseError{StorageKey: current.StorageKey, UsedBy: current.UsedBy}
	}

	s.destroyBlob(ctx, asset.StorageKey)
	s.invalidate(ctx, asset)
	s.log.Info("temp asset deleted", "asset_id", asset.AssetID, "storage_key", asset.StorageKey)

	return &DeleteResult{Outcome: OutcomeDeleted, Asset: asset}, nil
}

func (s *LifecycleService) archivePermanent(ctx context.Context, asset *models.Asset, force bool) (*DeleteResult, error) {
	if !asset.IsUnused() {
		return nil, &models.AssetInUseError{StorageKey: asset.StorageKey, UsedBy: asset.UsedBy}
	}
	if !force {
		return nil, models.ErrAssetProtected
	}

	archivedAt := s.clock.Now()
	ok, err := s.ledger.Archive(ctx, asset.AssetID, archivedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, rerr := s.ledger.GetByID(ctx, asset.AssetID)
		if errors.Is(rerr, models.ErrAssetNotFound) {
			return nil, models.ErrAssetNotFound
		}
		if rerr != nil {
			return nil, rerr
		}
		if !current.IsUnused() {
			return nil, &models.AssetInUseError{StorageKey: current.StorageKey, UsedBy: current.UsedBy}
		}
		if current.Status == models.StatusArchived {
			return &DeleteResult{Outcome: OutcomeArchived, Asset: current}, nil
		}
		return nil, fmt.Errorf("archive refused for asset %s in status %q", current.AssetID, current.Status)
	}

	if err := s.store.Tag(ctx, asset.StorageKey, TagArchived); err != nil {
		s.log.Warn("failed to tag archived blob", "storage_key", asset.StorageKey, "error", err)
	}

	s.invalidate(ctx, asset)
	s.log.Info("asset archived, grace period started",
		"asset_id", asset.AssetID,
		"storage_key", asset.StorageKey,
		"archived_at", archivedAt,
	)

	archived := *asset
	archived.Status = models.StatusArchived
	archived.ArchivedAt = &archivedAt
	archived.UsedBy = []models.OwnerRef{}

	return &DeleteResult{Outcome: OutcomeArchived, Asset: &archived}, nil
}

// DeleteBatch applies the per-asset deletion rules independently to each
// item and reports per-item outcomes; one failure never aborts the batch.
func (s *LifecycleService) DeleteBatch(ctx context.Context, idsOrKeys []string, force bool) []BatchDeleteItem {
	results := make([]BatchDeleteItem, 0, len(idsOrKeys))

	for _, id := range idsOrKeys {
		item := BatchDeleteItem{ID: id}

		res, err := s.Delete(ctx, id, force)
		if err != nil {
			item.Error = err.Error()
			var inUse *models.AssetInUseError
			if errors.As(err, &inUse) {
				item.UsedBy = inUse.UsedBy
			}
		} else {
			item.Outcome = res.Outcome
		}

		results = append(results, item)
	}

	return results
}

// Get resolves an asset by ID or storage key for read paths, consulting the
// cache first.
func (s *LifecycleService) Get(ctx context.Context, idOrKey string) (*models.Asset, error) {
	if s.cache != nil {
		if data, hit, _ := s.cache.Get(ctx, cacheKey(idOrKey)); hit {
			var asset models.Asset
			if err := json.Unmarshal(data, &asset); err == nil {
				return &asset, nil
			}
		}
	}

	asset, err := s.resolve(ctx, idOrKey)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(asset); err == nil {
			s.cache.Set(ctx, cacheKey(idOrKey), data, 30*time.Second)
		}
	}

	return asset, nil
}

func (s *LifecycleService) resolve(ctx context.Context, idOrKey string) (*models.Asset, error) {
	if id, err := uuid.Parse(idOrKey); err == nil {
		return s.ledger.GetByID(ctx, id)
	}
	return s.ledger.GetByStorageKey(ctx, idOrKey)
}

// destroyBlob attempts the remote destroy during a synchronous deletion.
// Failures are logged, never fatal: the ledger state has already
// transitioned and the blob store is best-effort cleanup.
func (s *LifecycleService) destroyBlob(ctx context.Context, storageKey string) {
	found, err := s.store.Destroy(ctx, storageKey)
	if err != nil {
		s.log.Warn("remote destroy failed, blob left for a later sweep",
			"storage_key", storageKey, "error", err)
		return
	}
	if !found {
		s.log.Debug("remote destroy: blob already gone", "storage_key", storageKey)
	}
}

// invalidate drops both cache entries for the asset: readers may have
// cached it under either its ID or its storage key.
func (s *LifecycleService) invalidate(ctx context.Context, asset *models.Asset) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, cacheKey(asset.AssetID.String()))
	s.cache.Delete(ctx, cacheKey(asset.StorageKey))
}

func cacheKey(idOrKey string) string {
	return "asset:" + idOrKey
}
