package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/medialedger/cmd/medialedger/repository"
	"github.com/lyzr/medialedger/common/clients"
	"github.com/lyzr/medialedger/common/clock"
	"github.com/lyzr/medialedger/common/config"
	"github.com/lyzr/medialedger/common/hash"
	"github.com/lyzr/medialedger/common/logger"
	"github.com/lyzr/medialedger/common/models"
	"github.com/lyzr/medialedger/common/telemetry"
)

// TagTemp is the store-side label carried by un-promoted uploads.
const TagTemp = "temp"

// UploadService orchestrates hashing, dedup lookup, remote upload and
// ledger record creation for new uploads.
type UploadService struct {
	ledger    Ledger
	store     clients.ObjectStore
	clock     clock.Clock
	retention config.RetentionConfig
	metrics   *telemetry.Telemetry
	log       *logger.Logger
}

// NewUploadService creates a new upload service
func NewUploadService(
	ledger Ledger,
	store clients.ObjectStore,
	clk clock.Clock,
	retention config.RetentionConfig,
	metrics *telemetry.Telemetry,
	log *logger.Logger,
) *UploadService {
	return &UploadService{
		ledger:    ledger,
		store:     store,
		clock:     clk,
		retention: retention,
		metrics:   metrics,
		log:       log,
	}
}

// UploadResult is returned to the caller for both new and deduplicated uploads.
type UploadResult struct {
	Asset     *models.Asset
	Duplicate bool
}

// Upload runs the upload pipeline:
//  1. compute the content digest
//  2. dedup lookup by digest; a hit returns the existing asset with no
//     remote I/O
//  3. upload the bytes under the digest-derived storage key
//  4. create the ledger record in temp status with an expiry
//
// A unique-violation on the insert means a concurrent upload of the same
// bytes won the race; the winner is re-read and returned as a duplicate.
// The blob itself is untouched in that case: both uploads target the same
// digest-derived key, so the store already holds exactly one copy.
func (s *UploadService) Upload(ctx context.Context, data []byte, origin models.Origin, intendedUse *string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	if origin.Source == "" || origin.Context == "" {
		return nil, fmt.Errorf("upload origin source and context are required")
	}

	if s.metrics != nil {
		s.metrics.Uploads.Inc()
	}

	digest := hash.Content(data)

	// Dedup fast path: must run before any remote I/O.
	existing, err := s.ledger.GetByContentHash(ctx, digest)
	if err == nil {
		s.log.Info("dedup hit", "content_hash", digest, "asset_id", existing.AssetID)
		if s.metrics != nil {
			s.metrics.DedupHits.Inc()
		}
		return &UploadResult{Asset: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, models.ErrAssetNotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	storageKey := hash.StorageKey(digest)

	obj, err := s.store.Upload(ctx, storageKey, data)
	if err != nil {
		s.log.Error("remote upload failed", "storage_key", storageKey, "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrRemoteUpload, err)
	}

	// Label the blob so the store side can distinguish un-promoted uploads.
	if err := s.store.Tag(ctx, storageKey, TagTemp); err != nil {
		s.log.Warn("failed to tag uploaded blob", "storage_key", storageKey, "error", err)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.retention.TempTTL)
	uploadedBy, _ := clients.GetActor(ctx)

	asset := &models.Asset{
		AssetID:     uuid.New(),
		StorageKey:  storageKey,
		DeliveryURL: obj.URL,
		ContentHash: digest,
		Status:      models.StatusTemp,
		ExpiresAt:   &expiresAt,
		Origin:      origin,
		IntendedUse: intendedUse,
		UsedBy:      []models.OwnerRef{},
		Meta: models.AssetMeta{
			Width:      obj.Width,
			Height:     obj.Height,
			Format:     obj.Format,
			SizeBytes:  obj.Bytes,
			ResourceID: obj.ResourceID,
		},
		UploadedBy: uploadedBy,
		CreatedAt:  now,
	}

	if err := s.ledger.Create(ctx, asset); err != nil {
		if errors.Is(err, repository.ErrDuplicateHash) {
			// Concurrent upload of identical bytes created the record first.
			winner, rerr := s.ledger.GetByContentHash(ctx, digest)
			if rerr != nil {
				return nil, fmt.Errorf("re-read after concurrent create: %w", rerr)
			}
			s.log.Info("concurrent create raced, returning winner",
				"content_hash", digest, "asset_id", winner.AssetID)
			if s.metrics != nil {
				s.metrics.DedupHits.Inc()
			}
			return &UploadResult{Asset: winner, Duplicate: true}, nil
		}

		// The blob is up but the record is not. Try to take the blob back
		// down; if that also fails the orphan is logged and counted so it
		// shows up in monitoring rather than leaking silently.
		if _, derr := s.store.Destroy(ctx, storageKey); derr != nil {
			s.log.Error("orphaned blob: record creation and cleanup both failed",
				"storage_key", storageKey, "create_error", err, "destroy_error", derr)
			if s.metrics != nil {
				s.metrics.OrphanedBlobs.Inc()
			}
		}
		return nil, fmt.Errorf("failed to create asset record: %w", err)
	}

	s.log.Info("asset created",
		"asset_id", asset.AssetID,
		"storage_key", storageKey,
		"content_hash", digest,
		"expires_at", expiresAt,
		"origin_source", origin.Source,
	)

	return &UploadResult{Asset: asset, Duplicate: false}, nil
}
