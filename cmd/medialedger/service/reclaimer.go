package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/medialedger/common/clock"
	"github.com/lyzr/medialedger/common/config"
	"github.com/lyzr/medialedger/common/logger"
	"github.com/lyzr/medialedger/common/models"
	"github.com/lyzr/medialedger/common/telemetry"
)

const (
	sweepLockKey = "medialedger:reclaim:lock"
	sweepLockTTL = 30 * time.Minute
)

// SweepLock guards against overlapping reclamation runs across processes.
// The redis client wrapper is the production implementation.
type SweepLock interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// BlobDestroyer is the slice of the store boundary the reclaimer needs.
type BlobDestroyer interface {
	Destroy(ctx context.Context, key string) (found bool, err error)
}

// SweepStats summarizes one reclamation run.
type SweepStats struct {
	TempPurged     int
	ArchivedPurged int
	Skipped        int
	RemoteFailures int
}

// ReclaimerService is the recurring background task that purges expired
// temp assets and hard-deletes archived assets past retention.
type ReclaimerService struct {
	ledger    Ledger
	store     BlobDestroyer
	lock      SweepLock
	clock     clock.Clock
	retention config.RetentionConfig
	metrics   *telemetry.Telemetry
	log       *logger.Logger
}

// NewReclaimerService creates a new reclaimer
func NewReclaimerService(
	ledger Ledger,
	store BlobDestroyer,
	lock SweepLock,
	clk clock.Clock,
	retention config.RetentionConfig,
	metrics *telemetry.Telemetry,
	log *logger.Logger,
) *ReclaimerService {
	return &ReclaimerService{
		ledger:    ledger,
		store:     store,
		lock:      lock,
		clock:     clk,
		retention: retention,
		metrics:   metrics,
		log:       log,
	}
}

// Start launches the sweep timer. The loop stops when ctx is cancelled;
// an in-flight run finishes its current item and exits between items.
func (s *ReclaimerService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.retention.SweepInterval)
		defer ticker.Stop()

		s.log.Info("reclaimer started",
			"interval", s.retention.SweepInterval,
			"batch_size", s.retention.SweepBatchSize,
		)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("reclaimer stopped")
				return
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil && err != models.ErrSweepLocked {
					s.log.Error("reclamation run failed", "error", err)
				}
			}
		}
	}()
}

// Run executes one reclamation pass: the expired-temp sweep and the
// archived-retention sweep, each bounded to the configured batch size.
// Only one run may be active at a time; a held lock returns ErrSweepLocked.
func (s *ReclaimerService) Run(ctx context.Context) (*SweepStats, error) {
	acquired, err := s.lock.SetNX(ctx, sweepLockKey, s.clock.Now().Format(time.RFC3339), sweepLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.log.Info("reclamation sweep already running elsewhere, skipping")
		return nil, models.ErrSweepLocked
	}
	defer func() {
		if err := s.lock.Delete(context.WithoutCancel(ctx), sweepLockKey); err != nil {
			s.log.Warn("failed to release sweep lock, it will expire", "error", err)
		}
	}()

	stats := &SweepStats{}
	now := s.clock.Now()

	s.sweepExpiredTemp(ctx, now, stats)
	s.sweepArchived(ctx, now, stats)

	s.log.Info("reclamation run complete",
		"temp_purged", stats.TempPurged,
		"archived_purged", stats.ArchivedPurged,
		"skipped", stats.Skipped,
		"remote_failures", stats.RemoteFailures,
	)

	return stats, nil
}

func (s *ReclaimerService) sweepExpiredTemp(ctx context.Context, now time.Time, stats *SweepStats) {
	candidates, err := s.ledger.ListExpiredTemp(ctx, now, s.retention.SweepBatchSize)
	if err != nil {
		s.log.Error("expired temp sweep: candidate query failed", "error", err)
		return
	}

	for _, asset := range candidates {
		if ctx.Err() != nil {
			s.log.Info("expired temp sweep cancelled mid-batch")
			return
		}

		purged := s.purge(ctx, asset, stats, func(id uuid.UUID) (bool, error) {
			return s.ledger.PurgeTemp(ctx, id, now)
		})
		if purged {
			stats.TempPurged++
			if s.metrics != nil {
				s.metrics.AssetsPurged.WithLabelValues("temp").Inc()
			}
		}
	}
}

func (s *ReclaimerService) sweepArchived(ctx context.Context, now time.Time, stats *SweepStats) {
	cutoff := now.Add(-s.retention.ArchiveRetention)

	candidates, err := s.ledger.ListArchivedBefore(ctx, cutoff, s.retention.SweepBatchSize)
	if err != nil {
		s.log.Error("archived sweep: candidate query failed", "error", err)
		return
	}

	for _, asset := range candidates {
		if ctx.Err() != nil {
			s.log.Info("archived sweep cancelled mid-batch")
			return
		}

		purged := s.purge(ctx, asset, stats, func(id uuid.UUID) (bool, error) {
			return s.ledger.PurgeArchived(ctx, id, cutoff)
		})
		if purged {
			stats.ArchivedPurged++
			if s.metrics != nil {
				s.metrics.AssetsPurged.WithLabelValues("archived").Inc()
			}
		}
	}
}

// purge re-reads the candidate, destroys the blob, then deletes the ledger
// record through a conditional statement that re-verifies status, age and
// emptiness of the usage set at execution time. The initial query snapshot
// is never trusted on its own: an asset re-attached after selection is
// skipped before its blob is touched. Remote failure never blocks the
// ledger delete: the ledger is authoritative, blobs are best-effort cleanup.
func (s *ReclaimerService) purge(ctx context.Context, asset *models.Asset, stats *SweepStats, del func(uuid.UUID) (bool, error)) bool {
	current, err := s.ledger.GetByID(ctx, asset.AssetID)
	if err != nil {
		// Already gone or unreadable; nothing to purge this run.
		s.log.Debug("purge candidate vanished", "asset_id", asset.AssetID, "error", err)
		stats.Skipped++
		return false
	}
	if !current.IsUnused() || current.Status != asset.Status {
		s.log.Info("purge skipped, asset changed since selection",
			"asset_id", asset.AssetID, "storage_key", asset.StorageKey)
		stats.Skipped++
		return false
	}

	if found, err := s.store.Destroy(ctx, asset.StorageKey); err != nil {
		stats.RemoteFailures++
		if s.metrics != nil {
			s.metrics.RemoteDeleteFailed.Inc()
		}
		s.log.Warn("remote destroy failed during sweep, deleting ledger record anyway",
			"asset_id", asset.AssetID, "storage_key", asset.StorageKey, "error", err)
	} else if !found {
		s.log.Debug("blob already absent from store",
			"asset_id", asset.AssetID, "storage_key", asset.StorageKey)
	}

	purged, err := del(asset.AssetID)
	if err != nil {
		s.log.Error("ledger purge failed", "asset_id", asset.AssetID, "error", err)
		stats.Skipped++
		return false
	}
	if !purged {
		// Re-attached or re-promoted between candidate selection and now.
		s.log.Info("purge skipped, asset changed since selection",
			"asset_id", asset.AssetID, "storage_key", asset.StorageKey)
		stats.Skipped++
		return false
	}

	s.log.Info("asset purged", "asset_id", asset.AssetID, "storage_key", asset.StorageKey)
	return true
}
