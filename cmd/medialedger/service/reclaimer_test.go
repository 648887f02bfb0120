package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/medialedger/common/clock"
	"github.com/lyzr/medialedger/common/models"
)

func newReclaimer(ledger Ledger, store *fakeStore, lock SweepLock, clk clock.Clock) *ReclaimerService {
	return NewReclaimerService(ledger, store, lock, clk, testRetention(), nil, testLogger())
}

func TestRun_PurgesExpiredTemp(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	asset := seedAsset(t, ledger, store, clk, []byte("abandoned-upload"))

	clk.Advance(25 * time.Hour)

	stats, err := newReclaimer(ledger, store, &fakeLock{}, clk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TempPurged)
	assert.Equal(t, 0, stats.ArchivedPurged)

	_, err = ledger.GetByID(context.Background(), asset.AssetID)
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
	assert.Equal(t, 1, store.destroyCount(asset.StorageKey))
}

func TestRun_LeavesUnexpiredTempAlone(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	asset := seedAsset(t, ledger, store, clk, []byte("fresh-upload"))

	clk.Advance(time.Hour)

	stats, err := newReclaimer(ledger, store, &fakeLock{}, clk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TempPurged)

	_, err = ledger.GetByID(context.Background(), asset.AssetID)
	assert.NoError(t, err)
	assert.Equal(t, 0, store.destroyCount(asset.StorageKey))
}

func TestRun_PurgesArchivedPastRetention(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	asset := seedAsset(t, ledger, store, clk, []byte("retired"))
	lifecycle := newLifecycleService(ledger, store, clk)
	_, err := lifecycle.Promote(context.Background(), asset.StorageKey, "", "")
	require.NoError(t, err)
	_, err = lifecycle.Delete(context.Background(), asset.StorageKey, true)
	require.NoError(t, err)

	// Inside the grace period nothing happens.
	clk.Advance(6 * 24 * time.Hour)
	stats, err := newReclaimer(ledger, store, &fakeLock{}, clk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ArchivedPurged)

	// Past retention the record and the blob both go.
	clk.Advance(2 * 24 * time.Hour)
	stats, err = newReclaimer(ledger, store, &fakeLock{}, clk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArchivedPurged)

	_, err = ledger.GetByID(context.Background(), asset.AssetID)
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
	assert.Equal(t, 1, store.destroyCount(asset.StorageKey))
}

func TestRun_BoundsEachSweepToBatchSize(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	first := seedAsset(t, ledger, store, clk, []byte("expired-one"))
	second := seedAsset(t, ledger, store, clk, []byte("expired-two"))
	clk.Advance(25 * time.Hour)

	retention := testRetention()
	retention.SweepBatchSize = 1
	r := NewReclaimerService(ledger, store, &fakeLock{}, clk, retention, nil, testLogger())

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TempPurged)

	// Exactly one survives for the next run.
	remaining := 0
	if _, err := ledger.GetByID(context.Background(), first.AssetID); err == nil {
		remaining++
	}
	if _, err := ledger.GetByID(context.Background(), second.AssetID); err == nil {
		remaining++
	}
	assert.Equal(t, 1, remaining)

	stats, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TempPurged)

	_, err = ledger.GetByID(context.Background(), first.AssetID)
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
	_, err = ledger.GetByID(context.Background(), second.AssetID)
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
}

func TestRun_HeldLockReturnsErrSweepLocked(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	lock := &fakeLock{held: true}
	_, err := newReclaimer(ledger, store, lock, clk).Run(context.Background())
	assert.ErrorIs(t, err, models.ErrSweepLocked)
}

func TestRun_ReleasesLockAfterRun(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	lock := &fakeLock{}
	r := newReclaimer(ledger, store, lock, clk)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// A second run must be able to re-acquire.
	_, err = r.Run(context.Background())
	assert.NoError(t, err)
}

func TestRun_RemoteFailureStillDeletesRecord(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	asset := seedAsset(t, ledger, store, clk, []byte("stuck-blob"))
	clk.Advance(25 * time.Hour)

	store.failDestroy = errors.New("store unavailable")

	stats, err := newReclaimer(ledger, store, &fakeLock{}, clk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TempPurged)
	assert.Equal(t, 1, stats.RemoteFailures)

	// The ledger is authoritative: the record goes even when the blob stays.
	_, err = ledger.GetByID(context.Background(), asset.AssetID)
	assert.ErrorIs(t, err, models.ErrAssetNotFound)
}

func TestRun_SkipsCandidateReattachedAfterSelection(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	asset := seedAsset(t, ledger, store, clk, []byte("rescued"))
	clk.Advance(25 * time.Hour)

	// The asset is promoted between candidate selection and the purge.
	raced := &promotingLedger{
		fakeLedger: ledger,
		storageKey: asset.StorageKey,
	}

	stats, err := newReclaimer(raced, store, &fakeLock{}, clk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TempPurged)
	assert.Equal(t, 1, stats.Skipped)

	// The re-read caught the change before the blob was touched.
	assert.Equal(t, 0, store.destroyCount(asset.StorageKey))

	current, err := ledger.GetByID(context.Background(), asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPermanent, current.Status)
}

// promotingLedger promotes the asset right after the sweep selects it,
// simulating a user rescuing an upload mid-sweep.
type promotingLedger struct {
	*fakeLedger
	storageKey string
	fired      bool
}

func (p *promotingLedger) ListExpiredTemp(ctx context.Context, now time.Time, limit int) ([]*models.Asset, error) {
	out, err := p.fakeLedger.ListExpiredTemp(ctx, now, limit)
	if err == nil && !p.fired && len(out) > 0 {
		p.fired = true
		ref := models.OwnerRef{EntityType: models.OwnerProduct, EntityID: "P-rescue"}
		if _, perr := p.fakeLedger.Promote(ctx, p.storageKey, &ref); perr != nil {
			return nil, perr
		}
	}
	return out, err
}

// TestAssetLifecycle_EndToEnd walks one asset through the whole state
// machine: duplicate upload, promotion, in-use refusal, detach, protected
// refusal, forced archive, and reclamation after the retention window.
func TestAssetLifecycle_EndToEnd(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	uploads := newUploadService(ledger, store, clk)
	lifecycle := newLifecycleService(ledger, store, clk)
	reclaimer := newReclaimer(ledger, store, &fakeLock{}, clk)

	data := []byte("product-photo")

	// Two uploads of the same bytes resolve to one asset and one remote call.
	first, err := uploads.Upload(ctx, data, models.Origin{Source: "product", Context: "form"}, nil)
	require.NoError(t, err)
	second, err := uploads.Upload(ctx, data, models.Origin{Source: "product", Context: "form"}, nil)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Asset.AssetID, second.Asset.AssetID)
	require.Equal(t, 1, store.uploadCount(first.Asset.StorageKey))

	key := first.Asset.StorageKey

	// Promotion binds the product and makes the asset permanent.
	promoted, err := lifecycle.Promote(ctx, key, "product", "P1")
	require.NoError(t, err)
	require.Equal(t, models.StatusPermanent, promoted.Status)

	// While in use, deletion is refused even with force.
	_, err = lifecycle.Delete(ctx, key, true)
	var inUse *models.AssetInUseError
	require.ErrorAs(t, err, &inUse)

	// Detaching the product empties the usage set but keeps permanence.
	detached, err := lifecycle.Detach(ctx, key, "product", "P1")
	require.NoError(t, err)
	require.Empty(t, detached.UsedBy)
	require.Equal(t, models.StatusPermanent, detached.Status)

	// Unused permanent still needs the force flag.
	_, err = lifecycle.Delete(ctx, key, false)
	require.ErrorIs(t, err, models.ErrAssetProtected)

	// Forced deletion archives with a grace period; the blob stays up.
	res, err := lifecycle.Delete(ctx, key, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeArchived, res.Outcome)
	require.Equal(t, 0, store.destroyCount(key))

	// After the retention window the sweep removes record and blob.
	clk.Advance(8 * 24 * time.Hour)
	stats, err := reclaimer.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ArchivedPurged)

	_, err = ledger.GetByID(ctx, first.Asset.AssetID)
	require.ErrorIs(t, err, models.ErrAssetNotFound)
	require.Equal(t, 1, store.destroyCount(key))
}
