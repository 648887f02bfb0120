package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/medialedger/cmd/medialedger/repository"
	"github.com/lyzr/medialedger/common/clients"
	"github.com/lyzr/medialedger/common/logger"
	"github.com/lyzr/medialedger/common/models"
)

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

// fakeLedger is an in-memory Ledger with the same conditional-update
// semantics as the Postgres repository.
type fakeLedger struct {
	mu     sync.Mutex
	assets map[uuid.UUID]*models.Asset

	failCreate error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{assets: make(map[uuid.UUID]*models.Asset)}
}

func (f *fakeLedger) Create(ctx context.Context, asset *models.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return f.failCreate
	}
	for _, a := range f.assets {
		if a.ContentHash == asset.ContentHash {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateHash, asset.ContentHash)
		}
	}
	f.assets[asset.AssetID] = copyAsset(asset)
	return nil
}

func (f *fakeLedger) GetByID(ctx context.Context, assetID uuid.UUID) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.assets[assetID]; ok {
		return copyAsset(a), nil
	}
	return nil, models.ErrAssetNotFound
}

func (f *fakeLedger) GetByStorageKey(ctx context.Context, storageKey string) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a := f.findByKey(storageKey); a != nil {
		return copyAsset(a), nil
	}
	return nil, models.ErrAssetNotFound
}

func (f *fakeLedger) GetByContentHash(ctx context.Context, contentHash string) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.assets {
		if a.ContentHash == contentHash {
			return copyAsset(a), nil
		}
	}
	return nil, models.ErrAssetNotFound
}

func (f *fakeLedger) Promote(ctx context.Context, storageKey string, ref *models.OwnerRef) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.findByKey(storageKey)
	if a == nil {
		return nil, models.ErrAssetNotFound
	}
	if a.Status == models.StatusArchived {
		return nil, models.ErrAssetArchived
	}
	a.Status = models.StatusPermanent
	a.ExpiresAt = nil
	a.ArchivedAt = nil
	if ref != nil && !a.UsedByEntity(*ref) {
		a.UsedBy = append(a.UsedBy, *ref)
	}
	return copyAsset(a), nil
}

func (f *fakeLedger) Detach(ctx context.Context, storageKey string, ref models.OwnerRef) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.findByKey(storageKey)
	if a == nil {
		return nil, models.ErrAssetNotFound
	}
	kept := a.UsedBy[:0]
	for _, u := range a.UsedBy {
		if u != ref {
			kept = append(kept, u)
		}
	}
	a.UsedBy = kept
	return copyAsset(a), nil
}

func (f *fakeLedger) Archive(ctx context.Context, assetID uuid.UUID, archivedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[assetID]
	if !ok || a.Status != models.StatusPermanent || len(a.UsedBy) > 0 {
		return false, nil
	}
	a.Status = models.StatusArchived
	at := archivedAt
	a.ArchivedAt = &at
	a.UsedBy = []models.OwnerRef{}
	return true, nil
}

func (f *fakeLedger) DeleteTemp(ctx context.Context, assetID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[assetID]
	if !ok || a.Status != models.StatusTemp || len(a.UsedBy) > 0 {
		return false, nil
	}
	delete(f.assets, assetID)
	return true, nil
}

func (f *fakeLedger) ListExpiredTemp(ctx context.Context, now time.Time, limit int) ([]*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Asset
	for _, a := range f.assets {
		if len(out) == limit {
			break
		}
		if a.Status == models.StatusTemp && a.ExpiresAt != nil && a.ExpiresAt.Before(now) && len(a.UsedBy) == 0 {
			out = append(out, copyAsset(a))
		}
	}
	return out, nil
}

func (f *fakeLedger) ListArchivedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Asset
	for _, a := range f.assets {
		if len(out) == limit {
			break
		}
		if a.Status == models.StatusArchived && a.ArchivedAt != nil && a.ArchivedAt.Before(cutoff) && len(a.UsedBy) == 0 {
			out = append(out, copyAsset(a))
		}
	}
	return out, nil
}

func (f *fakeLedger) PurgeTemp(ctx context.Context, assetID uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[assetID]
	if !ok || a.Status != models.StatusTemp || a.ExpiresAt == nil || !a.ExpiresAt.Before(now) || len(a.UsedBy) > 0 {
		return false, nil
	}
	delete(f.assets, assetID)
	return true, nil
}

func (f *fakeLedger) PurgeArchived(ctx context.Context, assetID uuid.UUID, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[assetID]
	if !ok || a.Status != models.StatusArchived || a.ArchivedAt == nil || !a.ArchivedAt.Before(cutoff) || len(a.UsedBy) > 0 {
		return false, nil
	}
	delete(f.assets, assetID)
	return true, nil
}

func (f *fakeLedger) findByKey(storageKey string) *models.Asset {
	for _, a := range f.assets {
		if a.StorageKey == storageKey {
			return a
		}
	}
	return nil
}

func copyAsset(a *models.Asset) *models.Asset {
	c := *a
	c.UsedBy = append([]models.OwnerRef{}, a.UsedBy...)
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	if a.ArchivedAt != nil {
		t := *a.ArchivedAt
		c.ArchivedAt = &t
	}
	return &c
}

// fakeStore counts remote calls and can be told to fail.
type fakeStore struct {
	mu       sync.Mutex
	uploads  map[string]int
	destroys map[string]int
	tags     map[string][]string

	failUpload  error
	failDestroy error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uploads:  make(map[string]int),
		destroys: make(map[string]int),
		tags:     make(map[string][]string),
	}
}

func (s *fakeStore) Upload(ctx context.Context, key string, data []byte) (*clients.StoreObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpload != nil {
		return nil, s.failUpload
	}
	s.uploads[key]++
	return &clients.StoreObject{
		Key:        key,
		URL:        "http://cdn.test/" + key,
		Width:      800,
		Height:     600,
		Format:     "png",
		Bytes:      int64(len(data)),
		ResourceID: "res-" + key,
	}, nil
}

func (s *fakeStore) Destroy(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDestroy != nil {
		return false, s.failDestroy
	}
	s.destroys[key]++
	return true, nil
}

func (s *fakeStore) Tag(ctx context.Context, key, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = append(s.tags[key], label)
	return nil
}

func (s *fakeStore) Untag(ctx context.Context, key, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tags[key][:0]
	for _, l := range s.tags[key] {
		if l != label {
			kept = append(kept, l)
		}
	}
	s.tags[key] = kept
	return nil
}

func (s *fakeStore) DeliveryURL(key string) string {
	return "http://cdn.test/" + key
}

func (s *fakeStore) uploadCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[key]
}

func (s *fakeStore) destroyCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroys[key]
}

// fakeLock is an in-process SweepLock.
type fakeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLock) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Delete(ctx context.Context, keys ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}
