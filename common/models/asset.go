package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetStatus represents the lifecycle state of an asset.
// Purged is not a stored status: a purged asset is a deleted row.
type AssetStatus string

const (
	StatusTemp      AssetStatus = "temp"
	StatusPermanent AssetStatus = "permanent"
	StatusArchived  AssetStatus = "archived"
)

// OwnerKind is the closed set of entity types that may reference an asset.
// Free-form owner strings are rejected at the boundary.
type OwnerKind string

const (
	OwnerProduct  OwnerKind = "product"
	OwnerCategory OwnerKind = "category"
	OwnerCMSBlock OwnerKind = "cms_block"
)

// ParseOwnerKind validates an entity-type string against the known owner kinds.
func ParseOwnerKind(s string) (OwnerKind, error) {
	switch OwnerKind(s) {
	case OwnerProduct, OwnerCategory, OwnerCMSBlock:
		return OwnerKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOwnerKind, s)
}

// OwnerRef identifies one entity currently using an asset.
type OwnerRef struct {
	EntityType OwnerKind `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
}

func (o OwnerRef) String() string {
	return string(o.EntityType) + ":" + o.EntityID
}

// Origin records which subsystem and context created an upload.
// Set once at upload time, never mutated.
type Origin struct {
	Source  string `json:"source"`
	Context string `json:"context"`
}

// AssetMeta holds descriptive metadata returned by the object store.
// Purely informational; never drives lifecycle decisions.
type AssetMeta struct {
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Format     string `json:"format,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

// Asset is one ledger record per distinct content digest.
// Maps to: asset table
type Asset struct {
	// Unique asset ID
	AssetID uuid.UUID `db:"asset_id" json:"asset_id"`

	// Key addressing the blob in the remote store (unique)
	StorageKey string `db:"storage_key" json:"storage_key"`

	// Resolvable URL for the blob; re-derivable from StorageKey
	DeliveryURL string `db:"delivery_url" json:"delivery_url"`

	// Content digest (sha256:abc123...); unique across live records
	ContentHash string `db:"content_hash" json:"content_hash"`

	Status AssetStatus `db:"status" json:"status"`

	// Set on creation for temp assets, cleared on promotion
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`

	// Set when the asset is archived
	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`

	// Immutable provenance
	Origin Origin `db:"origin" json:"origin"`

	// Advisory hint about the eventual owner type; never enforced
	IntendedUse *string `db:"intended_use" json:"intended_use,omitempty"`

	// Every entity currently referencing this asset. Empty means unused.
	UsedBy []OwnerRef `db:"used_by" json:"used_by"`

	// Descriptive metadata from the store (JSONB)
	Meta AssetMeta `db:"meta" json:"meta"`

	// Audit fields
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IsUnused reports whether no entity currently references the asset.
func (a *Asset) IsUnused() bool {
	return len(a.UsedBy) == 0
}

// UsedByEntity reports whether the given owner already references the asset.
func (a *Asset) UsedByEntity(ref OwnerRef) bool {
	for _, u := range a.UsedBy {
		if u == ref {
			return true
		}
	}
	return false
}

// OwnerSummary renders the usage list for refusal messages.
func (a *Asset) OwnerSummary() string {
	parts := make([]string, 0, len(a.UsedBy))
	for _, u := range a.UsedBy {
		parts = append(parts, u.String())
	}
	return strings.Join(parts, ", ")
}
