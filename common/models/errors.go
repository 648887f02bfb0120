package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lifecycle engine.
var (
	// ErrAssetNotFound: no live ledger record matches the identifier.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetProtected: deletion of a permanent asset without the force flag.
	ErrAssetProtected = errors.New("asset is permanent; force flag required to archive it")

	// ErrRemoteUpload: the object store rejected or failed the upload.
	// No ledger record is created when this is returned.
	ErrRemoteUpload = errors.New("remote upload failed")

	// ErrSweepLocked: another reclamation run holds the advisory lock.
	ErrSweepLocked = errors.New("reclamation sweep already running")

	// ErrAssetArchived: promotion of an asset already in its grace period.
	// Archived assets are on their way out; they are never resurrected.
	ErrAssetArchived = errors.New("asset is archived and cannot be promoted")

	// ErrUnknownOwnerKind: the entity type is outside the closed owner set.
	ErrUnknownOwnerKind = errors.New("unknown owner kind")
)

// AssetInUseError refuses a deletion and names the blocking owners so the
// caller can act on them.
type AssetInUseError struct {
	StorageKey string
	UsedBy     []OwnerRef
}

func (e *AssetInUseError) Error() string {
	return fmt.Sprintf("asset %s is in use by %d entities: %s",
		e.StorageKey, len(e.UsedBy), ownerList(e.UsedBy))
}

func ownerList(refs []OwnerRef) string {
	s := ""
	for i, r := range refs {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s
}
