// Package hash computes content digests used as the deduplication key and
// as the basis for remote storage keys, so identical bytes always collapse
// to one ledger record and one remote object.
package hash

import (
	"crypto/sha256"
	"fmt"
)

// Content computes the content digest of a byte buffer (sha256:abc123...).
// Pure function: no I/O, no side effects.
func Content(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", sum)
}

// StorageKey derives the remote storage key for a content digest.
// Keys are sharded by the first two hex characters to keep remote
// folder listings bounded: media/ab/ab34...
func StorageKey(contentHash string) string {
	hex := contentHash
	if len(hex) > 7 && hex[:7] == "sha256:" {
		hex = hex[7:]
	}
	return fmt.Sprintf("media/%s/%s", hex[:2], hex)
}
