package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContent_Deterministic(t *testing.T) {
	a := Content([]byte("same bytes"))
	b := Content([]byte("same bytes"))
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sha256:"))
}

func TestContent_DistinctInputs(t *testing.T) {
	a := Content([]byte("one"))
	b := Content([]byte("two"))
	assert.NotEqual(t, a, b)
}

func TestStorageKey_DerivedFromDigest(t *testing.T) {
	digest := Content([]byte("payload"))
	key := StorageKey(digest)

	hex := strings.TrimPrefix(digest, "sha256:")
	assert.Equal(t, "media/"+hex[:2]+"/"+hex, key)

	// Same digest always maps to the same key, so concurrent uploads of
	// identical bytes collide on one remote object.
	assert.Equal(t, key, StorageKey(digest))
}
