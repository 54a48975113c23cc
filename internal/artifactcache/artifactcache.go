// Package artifactcache persists serialized artifacts across processes so a
// module compiled once can be reloaded without its compiler.
package artifactcache

import (
	"crypto/sha256"
	"io"
)

// Key is the 256-bit identifier of a cached artifact: the hash of the guest
// module bytes it was compiled from.
type Key = [sha256.Size]byte

// HashWasm derives the cache key for a guest module. No verification is made
// that the bytes are, in fact, a wasm module.
func HashWasm(wasm []byte) Key {
	return sha256.Sum256(wasm)
}

// Cache is the interface artifact caches implement. Implementations must be
// safe for concurrent use.
//
// The content passed to Add is returned as-is by Get; implementations that
// need integrity on top of that (signing, TTLs) layer it themselves, since
// cached binaries do not go through the validation a fresh compilation gets.
type Cache interface {
	// Get returns a reader over the cached content, ok reporting whether the
	// key was found. The caller closes content.
	Get(key Key) (content io.ReadCloser, ok bool, err error)
	// Add stores content under key, replacing any previous entry.
	Add(key Key, content io.Reader) error
	// Delete purges the entry, typically because its version is stale.
	// Deleting a missing key is not an error.
	Delete(key Key) error
}
