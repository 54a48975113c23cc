package artifact

import "sync/atomic"

// Scheme selects the body encoding of produced and consumed caches.
type Scheme uint32

const (
	// SchemeSequential is the compact sequential encoding.
	SchemeSequential Scheme = iota
	// SchemeArchival is the zero-copy encoding whose on-disk layout equals
	// its in-memory layout, loadable in place from a file mapping.
	SchemeArchival
)

// currentScheme is process-global and read-mostly; once a process starts
// producing caches it must not change, or producers and consumers disagree.
var currentScheme uint32

// SetScheme selects the process-global body encoding.
func SetScheme(s Scheme) {
	atomic.StoreUint32(&currentScheme, uint32(s))
}

// CurrentScheme returns the process-global body encoding.
func CurrentScheme() Scheme {
	return Scheme(atomic.LoadUint32(&currentScheme))
}
