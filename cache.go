package wasmer

import (
	"path/filepath"

	"github.com/multiversx/wasmer/internal/artifactcache"
)

// Cache persists compiled artifacts across processes. Regardless of its
// presence, compiled modules are cached in memory for the lifetime of their
// Runtime; a Cache extends that across runs.
//
// A directory must not be shared by runtimes of different versions: entries
// carry the producing version and stale ones are purged on read.
type Cache interface {
	// WithArtifactCacheDirName configures the destination directory,
	// creating it on first use.
	WithArtifactCacheDirName(dir string) error

	fileCache() artifactcache.Cache
}

// NewCache returns a Cache to be attached to a RuntimeConfig.
func NewCache() Cache {
	return &cache{}
}

type cache struct {
	fc artifactcache.Cache
}

// WithArtifactCacheDirName implements Cache.
func (c *cache) WithArtifactCacheDirName(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	c.fc = artifactcache.NewFileCache(abs)
	return nil
}

func (c *cache) fileCache() artifactcache.Cache {
	return c.fc
}
