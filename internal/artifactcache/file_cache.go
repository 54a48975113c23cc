package artifactcache

import (
	"encoding/hex"
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/errors"
)

// NewFileCache returns a Cache persisting entries as files under dir, one
// file per key, named by the key's hex form.
func NewFileCache(dir string) Cache {
	return &fileCache{dirPath: dir}
}

type fileCache struct {
	dirPath string
	dirOk   bool
	mux     sync.RWMutex
}

type fileReadCloser struct {
	*os.File
	fc *fileCache
}

func (fc *fileCache) path(key Key) string {
	return path.Join(fc.dirPath, hex.EncodeToString(key[:]))
}

func (fc *fileCache) Get(key Key) (content io.ReadCloser, ok bool, err error) {
	fc.mux.RLock()
	unlock := fc.mux.RUnlock
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	f, err := os.Open(fc.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	// Unlock moves to the content.Close at the call site.
	unlock = nil
	return &fileReadCloser{File: f, fc: fc}, true, nil
}

// Close wraps os.File.Close to release the read lock taken by Get.
func (f *fileReadCloser) Close() error {
	defer f.fc.mux.RUnlock()
	return f.File.Close()
}

func (fc *fileCache) Add(key Key, content io.Reader) error {
	fc.mux.Lock()
	defer fc.mux.Unlock()

	if err := fc.requireDir(); err != nil {
		return err
	}
	file, err := os.Create(fc.path(key))
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, content)
	return err
}

func (fc *fileCache) Delete(key Key) error {
	fc.mux.Lock()
	defer fc.mux.Unlock()

	err := os.Remove(fc.path(key))
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	return err
}

// requireDir ensures the configured directory exists before the first Add.
// Called under the write lock.
func (fc *fileCache) requireDir() error {
	if fc.dirOk {
		return nil
	}
	if s, err := os.Stat(fc.dirPath); errors.Is(err, os.ErrNotExist) {
		if err = os.MkdirAll(fc.dirPath, 0o700); err != nil {
			return errors.Wrapf(err, "artifactcache: creating dir %s", fc.dirPath)
		}
	} else if err != nil {
		return errors.Wrapf(err, "artifactcache: opening dir %s", fc.dirPath)
	} else if !s.IsDir() {
		return errors.Errorf("artifactcache: expected dir at %s", fc.dirPath)
	}
	fc.dirOk = true
	return nil
}
