// Package platform provides the virtual-memory primitives the runtime needs
// to hold compiled code: page-aligned mappings with explicit protection,
// splittable at page boundaries and restorable across processes.
package platform

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// sharedFD is a reference-counted file descriptor shared by the mappings a
// SplitAt produced from one file mapping. The last release closes it.
type sharedFD struct {
	fd   int
	refs int32
}

func newSharedFD(fd int) *sharedFD {
	return &sharedFD{fd: fd, refs: 1}
}

// retain increments the reference count, tolerating a nil receiver so
// anonymous mappings can split without special cases.
func (s *sharedFD) retain() *sharedFD {
	if s == nil {
		return nil
	}
	atomic.AddInt32(&s.refs, 1)
	return s
}

func (s *sharedFD) release() error {
	if s == nil {
		return nil
	}
	if atomic.AddInt32(&s.refs, -1) == 0 {
		return closeFD(s.fd)
	}
	return nil
}

// Protect is the access classification applied to a mapping.
type Protect uint8

const (
	// ProtectNone disallows all access.
	ProtectNone Protect = iota
	// ProtectRead allows reads only.
	ProtectRead
	// ProtectReadWrite allows reads and writes.
	ProtectReadWrite
	// ProtectReadExec allows reads and instruction fetch.
	ProtectReadExec
	// ProtectReadWriteExec allows reads, writes and instruction fetch.
	ProtectReadWriteExec
)

// IsReadable returns true if mappings with this protection can be read.
func (p Protect) IsReadable() bool {
	return p == ProtectRead || p == ProtectReadWrite || p == ProtectReadExec || p == ProtectReadWriteExec
}

// IsWritable returns true if mappings with this protection can be written.
func (p Protect) IsWritable() bool {
	return p == ProtectReadWrite || p == ProtectReadWriteExec
}

func (p Protect) String() string {
	switch p {
	case ProtectNone:
		return "none"
	case ProtectRead:
		return "r"
	case ProtectReadWrite:
		return "rw"
	case ProtectReadExec:
		return "rx"
	case ProtectReadWriteExec:
		return "rwx"
	}
	return fmt.Sprintf("protect(%d)", uint8(p))
}

// Memory is a sized and protected region of virtual memory. size is always a
// multiple of the page size; contentSize tracks the logically-meaningful
// prefix, which is what serialization captures. A Memory backed by a file
// mapping shares its descriptor with siblings produced by SplitAt; the last
// one unmapped closes it.
//
// Memory is not managed by the garbage collector: the owner must call Unmap
// exactly once, after which the value must not be used.
type Memory struct {
	ptr         uintptr
	size        uintptr
	protection  Protect
	contentSize uint32
	fd          *sharedFD
}

// WithSize allocates an anonymous mapping of at least size bytes with no
// access permissions. A zero size yields a placeholder with no mapping.
func WithSize(size uintptr) (*Memory, error) {
	return WithSizeProtect(size, ProtectNone)
}

// WithSizeProtect allocates an anonymous mapping of at least size bytes,
// rounded up to the page size, with the given protection.
func WithSizeProtect(size uintptr, protection Protect) (*Memory, error) {
	if size == 0 {
		return &Memory{protection: protection}, nil
	}

	size = roundUpToPageSize(size)
	ptr, err := mmapAnon(size, protection)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap of %d bytes", size)
	}
	return &Memory{ptr: ptr, size: size, protection: protection}, nil
}

// WithContentSizeProtect allocates like WithSizeProtect and records
// contentSize, for callers that must track the meaningful prefix (e.g. the
// artifact loader).
func WithContentSizeProtect(contentSize uint32, protection Protect) (*Memory, error) {
	m, err := WithSizeProtect(uintptr(contentSize), protection)
	if err != nil {
		return nil, err
	}
	m.contentSize = contentSize
	return m, nil
}

// Protect changes the protection of the pages spanning [start, end). The
// bounds are rounded outward to page boundaries and must fit the mapping.
func (m *Memory) Protect(start, end uintptr, protection Protect) error {
	if end < start || end > m.size {
		return errors.Errorf("protect range [%d, %d) outside mapping of %d bytes", start, end, m.size)
	}

	pageStart := roundDownToPageSize(start)
	length := roundUpToPageSize(end - pageStart)
	if pageStart+length > m.size {
		length = m.size - pageStart
	}
	if err := mprotect(m.ptr+pageStart, length, protection); err != nil {
		return errors.Wrapf(err, "mprotect [%d, %d) to %s", pageStart, pageStart+length, protection)
	}
	m.protection = protection
	return nil
}

// ProtectAll changes the protection of the whole mapping.
func (m *Memory) ProtectAll(protection Protect) error {
	if m.ptr == 0 {
		m.protection = protection
		return nil
	}
	return m.Protect(0, m.size, protection)
}

// SplitAt divides the mapping in two at offset, which must be a multiple of
// the page size: the receiver keeps [0, offset) and the returned Memory owns
// [offset, size). Both halves are unmapped independently; a shared file
// descriptor is closed when the last half goes.
//
// SplitAt panics on a misaligned offset, as that is always a caller bug.
func (m *Memory) SplitAt(offset uintptr) *Memory {
	if offset%pageSize() != 0 {
		panic(fmt.Sprintf("platform: split offset must be a multiple of the page size: %d", offset))
	}
	if offset > m.size {
		panic(fmt.Sprintf("platform: split offset %d beyond mapping of %d bytes", offset, m.size))
	}

	second := &Memory{
		ptr:        m.ptr + offset,
		size:       m.size - offset,
		protection: m.protection,
		fd:         m.fd.retain(),
	}
	m.size = offset
	return second
}

// Clone allocates a fresh anonymous mapping of the same size, copies the
// contents and applies the source protection. A non-readable or non-writable
// source is copied through a temporary ReadWrite protection.
func (m *Memory) Clone() (*Memory, error) {
	if m.ptr == 0 {
		return &Memory{protection: m.protection, contentSize: m.contentSize}, nil
	}

	tempProtection := m.protection
	if !tempProtection.IsWritable() {
		tempProtection = ProtectReadWrite
	}
	clone, err := WithSizeProtect(m.size, tempProtection)
	if err != nil {
		return nil, err
	}
	clone.contentSize = m.contentSize

	restoreSource := false
	if !m.protection.IsReadable() {
		if err = m.Protect(0, m.size, ProtectReadWrite); err != nil {
			mustUnmap(clone)
			return nil, err
		}
		restoreSource = true
	}

	copy(clone.AsSliceMut(), m.AsSlice())

	if restoreSource {
		if err = m.Protect(0, m.size, ProtectNone); err != nil {
			mustUnmap(clone)
			return nil, err
		}
		m.protection = ProtectNone
	}
	if tempProtection != m.protection {
		if err = clone.Protect(0, clone.size, m.protection); err != nil {
			mustUnmap(clone)
			return nil, err
		}
	}
	return clone, nil
}

// Unmap releases the mapping. It is an error to call it twice.
func (m *Memory) Unmap() error {
	if m.ptr == 0 && m.size == 0 {
		if m.fd != nil {
			err := m.fd.release()
			m.fd = nil
			return err
		}
		return nil
	}
	if err := munmap(m.ptr, m.size); err != nil {
		return errors.Wrap(err, "munmap")
	}
	m.ptr = 0
	m.size = 0
	if m.fd != nil {
		err := m.fd.release()
		m.fd = nil
		return err
	}
	return nil
}

func mustUnmap(m *Memory) {
	if err := m.Unmap(); err != nil {
		panic(err)
	}
}

// Size returns the mapping size in bytes, always a page multiple.
func (m *Memory) Size() uintptr { return m.size }

// ContentSize returns the size of the logically-meaningful prefix.
func (m *Memory) ContentSize() uint32 { return m.contentSize }

// SetContentSize records the size of the logically-meaningful prefix. It is
// set manually because the meaning differs per producer.
func (m *Memory) SetContentSize(size uint32) { m.contentSize = size }

// Protection returns the current protection of the mapping.
func (m *Memory) Protection() Protect { return m.protection }

// Ptr returns the base address of the mapping, zero for a placeholder.
func (m *Memory) Ptr() uintptr { return m.ptr }

// AsSlice returns the full mapping as a byte slice. The caller must observe
// the current protection.
func (m *Memory) AsSlice() []byte {
	if m.ptr == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(m.ptr)), m.size)
}

// AsSliceContents returns the contentSize prefix of the mapping.
func (m *Memory) AsSliceContents() []byte {
	if m.ptr == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(m.ptr)), m.contentSize)
}

// AsSliceMut returns the full mapping as a mutable byte slice. The caller
// must observe the current protection.
func (m *Memory) AsSliceMut() []byte {
	return m.AsSlice()
}
