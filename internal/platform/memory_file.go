//go:build linux || freebsd

package platform

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func closeFD(fd int) error { return unix.Close(fd) }

// FromFilePath maps the named file privately with the given protection. The
// mapping owns the descriptor and closes it when the last split is unmapped.
func FromFilePath(path string, protection Protect) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		f.Close()
		return &Memory{protection: protection}, nil
	}
	// The tail of the last page past end of file reads as zeros.
	size := roundUpToPageSize(uintptr(st.Size()))

	fd, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		return nil, errors.Wrap(err, "dup")
	}

	ptr, err := mmapFile(fd, size, protection)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "mmap of %s (%d bytes)", path, size)
	}
	return &Memory{
		ptr:        ptr,
		size:       size,
		protection: protection,
		fd:         newSharedFD(fd),
	}, nil
}
