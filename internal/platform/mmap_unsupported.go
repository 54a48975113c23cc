//go:build !(linux || freebsd)

package platform

import (
	"fmt"
	"os"
	"runtime"
)

var errUnsupported = fmt.Errorf("%s is not supported", runtime.GOOS)

func (p Protect) prot() int { return 0 }

func pageSize() uintptr { return uintptr(os.Getpagesize()) }

func roundUpToPageSize(size uintptr) uintptr {
	ps := pageSize()
	return (size + ps - 1) &^ (ps - 1)
}

func roundDownToPageSize(size uintptr) uintptr {
	return size &^ (pageSize() - 1)
}

func mmapAnon(uintptr, Protect) (uintptr, error) { return 0, errUnsupported }

func munmap(uintptr, uintptr) error { return errUnsupported }

func mprotect(uintptr, uintptr, Protect) error { return errUnsupported }

func closeFD(int) error { return errUnsupported }

// FromFilePath is unsupported on this platform.
func FromFilePath(string, Protect) (*Memory, error) { return nil, errUnsupported }
