//go:build linux || freebsd

package platform

import (
	"golang.org/x/sys/unix"
)

func (p Protect) prot() int {
	switch p {
	case ProtectNone:
		return unix.PROT_NONE
	case ProtectRead:
		return unix.PROT_READ
	case ProtectReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case ProtectReadExec:
		return unix.PROT_READ | unix.PROT_EXEC
	case ProtectReadWriteExec:
		return unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	}
	return unix.PROT_NONE
}

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

func roundUpToPageSize(size uintptr) uintptr {
	ps := pageSize()
	return (size + ps - 1) &^ (ps - 1)
}

func roundDownToPageSize(size uintptr) uintptr {
	return size &^ (pageSize() - 1)
}

// mmapAnon maps size bytes of anonymous private memory. Raw syscalls are used
// instead of unix.Mmap because the latter tracks mappings by their base
// address, which breaks unmapping the halves a SplitAt produces.
func mmapAnon(size uintptr, protection Protect) (uintptr, error) {
	ptr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		0,
		size,
		uintptr(protection.prot()),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANON),
		^uintptr(0), // fd -1
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return ptr, nil
}

// mmapFile maps size bytes of the file privately (copy-on-write).
func mmapFile(fd int, size uintptr, protection Protect) (uintptr, error) {
	ptr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		0,
		size,
		uintptr(protection.prot()),
		uintptr(unix.MAP_PRIVATE),
		uintptr(fd),
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return ptr, nil
}

func munmap(ptr, size uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, ptr, size, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func mprotect(ptr, size uintptr, protection Protect) error {
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, ptr, size, uintptr(protection.prot()))
	if errno != 0 {
		return errno
	}
	return nil
}
