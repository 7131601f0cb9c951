package tosfs

import (
	"syscall"

	"github.com/jacobsa/fuse"
)

// POSIX codes the Core returns, one per failure kind in the error taxonomy.
// fuse.ENOENT and fuse.ENOSYS come from the kernel-protocol library itself
// (errors.go there defines them as bazilfuse.Errno aliases of the matching
// syscall.Errno); the remaining four follow the same pattern the library
// uses for ENOTEMPTY (bazilfuse.Errno(syscall.ENOTEMPTY)) but are not
// exported by the library, so this package defines them directly as
// syscall.Errno, which already satisfies the error interface the kernel
// bridge expects.
var (
	ErrNotFound     = fuse.ENOENT
	ErrNotDir       = syscall.ENOTDIR
	ErrNoSpace      = syscall.ENOSPC
	ErrNameTooLong  = syscall.E2BIG
	ErrTooBig       = syscall.EFBIG
	ErrNotSupported = fuse.ENOSYS
)
