package fs

import (
	"syscall"

	bazilfuse "bazil.org/fuse"
	"github.com/jacobsa/fuse"
)

// Error taxonomy at the filesystem boundary (spec.md §7). SQL failures are
// caught at the dispatcher boundary and translated to the nearest member
// here; nothing below crosses a component boundary as a panic or bare
// exception. jacobsa/fuse only predefines EIO, ENOENT and ENOSYS; the rest
// follow its own errors.go pattern of wrapping a syscall errno directly.
var (
	errNotFound       = fuse.ENOENT
	errIO             = fuse.EIO
	errReadOnly       = bazilfuse.Errno(syscall.EROFS)
	errPermission     = bazilfuse.Errno(syscall.EPERM)
	errNotImplemented = fuse.ENOSYS
	errIsDirectory    = bazilfuse.Errno(syscall.EISDIR)
	errNoData         = syscall.ENODATA
)
