// Package fs adapts the path->query->projection core onto the
// bazil.org/fuse callback surface.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"fmt"
	"syscall"

	"pytagfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrPathNotFound indicates a virtual path doesn't resolve to any file or tag.
	ErrPathNotFound = errors.New("path not found")

	// ErrInvalidPath indicates a nonsensical operation: illegal name, tag-into-tag
	// move, or a rename mixing file and tag semantics.
	ErrInvalidPath = errors.New("invalid path")

	// ErrAlreadyExists indicates a create/rename target collides with an
	// existing file name or a tag visible at that depth.
	ErrAlreadyExists = errors.New("path already exists")

	// ErrNotEmpty indicates rmdir on a tag that still has matching files.
	ErrNotEmpty = errors.New("tag not empty")

	// ErrNotSupported indicates an operation this filesystem never implements
	// (hard links, xattrs beyond the pass-through set).
	ErrNotSupported = errors.New("operation not supported")

	// ErrPermissionDenied indicates an operation violates the fixed
	// mount-wide permission policy.
	ErrPermissionDenied = errors.New("permission denied")
)

// Error (renamed from FSError because of linter) wraps a core error with
// the operation and path that produced it.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "readdir")
	Path string // Affected path
	Err  error  // Underlying sentinel error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ToFuseError converts an internal error to the syscall errno bazil.org/fuse
// expects as a node/handle method's return value.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var fsErr *Error
	underlying := err
	if errors.As(err, &fsErr) {
		errLogger.Trace("converting error: %v", fsErr)
		underlying = fsErr.Err
	}

	switch {
	case errors.Is(underlying, ErrPathNotFound):
		return syscall.ENOENT
	case errors.Is(underlying, ErrInvalidPath):
		return syscall.EINVAL
	case errors.Is(underlying, ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(underlying, ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(underlying, ErrNotSupported):
		return syscall.ENOSYS
	case errors.Is(underlying, ErrPermissionDenied):
		return syscall.EACCES
	default:
		errLogger.Debug("unmapped error, returning EIO: %v", err)
		return syscall.EIO
	}
}

// NewError creates a new Error with the given operation, path, and
// underlying sentinel error.
func NewError(op, path string, err error) *Error {
	fsErr := &Error{Op: op, Path: path, Err: err}
	errLogger.Debug("new error: %v", fsErr)
	return fsErr
}

// Common operation names for consistent logging and error reporting.
const (
	OpLookup   = "lookup"
	OpReadDir  = "readdir"
	OpGetattr  = "getattr"
	OpOpen     = "open"
	OpRead     = "read"
	OpWrite    = "write"
	OpCreate   = "create"
	OpMkdir    = "mkdir"
	OpUnlink   = "unlink"
	OpRmdir    = "rmdir"
	OpRename   = "rename"
	OpSymlink  = "symlink"
	OpReadlink = "readlink"
	OpTruncate = "truncate"
	OpSetattr  = "setattr"
)
