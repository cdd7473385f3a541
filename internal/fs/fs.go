// Package fs adapts the path->query->projection core onto the
// bazil.org/fuse callback surface (spec §4.8 Dispatcher). It holds the
// single process-wide RWMutex of spec §5: shared for reads (Lookup,
// Attr, ReadDirAll, Read, Readlink), exclusive for mutations (Create,
// Mkdir, Remove, Rename, Symlink, Setattr, Write).
package fs

import (
	"errors"
	"sync"

	"pytagfs/internal/logging"
	"pytagfs/internal/planner"
	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"

	fusefs "bazil.org/fuse/fs"
)

var fsLogger = logging.GetLogger().WithPrefix("fs")

// FS is the fusefs.FS implementation rooted at the mount point.
type FS struct {
	Planner *planner.Planner
	Index   *tagindex.Index

	uid, gid  uint32
	maxHidden int

	mu sync.RWMutex
}

// New builds a dispatcher over an already-opened Planner and Index.
// maxHidden is the cap on hidden file entries a single ReadDirAll emits
// (0 = unlimited), per SPEC_FULL.md §6.
func New(p *planner.Planner, idx *tagindex.Index, uid, gid uint32, maxHidden int) *FS {
	return &FS{Planner: p, Index: idx, uid: uid, gid: gid, maxHidden: maxHidden}
}

// Root implements fusefs.FS.
func (f *FS) Root() (fusefs.Node, error) {
	fsLogger.Trace("resolving root node")
	return &Dir{fs: f, tags: nil}, nil
}

// fetchRecords reads a batch of file records in one transaction, used by
// ReadDirAll.
func (f *FS) fetchRecords(ids map[store.FileId]struct{}) (map[store.FileId]*store.FileRecord, error) {
	out := make(map[store.FileId]*store.FileRecord, len(ids))
	err := f.Planner.Store.View(func(tx *store.Tx) error {
		for id := range ids {
			rec, err := tx.GetFile(id)
			if err != nil {
				return err
			}
			out[id] = rec
		}
		return nil
	})
	return out, err
}

// mapErr translates a planner/store sentinel error into this package's own
// sentinel errors, which ToFuseError then maps to a syscall errno.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, planner.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return ErrPathNotFound
	case errors.Is(err, planner.ErrExists):
		return ErrAlreadyExists
	case errors.Is(err, planner.ErrNotEmpty):
		return ErrNotEmpty
	case errors.Is(err, planner.ErrInvalidArg):
		return ErrInvalidPath
	case errors.Is(err, planner.ErrNotSupported):
		return ErrNotSupported
	case errors.Is(err, planner.ErrPermission):
		return ErrPermissionDenied
	default:
		return err
	}
}

// subsetOf reports whether every tag in want is present in have.
func subsetOf(want []string, have map[string]struct{}) bool {
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
