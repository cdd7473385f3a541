package fs

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"pytagfs/internal/content"
	"pytagfs/internal/logging"
	"pytagfs/internal/planner"
	"pytagfs/internal/store"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var fileLogger = logging.GetLogger().WithPrefix("file")

// File is a resolved file entity: a leaf, either a regular file or a
// symlink (spec §3 File, §4.7 symlink translation). tags is the path depth
// at which it was resolved, needed to translate a relative symlink target.
type File struct {
	fs   *FS
	id   store.FileId
	tags []string
}

func (f *File) record() (*store.FileRecord, error) {
	var rec *store.FileRecord
	err := f.fs.Planner.Store.View(func(tx *store.Tx) error {
		r, err := tx.GetFile(f.id)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	return rec, err
}

// Attr implements the Node interface.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()

	rec, err := f.record()
	if err != nil {
		return ToFuseError(NewError(OpGetattr, "", mapErr(err)))
	}

	mode := os.FileMode(rec.Mode & 0777)
	if rec.IsSymlink {
		mode |= os.ModeSymlink
	}
	a.Mode = mode
	a.Uid = rec.Uid
	a.Gid = rec.Gid
	a.Size = uint64(len(rec.Content))
	a.Mtime = time.Unix(0, rec.Mtime)
	a.Atime = time.Unix(0, rec.Atime)
	a.Ctime = time.Unix(0, rec.Ctime)
	return nil
}

// Readlink implements NodeReadlinker, applying the depth-aware relative
// target translation of spec §4.7.
func (f *File) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()

	rec, err := f.record()
	if err != nil {
		return "", ToFuseError(NewError(OpReadlink, "", mapErr(err)))
	}
	if !rec.IsSymlink {
		return "", syscall.EINVAL
	}
	return content.TranslateSymlinkTarget(string(rec.Content), len(f.tags)), nil
}

// Open implements NodeOpener. Content is read and written directly against
// the store, bypassing the Mutation Planner's tag resolution (spec §4.8).
func (f *File) Open(_ context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	fileLogger.Trace("open id=%d", f.id)
	resp.Flags |= fuse.OpenDirectIO
	return &FileHandle{fs: f.fs, id: f.id}, nil
}

// Setattr implements NodeSetattrer: only size changes (truncate) are
// persisted. chmod/chown/utimens are accepted and ignored, per
// SPEC_FULL.md §12 open-question decision 2.
func (f *File) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if req.Valid.Size() {
		fileLogger.Debug("truncate id=%d to %d bytes", f.id, req.Size)
		if err := f.fs.Planner.Truncate(f.id, int64(req.Size)); err != nil {
			return ToFuseError(NewError(OpTruncate, "", mapErr(err)))
		}
	}

	rec, err := f.record()
	if err != nil {
		return ToFuseError(NewError(OpSetattr, "", mapErr(err)))
	}
	mode := os.FileMode(rec.Mode & 0777)
	if rec.IsSymlink {
		mode |= os.ModeSymlink
	}
	resp.Attr.Mode = mode
	resp.Attr.Uid = rec.Uid
	resp.Attr.Gid = rec.Gid
	resp.Attr.Size = uint64(len(rec.Content))
	return nil
}

// Getxattr implements NodeGetxattrer.
func (f *File) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()

	rec, err := f.record()
	if err != nil {
		return ToFuseError(NewError(OpGetattr, req.Name, mapErr(err)))
	}
	val, ok := rec.Xattrs[req.Name]
	if !ok {
		return fuse.ErrNoXattr
	}
	resp.Xattr = val
	return nil
}

// Setxattr implements NodeSetxattrer.
func (f *File) Setxattr(_ context.Context, req *fuse.SetxattrRequest) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if err := f.fs.Planner.SetXattr(f.id, req.Name, req.Xattr); err != nil {
		return ToFuseError(NewError(OpSetattr, req.Name, mapErr(err)))
	}
	return nil
}

// Listxattr implements NodeListxattrer.
func (f *File) Listxattr(_ context.Context, _ *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()

	rec, err := f.record()
	if err != nil {
		return ToFuseError(NewError(OpGetattr, "", mapErr(err)))
	}
	for name := range rec.Xattrs {
		resp.Append(name)
	}
	return nil
}

// Removexattr implements NodeRemovexattrer.
func (f *File) Removexattr(_ context.Context, req *fuse.RemovexattrRequest) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if err := f.fs.Planner.RemoveXattr(f.id, req.Name); err != nil {
		if errors.Is(err, planner.ErrNotFound) {
			return fuse.ErrNoXattr
		}
		return ToFuseError(NewError(OpSetattr, req.Name, mapErr(err)))
	}
	return nil
}
