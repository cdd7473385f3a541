package fs

import (
	"context"
	"errors"
	"os"
	"syscall"

	"pytagfs/internal/logging"
	"pytagfs/internal/pathparse"
	"pytagfs/internal/query"
	"pytagfs/internal/store"
	"pytagfs/internal/visibility"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var dirLogger = logging.GetLogger().WithPrefix("dir")

// Dir is a tag-query node: the virtual directory reached by the ordered
// sequence of tags in the path so far (spec §4.1's T). The mount root is
// the Dir with an empty tags slice.
type Dir struct {
	fs   *FS
	tags []string
}

// Attr implements the Node interface.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0755
	a.Uid = d.fs.uid
	a.Gid = d.fs.gid
	return nil
}

// Lookup implements NodeStringLookuper, resolving one path component
// against either the names table (a file, visible or hidden) or the
// candidate tag set (spec §4.1, §4.2).
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	real := pathparse.Dedot(name)
	dirLogger.Trace("lookup %q (dedotted %q) under tags %v", name, real, d.tags)

	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()

	var (
		id    store.FileId
		found bool
	)
	err := d.fs.Planner.Store.View(func(tx *store.Tx) error {
		fid, lookErr := tx.LookupName(real)
		if lookErr == nil {
			id, found = fid, true
			return nil
		}
		if errors.Is(lookErr, store.ErrNotFound) {
			return nil
		}
		return lookErr
	})
	if err != nil {
		return nil, ToFuseError(NewError(OpLookup, real, err))
	}

	if found {
		tagSet := d.fs.Index.FileTags(id)
		if !subsetOf(d.tags, tagSet) {
			return nil, syscall.ENOENT
		}
		return &File{fs: d.fs, id: id, tags: append([]string{}, d.tags...)}, nil
	}

	result := query.Evaluate(d.fs.Index, d.tags)
	if _, ok := result.Candidates[real]; ok {
		return &Dir{fs: d.fs, tags: append(append([]string{}, d.tags...), real)}, nil
	}
	return nil, syscall.ENOENT
}

// ReadDirAll implements HandleReadDirAller, projecting the query result
// through the Visibility Projector (spec §4.3/§4.5).
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("readdir under tags %v", d.tags)

	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()

	result := query.Evaluate(d.fs.Index, d.tags)
	recs, err := d.fs.fetchRecords(result.Files)
	if err != nil {
		return nil, ToFuseError(NewError(OpReadDir, "", err))
	}

	views := make(map[store.FileId]visibility.FileView, len(recs))
	for id, rec := range recs {
		views[id] = visibility.FileView{Name: rec.Name, Tags: rec.TagSet()}
	}
	listing := visibility.Project(d.fs.Index, d.tags, result, views, d.fs.maxHidden)

	namesToRec := make(map[string]*store.FileRecord, len(recs))
	for _, rec := range recs {
		namesToRec[rec.Name] = rec
	}

	entries := make([]fuse.Dirent, 0, len(listing.Entries)+2)
	entries = append(entries, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	entries = append(entries, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, e := range listing.Entries {
		typ := fuse.DT_Dir
		if e.Kind == visibility.KindFile {
			typ = fuse.DT_File
			if rec, ok := namesToRec[e.Name]; ok && rec.IsSymlink {
				typ = fuse.DT_Link
			}
		}
		entries = append(entries, fuse.Dirent{Name: e.DisplayName(), Type: typ})
	}
	return entries, nil
}

// Mkdir implements NodeMkdirer (spec §4.6 mkdir).
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	dirLogger.Info("mkdir %q under tags %v", req.Name, d.tags)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if err := d.fs.Planner.Mkdir(d.tags, req.Name); err != nil {
		return nil, ToFuseError(NewError(OpMkdir, req.Name, mapErr(err)))
	}
	return &Dir{fs: d.fs, tags: append(append([]string{}, d.tags...), req.Name)}, nil
}

// Create implements NodeCreater (spec §4.6 create).
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, _ *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	dirLogger.Info("create %q under tags %v", req.Name, d.tags)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	id, err := d.fs.Planner.Create(d.tags, req.Name, uint32(req.Mode.Perm()), d.fs.uid, d.fs.gid)
	if err != nil {
		return nil, nil, ToFuseError(NewError(OpCreate, req.Name, mapErr(err)))
	}
	file := &File{fs: d.fs, id: id, tags: append([]string{}, d.tags...)}
	return file, &FileHandle{fs: d.fs, id: id}, nil
}

// Remove implements NodeRemover, dispatching to unlink or rmdir per spec §4.6.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	dirLogger.Info("remove %q (dir=%v) under tags %v", req.Name, req.Dir, d.tags)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if req.Dir {
		if err := d.fs.Planner.Rmdir(d.tags, req.Name); err != nil {
			return ToFuseError(NewError(OpRmdir, req.Name, mapErr(err)))
		}
		return nil
	}
	if err := d.fs.Planner.Unlink(d.tags, req.Name); err != nil {
		return ToFuseError(NewError(OpUnlink, req.Name, mapErr(err)))
	}
	return nil
}

// Rename implements NodeRenamer, the overloaded retag/rename/delete-sentinel
// operation of spec §4.6.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	dst, ok := newDir.(*Dir)
	if !ok {
		dirLogger.Warn("rename target is not a tag-query directory")
		return syscall.EINVAL
	}
	dirLogger.Info("rename %q (tags %v) -> %q (tags %v)", req.OldName, d.tags, req.NewName, dst.tags)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if _, err := d.fs.Planner.Rename(d.tags, req.OldName, dst.tags, req.NewName); err != nil {
		return ToFuseError(NewError(OpRename, req.OldName, mapErr(err)))
	}
	return nil
}

// Symlink implements NodeSymlinker (spec §4.6 symlink).
func (d *Dir) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	dirLogger.Info("symlink %q -> %q under tags %v", req.NewName, req.Target, d.tags)

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	id, err := d.fs.Planner.Symlink(d.tags, req.NewName, req.Target, d.fs.uid, d.fs.gid)
	if err != nil {
		return nil, ToFuseError(NewError(OpSymlink, req.NewName, mapErr(err)))
	}
	return &File{fs: d.fs, id: id, tags: append([]string{}, d.tags...)}, nil
}
