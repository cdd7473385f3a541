package fs

import (
	"context"

	"pytagfs/internal/store"

	"bazil.org/fuse"
)

// FileHandle is an open file's content I/O handle (spec §2.7 Content I/O).
// Reads and writes go straight to the store, bypassing the Mutation
// Planner's tag resolution (spec §4.8).
type FileHandle struct {
	fs *FS
	id store.FileId
}

// Read implements HandleReader.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fh.fs.mu.RLock()
	defer fh.fs.mu.RUnlock()

	data, err := fh.fs.Planner.ReadContent(fh.id)
	if err != nil {
		return ToFuseError(NewError(OpRead, "", mapErr(err)))
	}

	if req.Offset >= int64(len(data)) {
		resp.Data = []byte{}
		return nil
	}
	end := req.Offset + int64(req.Size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	resp.Data = data[req.Offset:end]
	return nil
}

// Write implements HandleWriter.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fh.fs.mu.Lock()
	defer fh.fs.mu.Unlock()

	n, err := fh.fs.Planner.WriteContent(fh.id, req.Offset, req.Data)
	if err != nil {
		return ToFuseError(NewError(OpWrite, "", mapErr(err)))
	}
	resp.Size = n
	return nil
}

// Release implements HandleReleaser. There is no open file descriptor to
// close; content lives in the store.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	return nil
}
