// Package planner implements the Mutation Planner of spec §4.6: it
// translates filesystem mutation callbacks into sequences of store
// operations, enforcing invariants and resolving rename's overloaded
// retag/rename/delete-sentinel semantics. Every exported method runs its
// store work inside a single transaction (spec §4.6 "All mutations run
// inside a single store transaction") and, only once that transaction
// commits, updates the Tag Index to match (spec I3, §7 "leaves the Tag
// Index untouched" on abort).
//
// Callers are expected to hold the filesystem-wide exclusive lock for the
// duration of a call (spec §5); the planner does not lock internally.
package planner

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"pytagfs/internal/logging"
	"pytagfs/internal/pathparse"
	"pytagfs/internal/query"
	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"
)

var planLogger = logging.GetLogger().WithPrefix("planner")

// Sentinel errors, mapped to syscall errno by internal/fs (spec §7).
var (
	ErrNotFound     = errors.New("not found")
	ErrExists       = errors.New("already exists")
	ErrNotEmpty     = errors.New("not empty")
	ErrInvalidArg   = errors.New("invalid argument")
	ErrNotSupported = errors.New("not supported")
	ErrPermission   = errors.New("permission denied")
)

// Planner wires the Store and Tag Index together.
type Planner struct {
	Store *store.Store
	Index *tagindex.Index

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

// New returns a Planner over s and idx with a real-time clock.
func New(s *store.Store, idx *tagindex.Index) *Planner {
	return &Planner{Store: s, Index: idx, Now: time.Now}
}

// ValidateName enforces the name grammar of spec §6. allowSentinel permits
// the literal "..deleteme" rename-destination sentinel.
func ValidateName(name string, allowSentinel bool) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidArg
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, 0) {
		return ErrInvalidArg
	}
	if !utf8.ValidString(name) {
		return ErrInvalidArg
	}
	if name == pathparse.DeleteMeSentinel {
		if allowSentinel {
			return nil
		}
		return ErrInvalidArg
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return ErrInvalidArg
	}
	return nil
}

// nameCollides reports whether name would collide with an existing file
// name, or with a tag visible (as a candidate) at depth prefixTags — the
// rule spec §4.3/§4.6 enforce on create/mkdir/rename targets.
func (p *Planner) nameCollides(tx *store.Tx, prefixTags []string, name string, ownerID store.FileId, ownerIsSet bool) (bool, error) {
	id, err := tx.LookupName(name)
	if err == nil {
		if ownerIsSet && id == ownerID {
			return false, nil
		}
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	result := query.Evaluate(p.Index, prefixTags)
	if _, isCandidate := result.Candidates[name]; isCandidate {
		return true, nil
	}
	return false, nil
}

// Create implements spec §4.6 create(path, mode): path = T.name.
func (p *Planner) Create(prefixTags []string, name string, mode uint32, uid, gid uint32) (store.FileId, error) {
	if err := ValidateName(name, false); err != nil {
		return 0, err
	}

	var newID store.FileId
	err := p.Store.Update(func(tx *store.Tx) error {
		collide, err := p.nameCollides(tx, prefixTags, name, 0, false)
		if err != nil {
			return err
		}
		if collide {
			return ErrExists
		}

		id, err := tx.NextID()
		if err != nil {
			return err
		}
		now := p.Now().UnixNano()
		rec := &store.FileRecord{
			Name:  name,
			Tags:  append([]string{}, prefixTags...),
			Mode:  mode,
			Uid:   uid,
			Gid:   gid,
			Atime: now,
			Mtime: now,
			Ctime: now,
		}
		if err := tx.PutFile(id, rec); err != nil {
			return err
		}
		if err := tx.PutName(name, id); err != nil {
			return err
		}
		newID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.Index.PutFile(newID, append([]string{}, prefixTags...))
	planLogger.Info("created file %q (id=%d) under tags %v", name, newID, prefixTags)
	return newID, nil
}

// Mkdir implements spec §4.6 mkdir(path): path = T.tag.
//
// Per SPEC_FULL.md §12 open-question decision 1: inside a non-root tag path
// this is always a silent no-op (nothing persisted), matching the spec's
// literal text rather than upgrading to EINVAL.
func (p *Planner) Mkdir(prefixTags []string, tag string) error {
	if err := ValidateName(tag, false); err != nil {
		return err
	}

	var markerCreated string
	err := p.Store.Update(func(tx *store.Tx) error {
		// A file already bearing this exact name anywhere always wins
		// (I1, §4.3 collision rule): EEXIST, regardless of depth.
		if exists, err := tx.NameExists(tag); err != nil {
			return err
		} else if exists {
			return ErrExists
		}

		if len(prefixTags) != 0 {
			// Non-root mkdir: always a no-op (decision 1).
			return nil
		}

		// Idempotence (spec testable property 6): mkdir on an existing
		// visible tag (implicit or already an empty marker) is a no-op.
		if p.Index.KnownTag(tag) {
			return nil
		}
		if err := tx.PutEmptyTag(tag); err != nil {
			return err
		}
		markerCreated = tag
		return nil
	})
	if err != nil {
		return err
	}
	if markerCreated != "" {
		p.Index.SetEmptyTag(markerCreated, true)
		planLogger.Info("created empty tag marker %q", markerCreated)
	}
	return nil
}

// Unlink implements spec §4.6 unlink(path): path = T.name.
func (p *Planner) Unlink(prefixTags []string, name string) error {
	var (
		deletedEntirely bool
		newTags         []string
		id              store.FileId
	)
	err := p.Store.Update(func(tx *store.Tx) error {
		fid, err := tx.LookupName(name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		id = fid
		rec, err := tx.GetFile(fid)
		if err != nil {
			return err
		}

		if len(prefixTags) == 0 {
			if err := tx.DeleteFile(fid); err != nil {
				return err
			}
			if err := tx.DeleteName(name); err != nil {
				return err
			}
			deletedEntirely = true
			return nil
		}

		// Remove the last tag in the requested path (the last component of
		// T as given by the user, not lexically last — spec §4.6).
		lastTag := prefixTags[len(prefixTags)-1]
		filtered := make([]string, 0, len(rec.Tags))
		for _, t := range rec.Tags {
			if t != lastTag {
				filtered = append(filtered, t)
			}
		}
		rec.Tags = filtered
		rec.Ctime = time.Now().UnixNano()
		newTags = append([]string{}, filtered...)
		return tx.PutFile(fid, rec)
	})
	if err != nil {
		return err
	}

	if deletedEntirely {
		p.Index.RemoveFile(id)
		planLogger.Info("deleted file %q (id=%d)", name, id)
	} else {
		p.Index.PutFile(id, newTags)
		planLogger.Info("untagged file %q (id=%d): now %v", name, id, newTags)
	}
	return nil
}

// Rmdir implements spec §4.6 rmdir(path): path = T.tag.
func (p *Planner) Rmdir(prefixTags []string, tag string) error {
	result := query.Evaluate(p.Index, append(append([]string{}, prefixTags...), tag))
	if len(result.Files) != 0 {
		return ErrNotEmpty
	}

	if len(prefixTags) != 0 {
		// Query Engine would already have returned ENOTEMPTY above if the
		// tag mattered here; deeper than the root it's otherwise a no-op
		// (spec §4.6: "this path is unreachable" in practice, but we still
		// accept it rather than erroring since nothing needs undoing).
		return nil
	}

	if !p.Index.IsEmptyTag(tag) {
		// No marker and no files: the tag simply doesn't exist as a
		// resolvable entity at the root.
		if !p.Index.KnownTag(tag) {
			return ErrNotFound
		}
		return nil
	}

	if err := p.Store.Update(func(tx *store.Tx) error {
		return tx.DeleteEmptyTag(tag)
	}); err != nil {
		return err
	}
	p.Index.SetEmptyTag(tag, false)
	planLogger.Info("removed empty tag marker %q", tag)
	return nil
}

// RenameResult flags which dispatcher-level cache/metadata updates are
// needed after a successful Rename; the dispatcher itself has no state to
// invalidate today but this keeps the seam explicit.
type RenameResult struct {
	Deleted bool
}

// Rename implements spec §4.6 rename(src, dst), the richest operation: the
// SMB delete-sentinel workaround, additive/replacing file retagging, and
// tag renaming/no-op tag moves.
func (p *Planner) Rename(srcTags []string, srcLeaf string, dstTags []string, dstLeaf string) (RenameResult, error) {
	// Case 1: delete-sentinel workaround (spec §4.6.1).
	if dstLeaf == pathparse.DeleteMeSentinel && len(dstTags) == 0 {
		if id, err := p.lookupNameSnapshot(srcLeaf); err == nil {
			_ = id
			// srcLeaf resolves to a file; spec restricts the sentinel to
			// empty tags (file or marker). A file is never "empty" in that
			// sense, so this is invalid.
			return RenameResult{}, ErrInvalidArg
		}
		// srcLeaf must be an empty tag (file or marker) at srcTags depth.
		result := query.Evaluate(p.Index, append(append([]string{}, srcTags...), srcLeaf))
		if len(result.Files) != 0 {
			return RenameResult{}, ErrNotEmpty
		}
		if err := p.Rmdir(srcTags, srcLeaf); err != nil {
			return RenameResult{}, err
		}
		return RenameResult{Deleted: true}, nil
	}

	if err := ValidateName(dstLeaf, false); err != nil {
		return RenameResult{}, err
	}

	if id, err := p.lookupNameSnapshot(srcLeaf); err == nil {
		return p.renameFile(srcTags, srcLeaf, dstTags, dstLeaf, id)
	} else if !errors.Is(err, store.ErrNotFound) {
		return RenameResult{}, err
	}

	// src is not a file name; it must be a tag.
	if !p.Index.KnownTag(srcLeaf) {
		return RenameResult{}, ErrNotFound
	}
	return p.renameTag(srcTags, srcLeaf, dstTags, dstLeaf)
}

func (p *Planner) lookupNameSnapshot(name string) (store.FileId, error) {
	var id store.FileId
	err := p.Store.View(func(tx *store.Tx) error {
		fid, err := tx.LookupName(name)
		if err != nil {
			return err
		}
		id = fid
		return nil
	})
	return id, err
}

func (p *Planner) renameFile(srcTags []string, srcLeaf string, dstTags []string, dstLeaf string, id store.FileId) (RenameResult, error) {
	var finalTags []string
	var renamed bool

	err := p.Store.Update(func(tx *store.Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}

		srcSet := make(map[string]struct{}, len(srcTags))
		for _, t := range srcTags {
			srcSet[t] = struct{}{}
		}
		trueSet := rec.TagSet()
		hidden := !sameSet(trueSet, srcSet)

		if dstLeaf != srcLeaf {
			collide, err := p.nameCollides(tx, dstTags, dstLeaf, id, true)
			if err != nil {
				return err
			}
			if collide {
				return ErrExists
			}
			renamed = true
		} else {
			// Tags may still change even when the depth-at-destination
			// reintroduces the same leaf name; a tag-name collision at the
			// destination depth is still disallowed.
			if _, isTagThere := query.Evaluate(p.Index, dstTags).Candidates[dstLeaf]; isTagThere {
				return ErrExists
			}
		}

		if hidden {
			// Additive retag: union in the destination tags.
			merged := trueSet
			for _, t := range dstTags {
				merged[t] = struct{}{}
			}
			rec.Tags = setToSlice(merged)
		} else {
			// Replacing retag.
			rec.Tags = append([]string{}, dstTags...)
		}
		finalTags = append([]string{}, rec.Tags...)

		if renamed {
			if err := tx.DeleteName(srcLeaf); err != nil {
				return err
			}
			if err := tx.PutName(dstLeaf, id); err != nil {
				return err
			}
			rec.Name = dstLeaf
		}
		rec.Ctime = p.Now().UnixNano()
		return tx.PutFile(id, rec)
	})
	if err != nil {
		return RenameResult{}, err
	}

	p.Index.PutFile(id, finalTags)
	planLogger.Info("renamed file id=%d: tags now %v, name %q", id, finalTags, dstLeaf)
	return RenameResult{}, nil
}

func (p *Planner) renameTag(srcTags []string, srcLeaf string, dstTags []string, dstLeaf string) (RenameResult, error) {
	if !sameTagPrefix(srcTags, dstTags) {
		// Moving a tag into a different tag path: a no-op that reports
		// success (spec §4.6.3: "tag hierarchies are not meaningful").
		return RenameResult{}, nil
	}

	if srcLeaf == dstLeaf {
		return RenameResult{}, nil
	}

	if exists, err := p.lookupNameSnapshot(dstLeaf); err == nil {
		_ = exists
		return RenameResult{}, ErrExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return RenameResult{}, err
	}
	if p.Index.KnownTag(dstLeaf) {
		return RenameResult{}, ErrExists
	}

	affected := p.Index.FilesWithTag(srcLeaf)
	wasEmptyMarker := p.Index.IsEmptyTag(srcLeaf)

	updates := make(map[store.FileId][]string, len(affected))
	err := p.Store.Update(func(tx *store.Tx) error {
		if wasEmptyMarker {
			if err := tx.DeleteEmptyTag(srcLeaf); err != nil {
				return err
			}
			if err := tx.PutEmptyTag(dstLeaf); err != nil {
				return err
			}
		}
		for id := range affected {
			rec, err := tx.GetFile(id)
			if err != nil {
				return err
			}
			newTags := make([]string, 0, len(rec.Tags))
			for _, t := range rec.Tags {
				if t == srcLeaf {
					newTags = append(newTags, dstLeaf)
				} else {
					newTags = append(newTags, t)
				}
			}
			rec.Tags = newTags
			rec.Ctime = p.Now().UnixNano()
			if err := tx.PutFile(id, rec); err != nil {
				return err
			}
			updates[id] = newTags
		}
		return nil
	})
	if err != nil {
		return RenameResult{}, err
	}

	for id, tags := range updates {
		p.Index.PutFile(id, tags)
	}
	if wasEmptyMarker {
		p.Index.SetEmptyTag(srcLeaf, false)
		p.Index.SetEmptyTag(dstLeaf, true)
	}
	planLogger.Info("renamed tag %q -> %q across %d files", srcLeaf, dstLeaf, len(affected))
	return RenameResult{}, nil
}

// Symlink implements spec §4.6 symlink(target, linkpath): like create, but
// stores target verbatim and marks IsSymlink. Translation to a depth-aware
// relative path happens at readlink time (internal/content), not here
// (SPEC_FULL.md §12 decision 3).
func (p *Planner) Symlink(prefixTags []string, name, target string, uid, gid uint32) (store.FileId, error) {
	if err := ValidateName(name, false); err != nil {
		return 0, err
	}

	var newID store.FileId
	err := p.Store.Update(func(tx *store.Tx) error {
		collide, err := p.nameCollides(tx, prefixTags, name, 0, false)
		if err != nil {
			return err
		}
		if collide {
			return ErrExists
		}
		id, err := tx.NextID()
		if err != nil {
			return err
		}
		now := p.Now().UnixNano()
		rec := &store.FileRecord{
			Name:      name,
			Tags:      append([]string{}, prefixTags...),
			Content:   []byte(target),
			Mode:      uint32(0777),
			Uid:       uid,
			Gid:       gid,
			Atime:     now,
			Mtime:     now,
			Ctime:     now,
			IsSymlink: true,
		}
		if err := tx.PutFile(id, rec); err != nil {
			return err
		}
		if err := tx.PutName(name, id); err != nil {
			return err
		}
		newID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.Index.PutFile(newID, append([]string{}, prefixTags...))
	planLogger.Info("created symlink %q (id=%d) -> %q", name, newID, target)
	return newID, nil
}

// WriteContent overwrites a file's content bytes starting at offset,
// growing the record as needed. Tags are left unchanged (spec §4.6
// write/truncate). This bypasses tag resolution entirely, matching the
// Dispatcher's direct Content I/O path (spec §4.8) — it is still a
// mutation and still requires the exclusive lock.
func (p *Planner) WriteContent(id store.FileId, offset int64, data []byte) (int, error) {
	n := 0
	err := p.Store.Update(func(tx *store.Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}
		end := offset + int64(len(data))
		if int64(len(rec.Content)) < end {
			grown := make([]byte, end)
			copy(grown, rec.Content)
			rec.Content = grown
		}
		copy(rec.Content[offset:end], data)
		rec.Mtime = p.Now().UnixNano()
		n = len(data)
		return tx.PutFile(id, rec)
	})
	return n, err
}

// ReadContent returns a copy of a file's content bytes.
func (p *Planner) ReadContent(id store.FileId) ([]byte, error) {
	var data []byte
	err := p.Store.View(func(tx *store.Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}
		data = append([]byte{}, rec.Content...)
		return nil
	})
	return data, err
}

// Truncate resizes a file's content to size bytes.
func (p *Planner) Truncate(id store.FileId, size int64) error {
	return p.Store.Update(func(tx *store.Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}
		if int64(len(rec.Content)) == size {
			return nil
		}
		grown := make([]byte, size)
		copy(grown, rec.Content)
		rec.Content = grown
		rec.Mtime = p.Now().UnixNano()
		return tx.PutFile(id, rec)
	})
}

// SetXattr records an extended attribute, per the xattr pass-through of
// SPEC_FULL.md §6 (ground: original_source exposed xattrs on tagged files).
func (p *Planner) SetXattr(id store.FileId, name string, value []byte) error {
	return p.Store.Update(func(tx *store.Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}
		if rec.Xattrs == nil {
			rec.Xattrs = make(map[string][]byte)
		}
		rec.Xattrs[name] = append([]byte{}, value...)
		rec.Ctime = p.Now().UnixNano()
		return tx.PutFile(id, rec)
	})
}

// RemoveXattr deletes an extended attribute. Returns ErrNotFound if name
// isn't set.
func (p *Planner) RemoveXattr(id store.FileId, name string) error {
	return p.Store.Update(func(tx *store.Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}
		if _, ok := rec.Xattrs[name]; !ok {
			return ErrNotFound
		}
		delete(rec.Xattrs, name)
		rec.Ctime = p.Now().UnixNano()
		return tx.PutFile(id, rec)
	})
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func sameTagPrefix(a, b []string) bool {
	// "same parent depth" per spec §4.6.3: the tag is being renamed in
	// place rather than moved, which we treat as the prefix tag multiset
	// being identical.
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]int, len(a))
	for _, t := range a {
		am[t]++
	}
	for _, t := range b {
		am[t]--
	}
	for _, v := range am {
		if v != 0 {
			return false
		}
	}
	return true
}
