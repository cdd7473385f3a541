// Package tagindex maintains the in-memory inverted view of tag -> set of
// file ids described by spec §2/§3. It never owns file data; it only keys
// by store.FileId, so it can be rebuilt from the Store at any time (mount,
// or after a detected inconsistency) without losing anything (DESIGN.md,
// internal/tagindex).
package tagindex

import (
	"sync"

	"pytagfs/internal/logging"
	"pytagfs/internal/store"
)

var indexLogger = logging.GetLogger().WithPrefix("tagindex")

// Index is the inverted tag -> file-id-set view, plus the file-id ->
// tag-set view and the set of empty-tag markers, so tag membership checks
// need no store round trip. File names are not held here; they are looked
// up in the Store's names table.
type Index struct {
	mu        sync.RWMutex
	tagFiles  map[string]map[store.FileId]struct{}
	fileTags  map[store.FileId]map[string]struct{}
	emptyTags map[string]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		tagFiles:  make(map[string]map[store.FileId]struct{}),
		fileTags:  make(map[store.FileId]map[string]struct{}),
		emptyTags: make(map[string]struct{}),
	}
}

// Rebuild builds a new index from the store's current contents. Call at
// mount time (spec §2: "Rebuilt at mount").
func Rebuild(s *store.Store) (*Index, error) {
	idx := New()
	err := s.View(func(tx *store.Tx) error {
		if err := tx.EachFile(func(id store.FileId, rec *store.FileRecord) error {
			idx.addFileLocked(id, rec.Tags)
			return nil
		}); err != nil {
			return err
		}
		return tx.EachEmptyTag(func(tag string) error {
			idx.emptyTags[tag] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	indexLogger.Info("rebuilt index: %d files, %d tags, %d empty markers",
		len(idx.fileTags), len(idx.tagFiles), len(idx.emptyTags))
	return idx, nil
}

func (idx *Index) addFileLocked(id store.FileId, tags []string) {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
		if idx.tagFiles[t] == nil {
			idx.tagFiles[t] = make(map[store.FileId]struct{})
		}
		idx.tagFiles[t][id] = struct{}{}
	}
	idx.fileTags[id] = set
}

// PutFile registers or updates a file's tag membership. Must be called
// after the corresponding store commit succeeds (I3: index is exactly the
// inverted view of committed store state).
func (idx *Index) PutFile(id store.FileId, tags []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeFileLocked(id)
	idx.addFileLocked(id, tags)
}

func (idx *Index) removeFileLocked(id store.FileId) {
	old, ok := idx.fileTags[id]
	if !ok {
		return
	}
	for t := range old {
		delete(idx.tagFiles[t], id)
		if len(idx.tagFiles[t]) == 0 {
			delete(idx.tagFiles, t)
		}
	}
	delete(idx.fileTags, id)
}

// RemoveFile deletes a file's membership entirely (unlink at the mount root).
func (idx *Index) RemoveFile(id store.FileId) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeFileLocked(id)
}

// FileTags returns a copy of the tags currently recorded for id.
func (idx *Index) FileTags(id store.FileId) map[string]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]struct{}, len(idx.fileTags[id]))
	for t := range idx.fileTags[id] {
		out[t] = struct{}{}
	}
	return out
}

// FilesWithTag returns a copy of the set of file ids carrying tag.
func (idx *Index) FilesWithTag(tag string) map[store.FileId]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	src := idx.tagFiles[tag]
	out := make(map[store.FileId]struct{}, len(src))
	for id := range src {
		out[id] = struct{}{}
	}
	return out
}

// AllFileIDs returns every known file id.
func (idx *Index) AllFileIDs() []store.FileId {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]store.FileId, 0, len(idx.fileTags))
	for id := range idx.fileTags {
		out = append(out, id)
	}
	return out
}

// AllTags returns every tag borne by at least one file (implicit tags).
func (idx *Index) AllTags() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.tagFiles))
	for t := range idx.tagFiles {
		out = append(out, t)
	}
	return out
}

// SetEmptyTag records or clears an empty-tag marker in the in-memory view.
func (idx *Index) SetEmptyTag(tag string, present bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if present {
		idx.emptyTags[tag] = struct{}{}
	} else {
		delete(idx.emptyTags, tag)
	}
}

// IsEmptyTag reports whether tag has an empty marker (I5: disjoint from
// tags actually borne by any file, enforced by the planner, not here).
func (idx *Index) IsEmptyTag(tag string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.emptyTags[tag]
	return ok
}

// AllEmptyTags returns every empty-tag marker.
func (idx *Index) AllEmptyTags() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.emptyTags))
	for t := range idx.emptyTags {
		out = append(out, t)
	}
	return out
}

// KnownTag reports whether tag is either borne by a file or has an empty
// marker — i.e. whether it resolves as a path component (spec §4.2).
func (idx *Index) KnownTag(tag string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if _, ok := idx.tagFiles[tag]; ok {
		return true
	}
	_, ok := idx.emptyTags[tag]
	return ok
}
