// Package visibility implements the Visibility Projector of spec §4.3/§4.5:
// turning a query result into the dot-hiding directory listing the kernel's
// readdir callback returns.
package visibility

import (
	"sort"

	"pytagfs/internal/logging"
	"pytagfs/internal/query"
	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"
)

var visLogger = logging.GetLogger().WithPrefix("visibility")

// EntryKind distinguishes a projected directory entry's underlying nature.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindTag
	KindEmptyTag
)

// Entry is one projected directory entry.
type Entry struct {
	Name   string
	Kind   EntryKind
	Hidden bool // presented with a leading '.' (spec GLOSSARY "Hidden")
}

// DisplayName returns the name as it should appear in a readdir listing:
// dot-prefixed if Hidden.
func (e Entry) DisplayName() string {
	if e.Hidden {
		return "." + e.Name
	}
	return e.Name
}

// Listing is a computed directory listing, name-sorted within each kind so
// repeated readdir calls without an intervening mutation are stable.
type Listing struct {
	Entries []Entry
	// HiddenDropped counts hidden file entries omitted by a MaxHidden cap
	// (SPEC_FULL.md §6, ground: original_source's hidden_limit).
	HiddenDropped int
}

// FileView is the subset of a FileRecord the projector needs: its current
// name and tag set, read while the caller holds at least a read lock.
type FileView struct {
	Name string
	Tags map[string]struct{}
}

// Project computes the directory listing for tags per spec §4.3/§4.5. files
// maps every matching file id (as already computed by the Query Engine) to
// its current name/tags. idx is consulted once per candidate tag to decide
// whether appending it would still match at least one file — the
// per-candidate visibility rule of §4.3. maxHidden caps the number of
// hidden file entries emitted; 0 means unlimited (SPEC_FULL.md §6, ground:
// original_source's hidden_limit).
func Project(idx *tagindex.Index, tags []string, result query.Result, files map[store.FileId]FileView, maxHidden int) Listing {
	atRoot := len(tags) == 0
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	var listing Listing

	type namedEntry struct {
		id   store.FileId
		view FileView
	}
	fileEntries := make([]namedEntry, 0, len(result.Files))
	for id := range result.Files {
		fileEntries = append(fileEntries, namedEntry{id: id, view: files[id]})
	}
	sort.Slice(fileEntries, func(i, j int) bool { return fileEntries[i].view.Name < fileEntries[j].view.Name })

	hiddenSeen := 0
	for _, fe := range fileEntries {
		hidden := !sameSet(fe.view.Tags, tagSet)
		if hidden && maxHidden > 0 && hiddenSeen >= maxHidden {
			listing.HiddenDropped++
			continue
		}
		if hidden {
			hiddenSeen++
		}
		listing.Entries = append(listing.Entries, Entry{Name: fe.view.Name, Kind: KindFile, Hidden: hidden})
	}

	fileNames := make(map[string]struct{}, len(fileEntries))
	for _, fe := range fileEntries {
		fileNames[fe.view.Name] = struct{}{}
	}

	candidateNames := make([]string, 0, len(result.Candidates))
	for t := range result.Candidates {
		candidateNames = append(candidateNames, t)
	}
	sort.Strings(candidateNames)

	for _, t := range candidateNames {
		// A file and a tag with the same name collide; the file wins and
		// the tag is omitted from the listing at this depth (spec §4.3).
		if _, collides := fileNames[t]; collides {
			visLogger.Debug("tag %q collides with a file name at this depth; hiding tag", t)
			continue
		}

		kind := KindTag
		if idx.IsEmptyTag(t) {
			kind = KindEmptyTag
		}

		hidden := false
		if !atRoot {
			extended := append(append([]string{}, tags...), t)
			hidden = len(query.MatchingFiles(idx, extended)) == 0
		}
		listing.Entries = append(listing.Entries, Entry{Name: t, Kind: kind, Hidden: hidden})
	}

	if listing.HiddenDropped > 0 {
		visLogger.Debug("dropped %d hidden entries past cap %d", listing.HiddenDropped, maxHidden)
	}

	return listing
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
