// Package query implements the Query Engine of spec §4.2: given an ordered
// list of tags, compute the matching files and the candidate tags that
// could still refine the selection. It operates purely against the
// in-memory tag index and never blocks (spec §5).
package query

import (
	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"
)

// Result is the outcome of evaluating a tag-set query.
type Result struct {
	// Files is the set of file ids matching every tag in the query.
	Files map[store.FileId]struct{}

	// Candidates is the set of tags that, if appended to the query, would
	// still leave at least one matching file (plus empty-tag markers when
	// the query is the mount root).
	Candidates map[string]struct{}
}

// Evaluate computes matching_files(tags) and candidate_tags(tags) per spec
// §4.2. The queried tags themselves are excluded from the candidate set.
func Evaluate(idx *tagindex.Index, tags []string) Result {
	matching := MatchingFiles(idx, tags)
	candidates := CandidateTags(idx, tags, matching)
	return Result{Files: matching, Candidates: candidates}
}

// MatchingFiles returns { f : tags ⊆ f.tags }. An empty tags list matches
// every known file (spec §4.2).
func MatchingFiles(idx *tagindex.Index, tags []string) map[store.FileId]struct{} {
	if len(tags) == 0 {
		out := make(map[store.FileId]struct{})
		for _, id := range idx.AllFileIDs() {
			out[id] = struct{}{}
		}
		return out
	}

	// Intersect FilesWithTag(t) for each t, smallest set first to minimize
	// work, exactly like a multi-way set intersection over postings lists.
	sets := make([]map[store.FileId]struct{}, 0, len(tags))
	for _, t := range tags {
		sets = append(sets, idx.FilesWithTag(t))
	}
	// Selection sort by size; the tag list is always small in practice.
	for i := range sets {
		min := i
		for j := i + 1; j < len(sets); j++ {
			if len(sets[j]) < len(sets[min]) {
				min = j
			}
		}
		sets[i], sets[min] = sets[min], sets[i]
	}

	result := make(map[store.FileId]struct{}, len(sets[0]))
	for id := range sets[0] {
		result[id] = struct{}{}
	}
	for _, s := range sets[1:] {
		for id := range result {
			if _, ok := s[id]; !ok {
				delete(result, id)
			}
		}
	}
	return result
}

// CandidateTags returns { u : u ∉ tags ∧ ∃ f ∈ matching with u ∈ f.tags },
// plus every empty-tag marker when tags is empty (spec §4.2: "visible only
// at the mount root").
func CandidateTags(idx *tagindex.Index, tags []string, matching map[store.FileId]struct{}) map[string]struct{} {
	excluded := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		excluded[t] = struct{}{}
	}

	candidates := make(map[string]struct{})
	for id := range matching {
		for t := range idx.FileTags(id) {
			if _, skip := excluded[t]; skip {
				continue
			}
			candidates[t] = struct{}{}
		}
	}

	if len(tags) == 0 {
		for _, t := range idx.AllEmptyTags() {
			candidates[t] = struct{}{}
		}
	}
	return candidates
}

// Resolvable reports whether every tag in tags is either a known tag (borne
// by some file) or an empty-tag marker — i.e. whether the path resolves at
// all rather than failing with "not found" (spec §4.2).
func Resolvable(idx *tagindex.Index, tags []string) bool {
	for _, t := range tags {
		if !idx.KnownTag(t) {
			return false
		}
	}
	return true
}
