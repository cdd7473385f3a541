package query

import (
	"testing"

	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"
)

func buildIndex() *tagindex.Index {
	idx := tagindex.New()
	idx.PutFile(1, []string{"vacation", "2023"})
	idx.PutFile(2, []string{"vacation", "2024"})
	idx.PutFile(3, []string{"work"})
	idx.SetEmptyTag("starred", true)
	return idx
}

func TestMatchingFilesEmptyQueryMatchesEverything(t *testing.T) {
	idx := buildIndex()
	got := MatchingFiles(idx, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 files, got %d", len(got))
	}
}

func TestMatchingFilesIntersection(t *testing.T) {
	idx := buildIndex()
	got := MatchingFiles(idx, []string{"vacation", "2023"})
	if len(got) != 1 {
		t.Fatalf("expected 1 file, got %d", len(got))
	}
	if _, ok := got[store.FileId(1)]; !ok {
		t.Errorf("expected file id 1 in result, got %v", got)
	}
}

func TestMatchingFilesNoOverlap(t *testing.T) {
	idx := buildIndex()
	got := MatchingFiles(idx, []string{"vacation", "work"})
	if len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}

func TestCandidateTagsExcludesQueriedTags(t *testing.T) {
	idx := buildIndex()
	matching := MatchingFiles(idx, []string{"vacation"})
	candidates := CandidateTags(idx, []string{"vacation"}, matching)

	if _, ok := candidates["vacation"]; ok {
		t.Errorf("query tag %q should not be its own candidate", "vacation")
	}
	if _, ok := candidates["2023"]; !ok {
		t.Errorf("expected 2023 among candidates, got %v", candidates)
	}
	if _, ok := candidates["2024"]; !ok {
		t.Errorf("expected 2024 among candidates, got %v", candidates)
	}
	if _, ok := candidates["work"]; ok {
		t.Errorf("work should not be a candidate under vacation, got %v", candidates)
	}
}

func TestCandidateTagsIncludesEmptyTagsOnlyAtRoot(t *testing.T) {
	idx := buildIndex()

	rootCandidates := CandidateTags(idx, nil, MatchingFiles(idx, nil))
	if _, ok := rootCandidates["starred"]; !ok {
		t.Errorf("expected empty tag marker at root, got %v", rootCandidates)
	}

	nested := CandidateTags(idx, []string{"vacation"}, MatchingFiles(idx, []string{"vacation"}))
	if _, ok := nested["starred"]; ok {
		t.Errorf("empty tag marker should not appear below root, got %v", nested)
	}
}

func TestResolvable(t *testing.T) {
	idx := buildIndex()
	if !Resolvable(idx, []string{"vacation", "starred"}) {
		t.Error("expected vacation+starred to resolve (implicit tag + empty marker)")
	}
	if Resolvable(idx, []string{"nonexistent"}) {
		t.Error("expected unknown tag to not resolve")
	}
}
