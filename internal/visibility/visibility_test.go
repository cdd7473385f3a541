package visibility

import (
	"testing"

	"pytagfs/internal/query"
	"pytagfs/internal/store"
	"pytagfs/internal/tagindex"
)

func buildIndex() *tagindex.Index {
	idx := tagindex.New()
	idx.PutFile(1, []string{"vacation", "2023"})
	idx.PutFile(2, []string{"vacation"})
	idx.SetEmptyTag("starred", true)
	return idx
}

func viewsFor(names map[store.FileId]string, tagsByID map[store.FileId][]string) map[store.FileId]FileView {
	out := make(map[store.FileId]FileView, len(names))
	for id, name := range names {
		set := make(map[string]struct{}, len(tagsByID[id]))
		for _, t := range tagsByID[id] {
			set[t] = struct{}{}
		}
		out[id] = FileView{Name: name, Tags: set}
	}
	return out
}

func TestProjectHidesFilesWithExtraTags(t *testing.T) {
	idx := buildIndex()
	tags := []string{"vacation"}
	result := query.Evaluate(idx, tags)
	views := viewsFor(
		map[store.FileId]string{1: "beach.jpg", 2: "family.jpg"},
		map[store.FileId][]string{1: {"vacation", "2023"}, 2: {"vacation"}},
	)

	listing := Project(idx, tags, result, views, 0)

	var gotHidden, gotVisible bool
	for _, e := range listing.Entries {
		if e.Kind != KindFile {
			continue
		}
		switch e.Name {
		case "beach.jpg":
			gotHidden = e.Hidden
		case "family.jpg":
			gotVisible = !e.Hidden
		}
	}
	if !gotHidden {
		t.Error("expected beach.jpg (extra tag 2023) to be hidden")
	}
	if !gotVisible {
		t.Error("expected family.jpg (exact tag match) to be visible")
	}
}

func TestProjectCandidateTagVisibleWhenItStillMatches(t *testing.T) {
	idx := buildIndex()
	tags := []string{"vacation"}
	result := query.Evaluate(idx, tags)
	views := viewsFor(
		map[store.FileId]string{1: "beach.jpg", 2: "family.jpg"},
		map[store.FileId][]string{1: {"vacation", "2023"}, 2: {"vacation"}},
	)

	listing := Project(idx, tags, result, views, 0)

	for _, e := range listing.Entries {
		if e.Name == "2023" {
			if e.Hidden {
				t.Error("2023 still matches a file under vacation, should be visible")
			}
			return
		}
	}
	t.Fatal("expected 2023 to appear as a candidate tag")
}

func TestProjectEmptyTagOnlyAtRoot(t *testing.T) {
	idx := buildIndex()
	result := query.Evaluate(idx, nil)
	listing := Project(idx, nil, result, map[store.FileId]FileView{}, 0)

	var found bool
	for _, e := range listing.Entries {
		if e.Name == "starred" {
			found = true
			if e.Kind != KindEmptyTag {
				t.Errorf("expected starred to be KindEmptyTag, got %v", e.Kind)
			}
		}
	}
	if !found {
		t.Error("expected starred empty-tag marker at root")
	}
}

func TestProjectFileNameWinsOverTagCollision(t *testing.T) {
	idx := tagindex.New()
	idx.PutFile(1, []string{"a"})
	idx.PutFile(2, []string{"vacation"})
	idx.PutFile(3, []string{}) // a file literally named "vacation"
	result := query.Evaluate(idx, nil)
	views := viewsFor(
		map[store.FileId]string{1: "x", 2: "y", 3: "vacation"},
		map[store.FileId][]string{1: {"a"}, 2: {"vacation"}, 3: {}},
	)

	listing := Project(idx, nil, result, views, 0)

	var tagSeen, fileSeen bool
	for _, e := range listing.Entries {
		if e.Name != "vacation" {
			continue
		}
		if e.Kind == KindTag {
			tagSeen = true
		}
		if e.Kind == KindFile {
			fileSeen = true
		}
	}
	if tagSeen {
		t.Error("tag named vacation should be hidden behind the file of the same name")
	}
	if !fileSeen {
		t.Error("expected the file named vacation to be listed")
	}
}

func TestProjectMaxHiddenCap(t *testing.T) {
	idx := tagindex.New()
	idx.PutFile(1, []string{"a", "x"})
	idx.PutFile(2, []string{"a", "y"})
	tags := []string{"a"}
	result := query.Evaluate(idx, tags)
	views := viewsFor(
		map[store.FileId]string{1: "f1", 2: "f2"},
		map[store.FileId][]string{1: {"a", "x"}, 2: {"a", "y"}},
	)

	listing := Project(idx, tags, result, views, 1)

	hiddenCount := 0
	for _, e := range listing.Entries {
		if e.Kind == KindFile && e.Hidden {
			hiddenCount++
		}
	}
	if hiddenCount != 1 {
		t.Errorf("expected exactly 1 hidden entry under the cap, got %d", hiddenCount)
	}
	if listing.HiddenDropped != 1 {
		t.Errorf("expected 1 dropped entry, got %d", listing.HiddenDropped)
	}
}
