package tagindex

import (
	"testing"

	"pytagfs/internal/store"
)

func TestPutFileAndFileTags(t *testing.T) {
	idx := New()
	idx.PutFile(1, []string{"a", "b"})

	tags := idx.FileTags(1)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", tags)
	}
	for _, want := range []string{"a", "b"} {
		if _, ok := tags[want]; !ok {
			t.Errorf("expected tag %q, got %v", want, tags)
		}
	}
}

func TestPutFileOverwritesPriorMembership(t *testing.T) {
	idx := New()
	idx.PutFile(1, []string{"a", "b"})
	idx.PutFile(1, []string{"c"})

	if len(idx.FilesWithTag("a")) != 0 {
		t.Error("expected tag a to have no files after retag")
	}
	if len(idx.FilesWithTag("c")) != 1 {
		t.Error("expected tag c to have one file after retag")
	}
}

func TestRemoveFile(t *testing.T) {
	idx := New()
	idx.PutFile(1, []string{"a"})
	idx.RemoveFile(1)

	if len(idx.AllFileIDs()) != 0 {
		t.Error("expected no files after remove")
	}
	if len(idx.AllTags()) != 0 {
		t.Error("expected tag a to be pruned once its last file is removed")
	}
}

func TestFilesWithTagIsACopy(t *testing.T) {
	idx := New()
	idx.PutFile(1, []string{"a"})

	got := idx.FilesWithTag("a")
	delete(got, store.FileId(1))

	if len(idx.FilesWithTag("a")) != 1 {
		t.Error("mutating the returned set should not affect the index")
	}
}

func TestEmptyTagMarkers(t *testing.T) {
	idx := New()
	idx.SetEmptyTag("starred", true)

	if !idx.IsEmptyTag("starred") {
		t.Error("expected starred to be an empty tag")
	}
	if !idx.KnownTag("starred") {
		t.Error("expected starred to be known via its empty marker")
	}

	idx.SetEmptyTag("starred", false)
	if idx.IsEmptyTag("starred") {
		t.Error("expected starred marker to be cleared")
	}
	if idx.KnownTag("starred") {
		t.Error("expected starred to be unknown once marker and files are both gone")
	}
}

func TestKnownTagViaFileMembership(t *testing.T) {
	idx := New()
	idx.PutFile(1, []string{"a"})
	if !idx.KnownTag("a") {
		t.Error("expected tag a to be known via file membership")
	}
}
