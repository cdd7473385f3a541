package content

import "testing"

func TestTranslateSymlinkTargetAbsoluteUnchanged(t *testing.T) {
	got := TranslateSymlinkTarget("/etc/hosts", 3)
	if got != "/etc/hosts" {
		t.Errorf("expected absolute target unchanged, got %q", got)
	}
}

func TestTranslateSymlinkTargetRelativeAtRoot(t *testing.T) {
	got := TranslateSymlinkTarget("photo.jpg", 0)
	if got != "photo.jpg" {
		t.Errorf("expected no ascents at depth 0, got %q", got)
	}
}

func TestTranslateSymlinkTargetRelativeAtDepth(t *testing.T) {
	got := TranslateSymlinkTarget("photo.jpg", 2)
	want := "../../photo.jpg"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
