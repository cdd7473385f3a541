package pathparse

import "testing"

func TestDedot(t *testing.T) {
	tests := []struct{ in, want string }{
		{"photo.jpg", "photo.jpg"},
		{".photo.jpg", "photo.jpg"},
		{"..deleteme", "..deleteme"},
		{"..odd", ".odd"},
	}
	for _, tt := range tests {
		if got := Dedot(tt.in); got != tt.want {
			t.Errorf("Dedot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
