package store

import "testing"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetFile(t *testing.T) {
	s := openTestStore(t)

	var id FileId
	err := s.Update(func(tx *Tx) error {
		fid, err := tx.NextID()
		if err != nil {
			return err
		}
		id = fid
		return tx.PutFile(fid, &FileRecord{Name: "a.txt", Tags: []string{"x", "y"}})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = s.View(func(tx *Tx) error {
		rec, err := tx.GetFile(id)
		if err != nil {
			return err
		}
		if rec.Name != "a.txt" {
			t.Errorf("Name = %q, want a.txt", rec.Name)
		}
		if len(rec.Tags) != 2 {
			t.Errorf("Tags = %v, want 2 entries", rec.Tags)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestGetFileNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.View(func(tx *Tx) error {
		_, err := tx.GetFile(999)
		return err
	})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNameRoundTrip(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		return tx.PutName("a.txt", 42)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = s.View(func(tx *Tx) error {
		id, err := tx.LookupName("a.txt")
		if err != nil {
			return err
		}
		if id != 42 {
			t.Errorf("id = %d, want 42", id)
		}
		exists, err := tx.NameExists("a.txt")
		if err != nil {
			return err
		}
		if !exists {
			t.Error("expected NameExists to report true")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestNextIDMonotonic(t *testing.T) {
	s := openTestStore(t)

	var first, second FileId
	_ = s.Update(func(tx *Tx) error {
		var err error
		first, err = tx.NextID()
		return err
	})
	_ = s.Update(func(tx *Tx) error {
		var err error
		second, err = tx.NextID()
		return err
	})

	if second != first+1 {
		t.Errorf("expected monotonic ids, got %d then %d", first, second)
	}
}

func TestEmptyTagLifecycle(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		return tx.PutEmptyTag("starred")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = s.View(func(tx *Tx) error {
		exists, err := tx.EmptyTagExists("starred")
		if err != nil {
			return err
		}
		if !exists {
			t.Error("expected starred marker to exist")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	err = s.Update(func(tx *Tx) error {
		return tx.DeleteEmptyTag("starred")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = s.View(func(tx *Tx) error {
		exists, err := tx.EmptyTagExists("starred")
		if err != nil {
			return err
		}
		if exists {
			t.Error("expected starred marker to be gone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestInstanceIDStableAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id1 := s1.InstanceID()
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if s2.InstanceID() != id1 {
		t.Errorf("instance id changed across reopen: %q vs %q", id1, s2.InstanceID())
	}
}

func TestEachFileIteratesAll(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			id, err := tx.NextID()
			if err != nil {
				return err
			}
			if err := tx.PutFile(id, &FileRecord{Name: "f"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	count := 0
	err = s.View(func(tx *Tx) error {
		return tx.EachFile(func(FileId, *FileRecord) error {
			count++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 files, got %d", count)
	}
}
