package store

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Tx is a single store transaction. All mutations the Mutation Planner
// issues for one filesystem callback run inside exactly one Tx so a crash
// or conflict between them never leaves "names" and "files" out of sync
// (spec §4.6, §7).
type Tx struct {
	store *Store
	txn   *badger.Txn
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&Tx{store: s, txn: txn})
	})
}

// Update runs fn inside a read-write transaction. If fn returns an error the
// whole transaction is discarded and the Tag Index must not be updated
// (spec §4.6, §7 "I/O error").
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Tx{store: s, txn: txn})
	})
}

// GetFile reads a file record by id.
func (tx *Tx) GetFile(id FileId) (*FileRecord, error) {
	item, err := tx.txn.Get(fileKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec *FileRecord
	if err := item.Value(func(val []byte) error {
		r, decErr := decodeRecord(val)
		if decErr != nil {
			return decErr
		}
		rec = r
		return nil
	}); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutFile writes a file record by id.
func (tx *Tx) PutFile(id FileId, rec *FileRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return tx.txn.Set(fileKey(id), data)
}

// DeleteFile removes a file record.
func (tx *Tx) DeleteFile(id FileId) error {
	return tx.txn.Delete(fileKey(id))
}

// LookupName resolves a file name to its FileId via the "names" table.
func (tx *Tx) LookupName(name string) (FileId, error) {
	item, err := tx.txn.Get(nameKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var id FileId
	if err := item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("store: corrupt name entry for %q", name)
		}
		id = FileId(beUint64(val))
		return nil
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// PutName records that name identifies id.
func (tx *Tx) PutName(name string, id FileId) error {
	return tx.txn.Set(nameKey(name), encodeUint64(uint64(id)))
}

// DeleteName removes a name entry.
func (tx *Tx) DeleteName(name string) error {
	return tx.txn.Delete(nameKey(name))
}

// NameExists reports whether name is already registered (I1 name uniqueness).
func (tx *Tx) NameExists(name string) (bool, error) {
	_, err := tx.LookupName(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NextID allocates and persists the next monotonic FileId. Must be called
// inside an Update transaction so the allocation commits atomically with
// the record it's for.
func (tx *Tx) NextID() (FileId, error) {
	id := tx.store.nextID.Add(1) - 1
	if err := tx.txn.Set(metaKey(metaNextID), encodeUint64(tx.store.nextID.Load())); err != nil {
		return 0, err
	}
	return FileId(id), nil
}

// PutEmptyTag records a tag that exists without being carried by any file
// (spec §3 EmptyTagMarker).
func (tx *Tx) PutEmptyTag(tag string) error {
	return tx.txn.Set(emptyTagKey(tag), []byte{})
}

// DeleteEmptyTag removes an empty-tag marker, converting the tag to
// implicit (if a file has since acquired it) or erasing it entirely.
func (tx *Tx) DeleteEmptyTag(tag string) error {
	return tx.txn.Delete(emptyTagKey(tag))
}

// EmptyTagExists reports whether tag has an empty marker.
func (tx *Tx) EmptyTagExists(tag string) (bool, error) {
	_, err := tx.txn.Get(emptyTagKey(tag))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EachFile calls fn for every file in the store, in key (id) order. Used to
// rebuild the Tag Index at mount (spec §2 Tag Index).
func (tx *Tx) EachFile(fn func(FileId, *FileRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefixFile}
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte{prefixFile}); it.ValidForPrefix([]byte{prefixFile}); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		id := FileId(beUint64(key[1:]))
		var rec *FileRecord
		if err := item.Value(func(val []byte) error {
			r, decErr := decodeRecord(val)
			if decErr != nil {
				return decErr
			}
			rec = r
			return nil
		}); err != nil {
			return err
		}
		if err := fn(id, rec); err != nil {
			return err
		}
	}
	return nil
}

// EachEmptyTag calls fn for every empty-tag marker.
func (tx *Tx) EachEmptyTag(fn func(tag string) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefixEmptyTag}
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte{prefixEmptyTag}); it.ValidForPrefix([]byte{prefixEmptyTag}); it.Next() {
		key := it.Item().KeyCopy(nil)
		if err := fn(string(key[1:])); err != nil {
			return err
		}
	}
	return nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b[:8] {
		v = v<<8 | uint64(c)
	}
	return v
}
