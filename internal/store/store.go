// Package store provides the persistent, transactional backing for pytagfs:
// a "files" table (FileId -> FileRecord), a "names" table (name -> FileId)
// for O(1) uniqueness checks, and an "empty_tags" table of tags that exist
// without yet being carried by any file.
//
// The three tables are namespaces of a single BadgerDB instance, keyed by a
// one-byte prefix. Every mutation that touches more than one table (create,
// rename, retag, unlink, ...) is wrapped in a single badger transaction so a
// reader never observes a file registered in "names" but missing from
// "files", or vice versa.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pytagfs/internal/logging"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var storeLogger = logging.GetLogger().WithPrefix("store")

// Key prefixes for the three logical tables, plus a meta prefix for the
// FileId counter and the store's instance id.
const (
	prefixFile      byte = 'f'
	prefixName      byte = 'n'
	prefixEmptyTag  byte = 'e'
	prefixMeta      byte = 'm'
	metaNextID           = "next_id"
	metaInstanceID       = "instance_id"
)

// ErrNotFound is returned when a lookup key does not exist.
var ErrNotFound = errors.New("store: not found")

// FileId is the stable identity of a File entity (spec §3).
type FileId uint64

// FileRecord is the persisted representation of a File entity.
type FileRecord struct {
	Name      string            `cbor:"1,keyasint"`
	Content   []byte            `cbor:"2,keyasint"`
	Tags      []string          `cbor:"3,keyasint"`
	Mode      uint32            `cbor:"4,keyasint"`
	Uid       uint32            `cbor:"5,keyasint"`
	Gid       uint32            `cbor:"6,keyasint"`
	Atime     int64             `cbor:"7,keyasint"`
	Mtime     int64             `cbor:"8,keyasint"`
	Ctime     int64             `cbor:"9,keyasint"`
	IsSymlink bool              `cbor:"10,keyasint"`
	Xattrs    map[string][]byte `cbor:"11,keyasint"`
}

// TagSet returns Tags as a set for convenient membership/equality checks.
func (r *FileRecord) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		set[t] = struct{}{}
	}
	return set
}

// Store is the persistent, transactional mapping described by spec §3 and
// expanded in SPEC_FULL.md §5.
type Store struct {
	db         *badger.DB
	nextID     atomic.Uint64
	instanceID string
	mu         sync.Mutex // not locked anywhere; NextID allocates through the atomic nextID
}

// Open opens (creating if necessary) a BadgerDB-backed Store rooted at dir.
func Open(dir string) (*Store, error) {
	storeLogger.Info("opening store at %q", dir)
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogAdapter{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dir, err)
	}

	s := &Store{db: db}
	if err := s.loadOrInitMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadOrInitMeta() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(metaNextID))
		switch {
		case err == nil:
			val, getErr := item.ValueCopy(nil)
			if getErr != nil {
				return getErr
			}
			s.nextID.Store(binary.BigEndian.Uint64(val))
		case errors.Is(err, badger.ErrKeyNotFound):
			s.nextID.Store(1)
			if setErr := txn.Set(metaKey(metaNextID), encodeUint64(1)); setErr != nil {
				return setErr
			}
		default:
			return err
		}

		item, err = txn.Get(metaKey(metaInstanceID))
		switch {
		case err == nil:
			val, getErr := item.ValueCopy(nil)
			if getErr != nil {
				return getErr
			}
			s.instanceID = string(val)
		case errors.Is(err, badger.ErrKeyNotFound):
			s.instanceID = uuid.NewString()
			if setErr := txn.Set(metaKey(metaInstanceID), []byte(s.instanceID)); setErr != nil {
				return setErr
			}
		default:
			return err
		}
		return nil
	})
}

// InstanceID returns the store's persistent, randomly assigned identity,
// stable across remounts of the same datastore directory.
func (s *Store) InstanceID() string {
	return s.instanceID
}

// Close releases the underlying database.
func (s *Store) Close() error {
	storeLogger.Info("closing store")
	return s.db.Close()
}

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, []byte(name)...)
}

func fileKey(id FileId) []byte {
	k := make([]byte, 9)
	k[0] = prefixFile
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

func nameKey(name string) []byte {
	return append([]byte{prefixName}, []byte(name)...)
}

func emptyTagKey(tag string) []byte {
	return append([]byte{prefixEmptyTag}, []byte(tag)...)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func encodeRecord(r *FileRecord) ([]byte, error) {
	return cbor.Marshal(r)
}

func decodeRecord(data []byte) (*FileRecord, error) {
	var r FileRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// badgerLogAdapter routes badger's internal logging through our own Logger.
// Errors and warnings keep their level; badger's info and debug messages are
// demoted to Debug and Trace so they stay out of default-verbosity output.
type badgerLogAdapter struct{}

func (badgerLogAdapter) Errorf(f string, a ...interface{})   { storeLogger.Error(f, a...) }
func (badgerLogAdapter) Warningf(f string, a ...interface{}) { storeLogger.Warn(f, a...) }
func (badgerLogAdapter) Infof(f string, a ...interface{})    { storeLogger.Debug(f, a...) }
func (badgerLogAdapter) Debugf(f string, a ...interface{})   { storeLogger.Trace(f, a...) }
