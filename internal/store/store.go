// Package store is the bbolt-backed key-value persistence layer. It exposes
// exactly the named tables from the design's external-interfaces section as
// bucket constants, following fs.Cache's CONTENT/METADATA/DELTA bucket
// pattern of one bolt.DB with one bucket per logical table.
package store

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for the persistent tables named in the design.
var (
	BucketIdentity     = []byte("identity")
	BucketKeyExchange  = []byte("key_exchange")
	BucketDrives       = []byte("drives")
	BucketDriveKeys    = []byte("drive_keys")
	BucketACLs         = []byte("acls")
	BucketTokenTracker = []byte("token_trackers")
	BucketAuditLog     = []byte("audit_log")
)

var allBuckets = [][]byte{
	BucketIdentity, BucketKeyExchange, BucketDrives, BucketDriveKeys,
	BucketACLs, BucketTokenTracker, BucketAuditLog,
}

// Store wraps a single bolt.DB shared by every persisted component, the way
// fs.Cache owns one *bolt.DB for the whole filesystem cache.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bolt database at path and ensures every
// known bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get reads a single key from bucket. Returns nil, nil if absent.
func (s *Store) Get(bucket, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// Put writes a single key to bucket.
func (s *Store) Put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// Delete removes a single key from bucket.
func (s *Store) Delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// ForEach iterates every key/value pair in bucket.
func (s *Store) ForEach(bucket []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(fn)
	})
}

// NextSequence returns the next monotonically increasing id for bucket,
// used by the audit log's append-only id assignment.
func (s *Store) NextSequence(bucket []byte) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		return nil
	})
	return id, err
}
