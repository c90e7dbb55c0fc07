package main

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const odometerBucket = "odometers"

// TripStore is the byte-oriented key/value service the odometers persist
// through. Values are unsigned fixed-point integers (float x10).
type TripStore interface {
	// Get returns the stored value and whether the key was present.
	Get(key string) (uint32, bool, error)
	Put(key string, value uint32) error
	Close() error
}

// BoltTripStore keeps odometer state in a single-file bbolt database,
// standing in for the instrument's non-volatile storage.
type BoltTripStore struct {
	db *bolt.DB
}

// OpenBoltTripStore opens (or creates) the database and ensures the
// odometer bucket exists.
func OpenBoltTripStore(path string) (*BoltTripStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open trip database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(odometerBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create odometer bucket: %w", err)
	}
	return &BoltTripStore{db: db}, nil
}

func (s *BoltTripStore) Get(key string) (uint32, bool, error) {
	var (
		value uint32
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(odometerBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) != 4 {
			return fmt.Errorf("corrupt value for %s: %d bytes", key, len(v))
		}
		value = binary.BigEndian.Uint32(v)
		found = true
		return nil
	})
	return value, found, err
}

func (s *BoltTripStore) Put(key string, value uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], value)
		return tx.Bucket([]byte(odometerBucket)).Put([]byte(key), buf[:])
	})
}

func (s *BoltTripStore) Close() error {
	return s.db.Close()
}
