package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"codesync/internal/store"
)

var boltBucket = []byte("documents")

// Bolt stores snapshots in a local bbolt file, for single-node
// deployments that want restart recovery without running Redis.
type Bolt struct {
	db *bolt.DB
}

func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt file %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Save(_ context.Context, roomID string, doc store.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(roomID), data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", roomID, err)
	}
	return nil
}

func (b *Bolt) Delete(_ context.Context, roomID string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(roomID))
	})
	if err != nil {
		return fmt.Errorf("delete snapshot %q: %w", roomID, err)
	}
	return nil
}

func (b *Bolt) LoadAll(_ context.Context) (map[string]store.Document, error) {
	docs := make(map[string]store.Document)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(k, v []byte) error {
			var doc store.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode snapshot %q: %w", k, err)
			}
			docs[string(k)] = doc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
