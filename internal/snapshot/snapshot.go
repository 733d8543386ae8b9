// Package snapshot mirrors live room documents into an external backend
// so a restarted server can pick rooms back up where they were. The
// in-memory store stays authoritative; backends are write-behind copies
// and entirely optional.
package snapshot

import (
	"context"

	"codesync/internal/store"
)

// Store is a snapshot backend. Save is called after every room
// mutation, Delete when a room is torn down, and LoadAll once at
// startup to repopulate the in-memory store.
type Store interface {
	Save(ctx context.Context, roomID string, doc store.Document) error
	Delete(ctx context.Context, roomID string) error
	LoadAll(ctx context.Context) (map[string]store.Document, error)
	Close() error
}
