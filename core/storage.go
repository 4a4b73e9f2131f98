package core

import (
	"context"
	"time"
)

type (
	// SnapshotStore is the durable object store holding each room's finalized
	// file tree, keyed by room id with overwrite semantics: a write replaces
	// any prior snapshot for the room, nothing is versioned.
	SnapshotStore interface {
		// WriteSnapshot persists the full tree and returns the storage key
		// recorded on the Room record.
		WriteSnapshot(ctx context.Context, roomID string, tree *FileNode) (string, error)

		// ReadSnapshot returns ErrNotFound when no snapshot exists.
		ReadSnapshot(ctx context.Context, roomID string) (*FileNode, error)

		DeleteSnapshot(ctx context.Context, roomID string) error
	}

	// TTLStore is the expiring key-value store backing join codes. The engine
	// holds no copy of a code in process memory; the store's expiry is the
	// only invalidation path.
	TTLStore interface {
		SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error

		// Get returns ErrNotFound for absent or expired keys.
		Get(ctx context.Context, key string) (string, error)
	}
)
