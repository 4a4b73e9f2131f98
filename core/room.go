package core

import (
	"context"
	"time"
)

type (
	// RoomMetadata summarizes the persisted contents of a room, recorded on
	// shutdown alongside the storage key.
	RoomMetadata struct {
		FileCount   int      `json:"fileCount"`
		TotalSizeKB float64  `json:"totalSizeKB"`
		FileTypes   []string `json:"fileTypes"`
	}

	// Room is the durable record of a collaboration session. The engine never
	// deletes it; deletion is a separate administrative path.
	Room struct {
		ID         string       `json:"roomId"`
		OwnerID    string       `json:"roomOwnerId"`
		Active     bool         `json:"isActive"`
		StorageKey string       `json:"storageKey,omitempty"`
		Metadata   RoomMetadata `json:"metadata"`
		CreatedAt  time.Time    `json:"createdAt"`
		UpdatedAt  time.Time    `json:"updatedAt"`
	}

	// RoomStore is the metadata store for rooms. SetInactive must be a
	// conditional update that only proceeds while the room is still active, so
	// two racing shutdowns cannot both flip the record.
	RoomStore interface {
		CreateRoom(ctx context.Context, ownerID string) (*Room, error)

		// GetRoom returns ErrRoomNotFound for an unknown id.
		GetRoom(ctx context.Context, roomID string) (*Room, error)

		// ListByOwner returns all rooms owned by an account, newest first.
		ListByOwner(ctx context.Context, ownerID string) ([]*Room, error)

		// Touch bumps the updated-at timestamp of an active room.
		Touch(ctx context.Context, roomID string, at time.Time) error

		// SetInactive flips the room to inactive, recording the snapshot
		// storage key and summary metadata. Returns ErrRoomNotFound if the
		// room does not exist or is already inactive.
		SetInactive(ctx context.Context, roomID, storageKey string, meta RoomMetadata, at time.Time) error

		// DeleteRoom removes the record entirely (administrative path).
		DeleteRoom(ctx context.Context, roomID string) error
	}
)
