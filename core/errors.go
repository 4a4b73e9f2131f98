package core

import "errors"

// Error taxonomy shared by the engine, the stores and the HTTP layer.
// Handlers translate these with errors.Is; everything else is treated as an
// internal error.
var (
	// ErrNotOwner rejects owner-only operations (shutdown, join-code issue).
	ErrNotOwner = errors.New("requester is not the room owner")

	// ErrRoomNotFound covers unknown room ids and rooms already shut down.
	ErrRoomNotFound = errors.New("room not found")

	// ErrInvalidOrExpired is returned for join codes that were never issued,
	// or whose TTL has elapsed.
	ErrInvalidOrExpired = errors.New("invalid or expired join code")

	// ErrPersistenceFailure wraps a failed durable write during shutdown.
	// The room stays active; the owner may retry.
	ErrPersistenceFailure = errors.New("failed to persist room snapshot")

	// ErrNotFound is the generic absent-key sentinel used by the stores.
	ErrNotFound = errors.New("not found")
)
