package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ttlEntry struct {
	value     string
	expiresAt time.Time
}

// Store is an in-memory implementation of the room metadata store, the
// snapshot store and the TTL store. It backs local development and tests.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*core.Room
	trees map[string][]byte
	kv    map[string]ttlEntry
	now   func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*core.Room),
		trees: make(map[string][]byte),
		kv:    make(map[string]ttlEntry),
		now:   time.Now,
	}
}

// WithClock substitutes the time source used for TTL expiry. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// RoomStore implementation

func (s *Store) CreateRoom(ctx context.Context, ownerID string) (*core.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rm := &core.Room{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Active:    true,
		Metadata:  core.RoomMetadata{FileTypes: []string{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.rooms[rm.ID] = rm
	logrus.WithFields(logrus.Fields{"room": rm.ID, "owner": ownerID}).Info("room created")

	cp := *rm
	return &cp, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rm, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	cp := *rm
	return &cp, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Room
	for _, rm := range s.rooms {
		if rm.OwnerID == ownerID {
			cp := *rm
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Touch(ctx context.Context, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	rm.UpdatedAt = at
	return nil
}

// SetInactive only proceeds while the room is still active, mirroring the
// conditional update a real metadata store performs.
func (s *Store) SetInactive(ctx context.Context, roomID, storageKey string, meta core.RoomMetadata, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[roomID]
	if !ok || !rm.Active {
		return fmt.Errorf("room %s not active: %w", roomID, core.ErrRoomNotFound)
	}
	rm.Active = false
	rm.StorageKey = storageKey
	rm.Metadata = meta
	rm.UpdatedAt = at
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

// SnapshotStore implementation

func (s *Store) WriteSnapshot(ctx context.Context, roomID string, tree *core.FileNode) (string, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[roomID] = data
	return fmt.Sprintf("rooms/%s/", roomID), nil
}

func (s *Store) ReadSnapshot(ctx context.Context, roomID string) (*core.FileNode, error) {
	s.mu.RLock()
	data, ok := s.trees[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
	}
	var tree core.FileNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &tree, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trees, roomID)
	return nil
}

// TTLStore implementation

func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = ttlEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.kv[key]
	if !ok {
		return "", core.ErrNotFound
	}
	if s.now().After(entry.expiresAt) {
		delete(s.kv, key)
		return "", core.ErrNotFound
	}
	return entry.value, nil
}
