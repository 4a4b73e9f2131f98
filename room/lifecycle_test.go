package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
)

// ackTransport extends fakeTransport so Disconnect behaves like a real
// transport teardown: the registry observes the connection going away.
type ackTransport struct {
	*fakeTransport
	registry *Registry
	mute     bool // when set, Disconnect records but never reaches the registry
}

func (t *ackTransport) Disconnect(connID string) {
	t.fakeTransport.Disconnect(connID)
	if !t.mute && t.registry != nil {
		t.registry.OnDisconnect(connID)
	}
}

type fakeRoomStore struct {
	mu             sync.Mutex
	rooms          map[string]*core.Room
	setInactiveErr error
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: make(map[string]*core.Room)}
}

func (s *fakeRoomStore) put(rm *core.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[rm.ID] = rm
}

func (s *fakeRoomStore) CreateRoom(ctx context.Context, ownerID string) (*core.Room, error) {
	rm := &core.Room{ID: "generated", OwnerID: ownerID, Active: true}
	s.put(rm)
	return rm, nil
}

func (s *fakeRoomStore) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[roomID]
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	cp := *rm
	return &cp, nil
}

func (s *fakeRoomStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Room, error) {
	return nil, nil
}

func (s *fakeRoomStore) Touch(ctx context.Context, roomID string, at time.Time) error {
	return nil
}

func (s *fakeRoomStore) SetInactive(ctx context.Context, roomID, storageKey string, meta core.RoomMetadata, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setInactiveErr != nil {
		return s.setInactiveErr
	}
	rm, ok := s.rooms[roomID]
	if !ok || !rm.Active {
		return core.ErrRoomNotFound
	}
	rm.Active = false
	rm.StorageKey = storageKey
	rm.Metadata = meta
	rm.UpdatedAt = at
	return nil
}

func (s *fakeRoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

type fakeSnapshotStore struct {
	mu       sync.Mutex
	writes   int
	failures int // fail the first N writes
	trees    map[string]*core.FileNode
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{trees: make(map[string]*core.FileNode)}
}

func (s *fakeSnapshotStore) WriteSnapshot(ctx context.Context, roomID string, tree *core.FileNode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writes <= s.failures {
		return "", errors.New("storage backend unavailable")
	}
	s.trees[roomID] = tree
	return "rooms/" + roomID + "/", nil
}

func (s *fakeSnapshotStore) ReadSnapshot(ctx context.Context, roomID string) (*core.FileNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[roomID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return tree, nil
}

func (s *fakeSnapshotStore) DeleteSnapshot(ctx context.Context, roomID string) error {
	return nil
}

func testTree() *core.FileNode {
	return &core.FileNode{
		Name: "root",
		Type: core.NodeTypeFolder,
		Children: []*core.FileNode{
			{Name: "main.go", Type: core.NodeTypeFile, Content: "package main"},
			{Name: "README.md", Type: core.NodeTypeFile, Content: "hello"},
		},
	}
}

func fastConfig() LifecycleConfig {
	return LifecycleConfig{
		KickGrace:       time.Millisecond,
		DrainTimeout:    200 * time.Millisecond,
		PersistAttempts: 3,
		RetryBackoff:    time.Millisecond,
	}
}

func newLifecycleFixture(t *testing.T) (*Lifecycle, *Registry, *ackTransport, *fakeRoomStore, *fakeSnapshotStore) {
	t.Helper()
	tr := &ackTransport{fakeTransport: newFakeTransport()}
	reg := NewRegistry(tr)
	tr.registry = reg
	rooms := newFakeRoomStore()
	snaps := newFakeSnapshotStore()
	lc := NewLifecycle(reg, tr, rooms, snaps, fastConfig())
	return lc, reg, tr, rooms, snaps
}

func TestShutdownHappyPath(t *testing.T) {
	lc, reg, tr, rooms, snaps := newLifecycleFixture(t)

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: true})
	reg.Join("r1", "conn-o", "owner")
	reg.Join("r1", "conn-a", "anna")
	reg.Join("r1", "conn-b", "ben")

	rm, err := lc.Shutdown(context.Background(), "r1", "owner-1", testTree())
	if err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if rm.Active {
		t.Error("returned room still marked active")
	}
	if rm.StorageKey != "rooms/r1/" {
		t.Errorf("storage key = %q", rm.StorageKey)
	}
	if rm.Metadata.FileCount != 2 {
		t.Errorf("metadata file count = %d, want 2", rm.Metadata.FileCount)
	}

	// Both non-owners got a termination notice, then a transport teardown.
	for _, conn := range []string{"conn-a", "conn-b"} {
		if got := tr.framesFor(conn, EventForceRedirect); len(got) != 1 {
			t.Errorf("%s got %d termination notices, want 1", conn, len(got))
		}
	}
	if got := tr.framesFor("conn-o", EventForceRedirect); len(got) != 0 {
		t.Error("owner must not receive a termination notice")
	}

	stored, err := rooms.GetRoom(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Active {
		t.Error("durable record still active")
	}
	if _, err := snaps.ReadSnapshot(context.Background(), "r1"); err != nil {
		t.Errorf("snapshot not persisted: %v", err)
	}
	if snap := reg.Members("r1"); len(snap.Members) != 0 {
		t.Errorf("registry still tracks %d members after close", len(snap.Members))
	}
}

func TestShutdownRejectsNonOwner(t *testing.T) {
	lc, reg, _, rooms, snaps := newLifecycleFixture(t)

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: true})
	reg.Join("r1", "conn-o", "owner")
	reg.Join("r1", "conn-a", "anna")

	_, err := lc.Shutdown(context.Background(), "r1", "intruder", testTree())
	if !errors.Is(err, core.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}

	// Nothing changed: room active, no snapshot, members intact.
	stored, _ := rooms.GetRoom(context.Background(), "r1")
	if !stored.Active {
		t.Error("room deactivated by unauthorized request")
	}
	if snaps.writes != 0 {
		t.Errorf("%d snapshot writes from rejected request", snaps.writes)
	}
	if snap := reg.Members("r1"); len(snap.Members) != 2 {
		t.Errorf("membership disturbed: %d members", len(snap.Members))
	}
}

func TestShutdownUnknownRoom(t *testing.T) {
	lc, _, _, _, _ := newLifecycleFixture(t)
	_, err := lc.Shutdown(context.Background(), "ghost", "anyone", testTree())
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestShutdownAlreadyClosedRoom(t *testing.T) {
	lc, _, _, rooms, snaps := newLifecycleFixture(t)

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: false})

	_, err := lc.Shutdown(context.Background(), "r1", "owner-1", testTree())
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound-class", err)
	}
	if snaps.writes != 0 {
		t.Error("second shutdown must not repeat the persistence write")
	}
}

func TestShutdownPersistenceFailureKeepsRoomActive(t *testing.T) {
	lc, reg, _, rooms, snaps := newLifecycleFixture(t)

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: true})
	reg.Join("r1", "conn-o", "owner")
	snaps.failures = 100 // never succeeds

	_, err := lc.Shutdown(context.Background(), "r1", "owner-1", testTree())
	if !errors.Is(err, core.ErrPersistenceFailure) {
		t.Fatalf("err = %v, want ErrPersistenceFailure", err)
	}
	if snaps.writes != 3 {
		t.Errorf("write attempts = %d, want exactly 3", snaps.writes)
	}

	stored, _ := rooms.GetRoom(context.Background(), "r1")
	if !stored.Active {
		t.Error("room must stay active after failed persistence")
	}

	// Shutdown mark must be cleared: succession works again.
	reg.Join("r1", "conn-a", "anna")
	reg.Leave("r1", "conn-o")
	owner, ok := ownerOf(reg.Members("r1"))
	if !ok || owner.ConnID != "conn-a" {
		t.Errorf("succession still suppressed after aborted shutdown: %+v", owner)
	}
}

func TestShutdownRetriesTransientWriteFailure(t *testing.T) {
	lc, reg, _, rooms, snaps := newLifecycleFixture(t)

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: true})
	reg.Join("r1", "conn-o", "owner")
	snaps.failures = 2 // third attempt succeeds

	rm, err := lc.Shutdown(context.Background(), "r1", "owner-1", testTree())
	if err != nil {
		t.Fatalf("shutdown should recover from transient failures: %v", err)
	}
	if snaps.writes != 3 {
		t.Errorf("write attempts = %d, want 3", snaps.writes)
	}
	if rm.Active {
		t.Error("room should be closed after recovery")
	}
}

func TestShutdownDrainTimeoutForcesRemoval(t *testing.T) {
	lc, reg, tr, rooms, _ := newLifecycleFixture(t)
	tr.mute = true // kicked members never acknowledge the teardown

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: true})
	reg.Join("r1", "conn-o", "owner")
	reg.Join("r1", "conn-a", "anna")

	start := time.Now()
	rm, err := lc.Shutdown(context.Background(), "r1", "owner-1", testTree())
	if err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("returned before the drain ceiling: %v", elapsed)
	}
	if rm.Active {
		t.Error("room should close even when members never acknowledge")
	}
}

func TestShutdownLosesSetInactiveRace(t *testing.T) {
	lc, reg, _, rooms, _ := newLifecycleFixture(t)

	rooms.put(&core.Room{ID: "r1", OwnerID: "owner-1", Active: true})
	reg.Join("r1", "conn-o", "owner")
	rooms.setInactiveErr = core.ErrRoomNotFound

	_, err := lc.Shutdown(context.Background(), "r1", "owner-1", testTree())
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
	// The loser stands down completely.
	if snap := reg.Members("r1"); len(snap.Members) != 0 {
		t.Errorf("registry not cleared after losing the race: %d members", len(snap.Members))
	}
}
