package room

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type (
	// Member is one live attachment to a room.
	Member struct {
		ConnID      string `json:"id"`
		DisplayName string `json:"username"`
		IsOwner     bool   `json:"isOwner"`
	}

	// Snapshot is a complete, point-in-time view of a room's membership. It
	// is broadcast after every join and leave so observers never need a
	// separate full-sync request.
	Snapshot struct {
		RoomID  string   `json:"roomId"`
		Members []Member `json:"users"`
	}

	// Registry owns the per-room membership tables. All mutation happens
	// under one lock; the member slices are never handed out, only copies.
	Registry struct {
		mu        sync.Mutex
		transport Transport
		rooms     map[string]*roomState
		byConn    map[string]string // connID -> roomID
	}

	roomState struct {
		members      []Member // join order; members[0] is the owner
		shuttingDown bool
		drained      chan struct{}
		drainClosed  bool
	}
)

func NewRegistry(transport Transport) *Registry {
	return &Registry{
		transport: transport,
		rooms:     make(map[string]*roomState),
		byConn:    make(map[string]string),
	}
}

// Join registers a connection in a room, creating the room table lazily. The
// first member becomes owner. Joining twice with the same connection id
// replaces the prior entry in place, keeping its position and owner flag. A
// connection belongs to at most one room, so joining a new room detaches it
// from the previous one first, with the usual succession rules there.
// Every join ends with a full snapshot broadcast to all members. Rooms
// already shutting down refuse the join: the late joiner is turned away the
// same way evicted members are.
func (r *Registry) Join(roomID, connID, displayName string) Snapshot {
	r.mu.Lock()

	st, ok := r.rooms[roomID]
	if ok && st.shuttingDown {
		r.mu.Unlock()
		notice := TerminationNotice{URL: "/dashboard", Message: "Room is shutting down"}
		if err := r.transport.Send(connID, EventForceRedirect, notice); err != nil {
			logrus.WithFields(logrus.Fields{
				"room": roomID,
				"conn": connID,
			}).Debug("termination notice dropped")
		}
		r.transport.Disconnect(connID)
		logrus.WithFields(logrus.Fields{
			"room": roomID,
			"conn": connID,
		}).Info("join refused, room is shutting down")
		return Snapshot{RoomID: roomID, Members: []Member{}}
	}
	defer r.mu.Unlock()
	if !ok {
		st = &roomState{}
		r.rooms[roomID] = st
	}

	if prev, attached := r.byConn[connID]; attached && prev != roomID {
		r.leaveLocked(prev, connID)
	}

	replaced := false
	for i := range st.members {
		if st.members[i].ConnID == connID {
			st.members[i].DisplayName = displayName
			replaced = true
			break
		}
	}
	if !replaced {
		st.members = append(st.members, Member{
			ConnID:      connID,
			DisplayName: displayName,
			IsOwner:     len(st.members) == 0,
		})
	}
	r.byConn[connID] = roomID

	logrus.WithFields(logrus.Fields{
		"room":     roomID,
		"conn":     connID,
		"username": displayName,
		"members":  len(st.members),
	}).Info("member joined")

	snap := r.snapshotLocked(roomID, st)
	r.broadcastSnapshotLocked(st, snap)
	return snap
}

// Leave removes a connection from a room. If the departing member owned the
// room and the room is not shutting down, ownership passes to the
// next-earliest member. The remainder receives a fresh snapshot.
func (r *Registry) Leave(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomID, connID)
}

// OnDisconnect is the transport-level twin of Leave, invoked when a
// connection drops without an explicit leave signal.
func (r *Registry) OnDisconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if roomID, ok := r.byConn[connID]; ok {
		r.leaveLocked(roomID, connID)
	}
}

func (r *Registry) leaveLocked(roomID, connID string) {
	st, ok := r.rooms[roomID]
	if !ok {
		delete(r.byConn, connID)
		return
	}

	wasOwner := false
	idx := -1
	for i, m := range st.members {
		if m.ConnID == connID {
			idx = i
			wasOwner = m.IsOwner
			break
		}
	}
	if idx < 0 {
		delete(r.byConn, connID)
		return
	}

	st.members = append(st.members[:idx], st.members[idx+1:]...)
	delete(r.byConn, connID)

	// Succession: join order decides the next owner. Suppressed while a
	// shutdown is in flight so a race cannot hand the room off after the
	// owner has already begun terminating it.
	if wasOwner && !st.shuttingDown && len(st.members) > 0 {
		st.members[0].IsOwner = true
		logrus.WithFields(logrus.Fields{
			"room":  roomID,
			"owner": st.members[0].ConnID,
		}).Info("ownership transferred")
	}

	r.maybeDrainLocked(st)

	if len(st.members) == 0 {
		delete(r.rooms, roomID)
		logrus.WithField("room", roomID).Info("room table removed, last member left")
		return
	}

	logrus.WithFields(logrus.Fields{
		"room":    roomID,
		"conn":    connID,
		"members": len(st.members),
	}).Info("member left")

	snap := r.snapshotLocked(roomID, st)
	r.broadcastSnapshotLocked(st, snap)
}

// Publish relays a mutation to every member of the room except the sender.
// Delivery is at-most-once and per-sender FIFO: the lock is held across the
// fan-out, so two publishes from one connection cannot interleave.
func (r *Registry) Publish(roomID, senderID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.rooms[roomID]
	if !ok {
		return
	}

	sent, dropped := 0, 0
	for _, m := range st.members {
		if m.ConnID == senderID {
			continue
		}
		if err := r.transport.Send(m.ConnID, ev.DeliverAs(), ev); err != nil {
			dropped++
			continue
		}
		sent++
	}
	logrus.WithFields(logrus.Fields{
		"room":    roomID,
		"from":    senderID,
		"event":   ev.DeliverAs(),
		"sent":    sent,
		"dropped": dropped,
	}).Debug("mutation relayed")
}

// Members returns a snapshot without mutating anything.
func (r *Registry) Members(roomID string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{RoomID: roomID, Members: []Member{}}
	}
	return r.snapshotLocked(roomID, st)
}

// BeginShutdown marks the room as terminating, which suppresses succession,
// and reports the non-owner members to evict plus a channel closed once the
// last of them is gone. ok is false when the room has no live members.
func (r *Registry) BeginShutdown(roomID string) (kick []Member, drained <-chan struct{}, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, exists := r.rooms[roomID]
	if !exists {
		ch := make(chan struct{})
		close(ch)
		return nil, ch, false
	}

	st.shuttingDown = true
	st.drained = make(chan struct{})
	for _, m := range st.members {
		if !m.IsOwner {
			kick = append(kick, m)
		}
	}
	if len(kick) == 0 {
		st.drainClosed = true
		close(st.drained)
	}
	logrus.WithFields(logrus.Fields{
		"room": roomID,
		"kick": len(kick),
	}).Info("room shutdown initiated")
	return kick, st.drained, true
}

// ForceRemoveNonOwners drops any non-owner entries still present after the
// drain wait timed out. Their transports were already told to disconnect;
// this is bookkeeping so the lifecycle can proceed.
func (r *Registry) ForceRemoveNonOwners(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.rooms[roomID]
	if !ok {
		return
	}
	kept := st.members[:0]
	removed := 0
	for _, m := range st.members {
		if m.IsOwner {
			kept = append(kept, m)
			continue
		}
		delete(r.byConn, m.ConnID)
		removed++
	}
	st.members = kept
	r.maybeDrainLocked(st)
	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"room":    roomID,
			"removed": removed,
		}).Warn("force-removed members that never acknowledged disconnect")
	}
}

// AbortShutdown clears the terminating mark after a failed persistence step;
// the room stays active and succession rules apply again.
func (r *Registry) AbortShutdown(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.rooms[roomID]; ok {
		st.shuttingDown = false
		st.drained = nil
		st.drainClosed = false
	}
}

// CloseRoom drops the room table entirely once the lifecycle machine has
// flipped the durable record to inactive.
func (r *Registry) CloseRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, m := range st.members {
		delete(r.byConn, m.ConnID)
	}
	delete(r.rooms, roomID)
}

func (r *Registry) maybeDrainLocked(st *roomState) {
	if !st.shuttingDown || st.drained == nil || st.drainClosed {
		return
	}
	for _, m := range st.members {
		if !m.IsOwner {
			return
		}
	}
	st.drainClosed = true
	close(st.drained)
}

func (r *Registry) snapshotLocked(roomID string, st *roomState) Snapshot {
	members := make([]Member, len(st.members))
	copy(members, st.members)
	return Snapshot{RoomID: roomID, Members: members}
}

func (r *Registry) broadcastSnapshotLocked(st *roomState, snap Snapshot) {
	for _, m := range st.members {
		if err := r.transport.Send(m.ConnID, EventUserList, snap); err != nil {
			logrus.WithFields(logrus.Fields{
				"room": snap.RoomID,
				"conn": m.ConnID,
			}).Debug("snapshot dropped, connection unreachable")
		}
	}
}
