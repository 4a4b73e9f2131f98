package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/sirupsen/logrus"
)

type (
	// LifecycleConfig bounds the two suspension points of a shutdown: the
	// wait for members to drain and the durable snapshot write.
	LifecycleConfig struct {
		// KickGrace is how long a kicked member keeps its transport after the
		// termination notice, so the notice can arrive before teardown.
		KickGrace time.Duration

		// DrainTimeout caps the wait for non-owners to disappear from the
		// membership table. Transport teardown is not observed instantly, so
		// after the ceiling the lifecycle force-removes them and moves on.
		DrainTimeout time.Duration

		// PersistAttempts bounds retries of the durable snapshot write.
		PersistAttempts int

		// RetryBackoff sleeps between persistence attempts.
		RetryBackoff time.Duration
	}

	// Lifecycle drives a room through ACTIVE -> SHUTTING_DOWN -> CLOSED.
	// Authorization is checked against the durable record's owner identity,
	// never the in-memory owner flag, which can be stale during a race.
	Lifecycle struct {
		registry  *Registry
		transport Transport
		rooms     core.RoomStore
		snapshots core.SnapshotStore
		cfg       LifecycleConfig
	}

	// TerminationNotice is delivered to each evicted member before its
	// transport is torn down.
	TerminationNotice struct {
		URL     string `json:"url"`
		Message string `json:"message"`
	}
)

func NewLifecycle(registry *Registry, transport Transport, rooms core.RoomStore, snapshots core.SnapshotStore, cfg LifecycleConfig) *Lifecycle {
	if cfg.KickGrace <= 0 {
		cfg.KickGrace = 100 * time.Millisecond
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	return &Lifecycle{
		registry:  registry,
		transport: transport,
		rooms:     rooms,
		snapshots: snapshots,
		cfg:       cfg,
	}
}

// Shutdown terminates a room on behalf of its owner: evicts every non-owner,
// waits for the membership table to drain, persists the final tree and flips
// the durable record to inactive. The transition is all-or-nothing: if the
// durable write fails after all retries, the room stays active and the error
// is surfaced to the owner. Once authorization is confirmed there is no
// external cancel; the call runs to CLOSED or explicit failure.
func (l *Lifecycle) Shutdown(ctx context.Context, roomID, requester string, tree *core.FileNode) (*core.Room, error) {
	log := logrus.WithFields(logrus.Fields{
		"room":      roomID,
		"requester": requester,
	})

	rm, err := l.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !rm.Active {
		// Already closed: behave like an unknown room rather than repeating
		// the persistence write.
		return nil, fmt.Errorf("room %s is already closed: %w", roomID, core.ErrRoomNotFound)
	}
	if rm.OwnerID != requester {
		return nil, core.ErrNotOwner
	}

	kick, drained, live := l.registry.BeginShutdown(roomID)
	log.WithFields(logrus.Fields{"kick": len(kick), "live": live}).Info("entering shutdown")

	notice := TerminationNotice{
		URL:     "/dashboard",
		Message: "Room closed by owner",
	}
	for _, m := range kick {
		if err := l.transport.Send(m.ConnID, EventForceRedirect, notice); err != nil {
			log.WithField("conn", m.ConnID).Debug("termination notice dropped")
		}
	}
	if len(kick) > 0 {
		evict := make([]Member, len(kick))
		copy(evict, kick)
		time.AfterFunc(l.cfg.KickGrace, func() {
			for _, m := range evict {
				l.transport.Disconnect(m.ConnID)
			}
		})
	}

	select {
	case <-drained:
	case <-time.After(l.cfg.DrainTimeout):
		log.Warn("drain wait timed out, force-removing stragglers")
		l.registry.ForceRemoveNonOwners(roomID)
	}

	var storageKey string
	var persistErr error
	for attempt := 1; attempt <= l.cfg.PersistAttempts; attempt++ {
		storageKey, persistErr = l.snapshots.WriteSnapshot(ctx, roomID, tree)
		if persistErr == nil {
			break
		}
		log.WithError(persistErr).WithField("attempt", attempt).Warn("snapshot write failed")
		if attempt < l.cfg.PersistAttempts {
			time.Sleep(l.cfg.RetryBackoff)
		}
	}
	if persistErr != nil {
		l.registry.AbortShutdown(roomID)
		return nil, fmt.Errorf("%w: %v", core.ErrPersistenceFailure, persistErr)
	}

	meta := tree.Summary()
	now := time.Now()
	if err := l.rooms.SetInactive(ctx, roomID, storageKey, meta, now); err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			// A concurrent shutdown won the conditional update. The snapshot
			// write is idempotent (overwrite semantics), so just stand down.
			l.registry.CloseRoom(roomID)
			return nil, err
		}
		l.registry.AbortShutdown(roomID)
		return nil, fmt.Errorf("%w: %v", core.ErrPersistenceFailure, err)
	}

	l.registry.CloseRoom(roomID)
	log.WithField("storage_key", storageKey).Info("room closed")

	rm.Active = false
	rm.StorageKey = storageKey
	rm.Metadata = meta
	rm.UpdatedAt = now
	return rm, nil
}
