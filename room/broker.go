package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const joinCodePrefix = "joincode:"

// Broker issues and resolves ephemeral join codes. Codes live only in the
// external TTL store; nothing is cached in process memory. A code stays
// resolvable by anyone until its TTL elapses; resolving does not consume it.
type Broker struct {
	rooms core.RoomStore
	codes core.TTLStore
	ttl   time.Duration
}

func NewBroker(rooms core.RoomStore, codes core.TTLStore, ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Broker{rooms: rooms, codes: codes, ttl: ttl}
}

// Issue creates a fresh code for the room. Only the durable-store-recorded
// owner may issue one.
func (b *Broker) Issue(ctx context.Context, roomID, requester string) (code string, ttlSeconds int, err error) {
	rm, err := b.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return "", 0, err
	}
	if rm.OwnerID != requester {
		return "", 0, core.ErrNotOwner
	}

	code = strings.ToLower(ulid.Make().String())
	if err := b.codes.SetWithExpiry(ctx, joinCodePrefix+code, roomID, b.ttl); err != nil {
		return "", 0, fmt.Errorf("store join code: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"room":        roomID,
		"ttl_seconds": int(b.ttl.Seconds()),
	}).Info("join code issued")
	return code, int(b.ttl.Seconds()), nil
}

// Resolve maps a code back to its room id. Absent and expired codes are
// indistinguishable by design.
func (b *Broker) Resolve(ctx context.Context, code string) (string, error) {
	roomID, err := b.codes.Get(ctx, joinCodePrefix+code)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", core.ErrInvalidOrExpired
		}
		return "", fmt.Errorf("look up join code: %w", err)
	}
	// The room may have been deleted since the code was issued.
	if _, err := b.rooms.GetRoom(ctx, roomID); err != nil {
		return "", err
	}
	return roomID, nil
}
