package room

// Wire event names exposed to clients. Inbound names are matched by Decode,
// outbound names are what the hub emits on each target connection.
const (
	EventUserList      = "user-list"
	EventForceRedirect = "force-redirect"

	KindTextDelta   = "code-change"
	KindTree        = "file-tree-change"
	KindTreeAndTabs = "file-tree-and-tabs-change"
	KindChat        = "chat-message"

	eventTextDeltaOut = "code-update"
)

// Transport is the outbound side of the per-connection event channel. The
// registry and lifecycle machine go through it for every emission so that
// tests can substitute a recording fake for the socket.io server.
type Transport interface {
	// Send emits a single event to one connection. Delivery is at-most-once;
	// an error means the event is dropped, never retried.
	Send(connID, event string, payload any) error

	// Disconnect tears down the transport of a connection. The registry
	// observes the resulting disconnect through OnDisconnect.
	Disconnect(connID string)
}
