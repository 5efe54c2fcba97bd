package bus

import "time"

// Event kinds published by the worker. Namespace prefixes ("session.",
// "message.", "chat.") are what subscribers filter on.
const (
	KindStatus     = "session.status"
	KindQR         = "session.qr"
	KindConnected  = "session.connected"
	KindLoggedOut  = "session.logged_out"
	KindError      = "session.error"
	KindMsgIn      = "message.received"
	KindMsgOut     = "message.sent"
	KindSendFailed = "message.send_failed"
	KindChats      = "chat.updated"

	KindOutboxSent   = "outbox.sent"
	KindOutboxFailed = "outbox.failed"
)

// Event is a domain event published on the bus. Seq is assigned by the bus
// at publish time and is strictly increasing, so a subscriber can detect
// dropped events across a slow buffer.
type Event struct {
	Kind      string
	Seq       uint64
	Timestamp time.Time
	Payload   any
}
