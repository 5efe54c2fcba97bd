package manager

import "context"

// Transport is the messaging-network client the manager drives. Connect is
// asynchronous: it begins the handshake and the transport reports progress
// through events dispatched to the manager.
type Transport interface {
	// Connect begins the network handshake. When no credentials are stored
	// the transport must start a pairing flow and emit EvQR events.
	Connect(ctx context.Context) error
	// Disconnect tears down the network connection without touching
	// credentials.
	Disconnect()
	// Logout invalidates the remote session.
	Logout(ctx context.Context) error
	// SendText delivers a text message to a normalized recipient and returns
	// the provider-assigned message id.
	SendText(ctx context.Context, jid, text string) (string, error)
	// HasCredentials reports whether stored pairing material exists.
	HasCredentials() bool
	// ClearCredentials discards stored pairing material so the next connect
	// requires a fresh QR scan.
	ClearCredentials(ctx context.Context) error
	// NormalizeRecipient converts a user-supplied recipient (phone number or
	// full address) into the provider's addressing format.
	NormalizeRecipient(to string) (string, error)
}

// Event is a typed transport event consumed by the manager's dispatcher.
type Event interface{ managerEvent() }

// EvQR carries a fresh pairing challenge. Each one replaces the previous
// pending code.
type EvQR struct {
	Code string
}

// EvConnected reports a successful handshake (saved credentials or QR scan).
type EvConnected struct {
	User User
}

// EvDisconnected reports a recoverable connection loss. The manager will
// schedule a reconnect.
type EvDisconnected struct {
	Reason string
}

// EvLoggedOut reports the provider invalidating the session. Unrecoverable:
// credentials are discarded and an explicit reconnect command is required.
type EvLoggedOut struct {
	Reason string
}

// EvMessage carries an inbound message.
type EvMessage struct {
	Msg Message
}

// EvHistory carries a batch of messages recovered from the provider's
// history sync after pairing. Backfill only: no unread counting, no
// per-message events.
type EvHistory struct {
	Msgs []Message
}

// EvCredsError reports a failure persisting credentials. The in-memory
// session keeps working but the next restart would require re-pairing.
type EvCredsError struct {
	Err error
}

// EvInternalError reports an unexpected internal failure. The session lands
// in the terminal error state and waits for an explicit reconnect command.
type EvInternalError struct {
	Reason string
}

func (EvQR) managerEvent()            {}
func (EvConnected) managerEvent()     {}
func (EvDisconnected) managerEvent()  {}
func (EvLoggedOut) managerEvent()     {}
func (EvMessage) managerEvent()       {}
func (EvHistory) managerEvent()       {}
func (EvCredsError) managerEvent()    {}
func (EvInternalError) managerEvent() {}

// evHandshakeTimeout is raised internally when a connect attempt exceeds
// its deadline without producing a QR or a connection.
type evHandshakeTimeout struct{}

func (evHandshakeTimeout) managerEvent() {}
