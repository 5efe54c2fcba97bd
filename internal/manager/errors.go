package manager

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by SendMessage when the session is not in the
// connected state. It is reported to the caller and never affects the
// session lifecycle.
var ErrNotConnected = errors.New("session not connected")

// SendError is a network-level send failure. The session state is unaffected
// unless the underlying connection itself dropped, which surfaces as a
// separate status transition.
type SendError struct {
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// FatalError marks a transport failure that retrying cannot fix, such as a
// corrupt credential store. The manager lands in the terminal error state
// instead of scheduling reconnects.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
