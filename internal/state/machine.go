package state

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rgdental/wawork/internal/bus"
)

// Status represents the session lifecycle state.
type Status string

const (
	Disconnected Status = "disconnected"
	Connecting   Status = "connecting"
	QRReady      Status = "qr_ready"
	Connected    Status = "connected"
	Reconnecting Status = "reconnecting"
	LoggedOut    Status = "logged_out"
	Error        Status = "error"
)

// validTransitions defines the allowed lifecycle edges. LoggedOut and Error
// are terminal for the session: only an explicit reconnect command
// (→ Connecting) leaves them.
var validTransitions = map[Status][]Status{
	Disconnected: {Connecting, Error},
	Connecting:   {QRReady, Connected, Reconnecting, LoggedOut, Error},
	QRReady:      {Connected, Reconnecting, LoggedOut, Error},
	Connected:    {Reconnecting, LoggedOut, Error},
	Reconnecting: {Connecting, LoggedOut, Error},
	LoggedOut:    {Connecting, Error},
	Error:        {Connecting},
}

// Machine tracks and enforces session status transitions.
type Machine struct {
	mu      sync.RWMutex
	current Status
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new status. Returns an error if the edge
// is not in the lifecycle table. A successful transition publishes a
// session.status event.
func (m *Machine) Transition(to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind: bus.KindStatus,
			Payload: Change{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Change is the payload for session.status events.
type Change struct {
	From Status
	To   Status
}
