package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/bus"
	"github.com/rgdental/wawork/internal/qr"
	"github.com/rgdental/wawork/internal/state"
)

// Config holds the manager's tunables.
type Config struct {
	HandshakeTimeout   time.Duration
	SendTimeout        time.Duration
	MaxChats           int
	MaxMessagesPerChat int
	Backoff            BackoffConfig
}

// Persister is the optional write-through store for chats and messages, used
// to warm the cache across worker restarts.
type Persister interface {
	SaveMessage(Message) error
	SaveChat(ChatSummary) error
}

// Manager owns the session lifecycle, the chat/message cache and the
// credential store. Transport events are consumed one at a time by a single
// dispatcher goroutine; commands and reads share one mutex with it, so every
// mutation and snapshot is serialized.
type Manager struct {
	cfg       Config
	machine   *state.Machine
	transport Transport
	bus       *bus.Bus
	persist   Persister
	logger    *zap.Logger

	mu             sync.Mutex
	cache          *cache
	user           *User
	qrImage        string
	backoff        *backoff
	reconnectTimer *time.Timer
	handshakeTimer *time.Timer

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a manager. persist may be nil.
func New(cfg Config, machine *state.Machine, transport Transport, b *bus.Bus, persist Persister, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		machine:   machine,
		transport: transport,
		bus:       b,
		persist:   persist,
		logger:    logger,
		cache:     newCache(cfg.MaxChats, cfg.MaxMessagesPerChat),
		backoff:   newBackoff(cfg.Backoff),
		events:    make(chan Event, 256),
		done:      make(chan struct{}),
	}
}

// Start launches the dispatcher loop.
func (m *Manager) Start() {
	go m.loop()
}

// Stop halts the dispatcher and cancels pending timers. It does not touch
// the network connection; the daemon disconnects the transport separately.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		m.stopTimersLocked()
		m.mu.Unlock()
	})
}

// Dispatch enqueues a transport event for the dispatcher loop. The transport
// calls this from its own event goroutine, which preserves arrival order.
func (m *Manager) Dispatch(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) loop() {
	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handle(ev Event) {
	switch ev := ev.(type) {
	case EvQR:
		m.handleQR(ev.Code)
	case EvConnected:
		m.handleConnected(ev.User)
	case EvDisconnected:
		m.handleDisconnected(ev.Reason)
	case EvLoggedOut:
		m.handleLoggedOut(ev.Reason)
	case EvMessage:
		m.handleMessage(ev.Msg)
	case EvHistory:
		m.handleHistory(ev.Msgs)
	case EvCredsError:
		m.logger.Error("credential persistence failed", zap.Error(ev.Err))
		m.bus.Publish(bus.Event{Kind: bus.KindError, Payload: "credential persistence failed: " + ev.Err.Error()})
	case EvInternalError:
		m.handleInternalError(ev.Reason)
	case evHandshakeTimeout:
		m.handleHandshakeTimeout()
	}
}

// Connect initiates the network handshake. Idempotent: a no-op while a
// connection attempt or session is already in flight.
func (m *Manager) Connect(_ context.Context) error {
	m.mu.Lock()
	switch m.machine.Current() {
	case state.Connecting, state.QRReady, state.Connected, state.Reconnecting:
		m.mu.Unlock()
		return nil
	}
	if err := m.machine.Transition(state.Connecting); err != nil {
		m.mu.Unlock()
		return err
	}
	m.startHandshakeTimerLocked()
	m.mu.Unlock()

	go m.dial()
	return nil
}

// Reconnect is the explicit recovery command for logged_out and error
// states. It guarantees a fresh handshake by discarding the stale network
// connection before dialing.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.transport.Disconnect()
	return m.Connect(ctx)
}

// Logout tears down the session, discards persisted credentials and lands in
// logged_out.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.machine.Current() == state.LoggedOut {
		m.mu.Unlock()
		return nil
	}
	m.stopTimersLocked()
	m.mu.Unlock()

	if err := m.transport.Logout(ctx); err != nil {
		m.logger.Warn("provider logout failed", zap.Error(err))
	}
	m.transport.Disconnect()
	if err := m.transport.ClearCredentials(ctx); err != nil {
		m.logger.Error("failed to clear credentials", zap.Error(err))
		m.bus.Publish(bus.Event{Kind: bus.KindError, Payload: "failed to clear credentials: " + err.Error()})
	}

	m.mu.Lock()
	m.user = nil
	m.qrImage = ""
	if err := m.machine.Transition(state.LoggedOut); err != nil {
		m.logger.Debug("logout transition skipped", zap.Error(err))
	}
	m.mu.Unlock()

	m.bus.Publish(bus.Event{Kind: bus.KindLoggedOut, Payload: "logout requested"})
	return nil
}

// SendMessage sends text to a recipient. Valid only while connected.
func (m *Manager) SendMessage(ctx context.Context, to, text string) (Message, error) {
	jid, err := m.transport.NormalizeRecipient(to)
	if err != nil {
		return Message{}, &SendError{Recipient: to, Err: err}
	}

	m.mu.Lock()
	if m.machine.Current() != state.Connected {
		m.mu.Unlock()
		return Message{}, ErrNotConnected
	}
	m.mu.Unlock()

	if m.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SendTimeout)
		defer cancel()
	}

	id, err := m.transport.SendText(ctx, jid, text)
	if err != nil {
		m.bus.Publish(bus.Event{Kind: bus.KindSendFailed, Payload: map[string]string{
			"to":    jid,
			"error": err.Error(),
		}})
		return Message{}, &SendError{Recipient: jid, Err: err}
	}

	msg := Message{
		ID:        id,
		ChatJID:   jid,
		Direction: Outbound,
		Text:      text,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.cache.append(msg)
	sum := *m.cache.touchChat(jid, "", text, msg.Timestamp, false)
	chats := m.cache.chatList()
	m.mu.Unlock()

	m.save(msg, sum)
	m.bus.Publish(bus.Event{Kind: bus.KindMsgOut, Payload: msg})
	m.bus.Publish(bus.Event{Kind: bus.KindChats, Payload: chats})
	return msg, nil
}

// Status returns a snapshot of the session state.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Status:     m.machine.Current(),
		HasQR:      m.qrImage != "",
		QRCode:     m.qrImage,
		ChatsCount: m.cache.chatCount(),
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// Chats returns all chat summaries, most recently active first.
func (m *Manager) Chats() []ChatSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.chatList()
}

// Messages returns the newest limit messages for a chat, oldest first within
// the window.
func (m *Manager) Messages(chatID string, limit int) []Message {
	jid, err := m.transport.NormalizeRecipient(chatID)
	if err != nil {
		jid = chatID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.messages(jid, limit)
}

// Warm preloads the cache from persisted state at startup. Emits no events.
func (m *Manager) Warm(chats []ChatSummary, msgs []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range chats {
		c := chats[i]
		m.cache.chats[c.JID] = &c
	}
	m.cache.evict()
	for _, msg := range msgs {
		m.cache.append(msg)
	}
}

func (m *Manager) dial() {
	if err := m.transport.Connect(context.Background()); err != nil {
		m.logger.Error("connect failed", zap.Error(err))
		var fatal *FatalError
		if errors.As(err, &fatal) {
			// An internal fault that retrying cannot fix.
			m.Dispatch(EvInternalError{Reason: "connect: " + err.Error()})
			return
		}
		m.Dispatch(EvDisconnected{Reason: "connect: " + err.Error()})
	}
}

func (m *Manager) handleQR(code string) {
	uri, err := qr.DataURI(code, 256)
	if err != nil {
		m.logger.Error("failed to render QR", zap.Error(err))
		m.handleInternalError("qr render: " + err.Error())
		return
	}

	m.mu.Lock()
	cur := m.machine.Current()
	if cur != state.Connecting && cur != state.QRReady {
		// Stale challenge after the lifecycle moved on.
		m.mu.Unlock()
		return
	}
	m.stopHandshakeTimerLocked()
	m.qrImage = uri
	if cur == state.Connecting {
		if err := m.machine.Transition(state.QRReady); err != nil {
			m.logger.Warn("qr transition failed", zap.Error(err))
		}
	}
	m.mu.Unlock()

	m.bus.Publish(bus.Event{Kind: bus.KindQR, Payload: uri})
}

func (m *Manager) handleConnected(u User) {
	m.mu.Lock()
	m.stopTimersLocked()
	cur := m.machine.Current()
	if cur == state.Reconnecting {
		// Stream recovered before our own retry fired.
		_ = m.machine.Transition(state.Connecting)
		cur = state.Connecting
	}
	if cur != state.Connecting && cur != state.QRReady {
		// Stale event; the lifecycle moved on (logout, error).
		m.mu.Unlock()
		return
	}
	if err := m.machine.Transition(state.Connected); err != nil {
		m.logger.Warn("connected transition failed", zap.Error(err))
		m.mu.Unlock()
		return
	}
	m.user = &u
	m.qrImage = ""
	m.backoff.Reset()
	m.mu.Unlock()

	m.logger.Info("session connected", zap.String("user", u.ID))
	m.bus.Publish(bus.Event{Kind: bus.KindConnected, Payload: u})
}

func (m *Manager) handleDisconnected(reason string) {
	m.mu.Lock()
	cur := m.machine.Current()
	switch cur {
	case state.Connected, state.Connecting, state.QRReady:
	default:
		// Already reconnecting, logged out or errored.
		m.mu.Unlock()
		return
	}
	if err := m.machine.Transition(state.Reconnecting); err != nil {
		m.mu.Unlock()
		m.logger.Warn("reconnecting transition failed", zap.Error(err))
		return
	}
	m.user = nil
	m.qrImage = ""
	delay := m.backoff.Next()
	m.reconnectTimer = time.AfterFunc(delay, m.retryConnect)
	m.mu.Unlock()

	m.logger.Warn("connection lost", zap.String("reason", reason), zap.Duration("retry_in", delay))
	m.bus.Publish(bus.Event{Kind: bus.KindError, Payload: "connection lost: " + reason})
}

func (m *Manager) handleLoggedOut(reason string) {
	m.mu.Lock()
	m.stopTimersLocked()
	m.user = nil
	m.qrImage = ""
	if err := m.machine.Transition(state.LoggedOut); err != nil {
		m.logger.Warn("logged_out transition failed", zap.Error(err))
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.transport.ClearCredentials(ctx); err != nil {
		m.logger.Error("failed to clear credentials after remote logout", zap.Error(err))
	}

	m.logger.Warn("logged out by provider", zap.String("reason", reason))
	m.bus.Publish(bus.Event{Kind: bus.KindLoggedOut, Payload: reason})
}

// handleInternalError lands the session in the terminal error state. No
// retry timer is scheduled; only an explicit reconnect command recovers.
func (m *Manager) handleInternalError(reason string) {
	m.mu.Lock()
	if m.machine.Current() == state.Error {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.user = nil
	m.qrImage = ""
	if err := m.machine.Transition(state.Error); err != nil {
		m.logger.Warn("error transition failed", zap.Error(err))
	}
	m.mu.Unlock()

	m.logger.Error("internal failure", zap.String("reason", reason))
	m.bus.Publish(bus.Event{Kind: bus.KindError, Payload: "internal failure: " + reason})
}

func (m *Manager) handleMessage(msg Message) {
	m.mu.Lock()
	if !m.cache.append(msg) {
		// Redelivery; already retained.
		m.mu.Unlock()
		return
	}
	sum := *m.cache.touchChat(msg.ChatJID, msg.SenderName, msg.Text, msg.Timestamp, true)
	chats := m.cache.chatList()
	m.mu.Unlock()

	m.save(msg, sum)
	m.bus.Publish(bus.Event{Kind: bus.KindMsgIn, Payload: msg})
	m.bus.Publish(bus.Event{Kind: bus.KindChats, Payload: chats})
}

// handleHistory merges a provider history batch into the cache. Unlike live
// traffic it emits no message events and counts no unread; subscribers get a
// single chat-list refresh.
func (m *Manager) handleHistory(msgs []Message) {
	if len(msgs) == 0 {
		return
	}

	m.mu.Lock()
	added, touched := m.cache.backfill(msgs)
	chats := m.cache.chatList()
	m.mu.Unlock()

	if len(added) == 0 {
		return
	}
	if m.persist != nil {
		for _, msg := range added {
			if err := m.persist.SaveMessage(msg); err != nil {
				m.logger.Error("failed to persist synced message", zap.Error(err), zap.String("msg_id", msg.ID))
			}
		}
		for _, sum := range touched {
			if err := m.persist.SaveChat(sum); err != nil {
				m.logger.Error("failed to persist synced chat", zap.Error(err), zap.String("jid", sum.JID))
			}
		}
	}

	m.logger.Info("history batch merged", zap.Int("messages", len(added)), zap.Int("chats", len(touched)))
	m.bus.Publish(bus.Event{Kind: bus.KindChats, Payload: chats})
}

func (m *Manager) handleHandshakeTimeout() {
	m.mu.Lock()
	cur := m.machine.Current()
	m.mu.Unlock()
	if cur != state.Connecting {
		return
	}
	m.logger.Warn("handshake timed out")
	m.transport.Disconnect()
	m.handleDisconnected("handshake timeout")
}

func (m *Manager) retryConnect() {
	m.mu.Lock()
	if m.machine.Current() != state.Reconnecting {
		m.mu.Unlock()
		return
	}
	if err := m.machine.Transition(state.Connecting); err != nil {
		m.mu.Unlock()
		return
	}
	m.startHandshakeTimerLocked()
	m.mu.Unlock()

	m.dial()
}

func (m *Manager) save(msg Message, sum ChatSummary) {
	if m.persist == nil {
		return
	}
	if err := m.persist.SaveMessage(msg); err != nil {
		m.logger.Error("failed to persist message", zap.Error(err), zap.String("msg_id", msg.ID))
	}
	if err := m.persist.SaveChat(sum); err != nil {
		m.logger.Error("failed to persist chat", zap.Error(err), zap.String("jid", sum.JID))
	}
}

func (m *Manager) startHandshakeTimerLocked() {
	m.stopHandshakeTimerLocked()
	if m.cfg.HandshakeTimeout > 0 {
		m.handshakeTimer = time.AfterFunc(m.cfg.HandshakeTimeout, func() {
			m.Dispatch(evHandshakeTimeout{})
		})
	}
}

func (m *Manager) stopHandshakeTimerLocked() {
	if m.handshakeTimer != nil {
		m.handshakeTimer.Stop()
		m.handshakeTimer = nil
	}
}

func (m *Manager) stopTimersLocked() {
	m.stopHandshakeTimerLocked()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}
