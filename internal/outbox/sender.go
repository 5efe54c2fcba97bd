// Package outbox drains the scheduled-send queue. Clinic reminders are
// queued through the HTTP API and delivered here once the session is
// connected, with a bounded number of retries per entry.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/bus"
	"github.com/rgdental/wawork/internal/manager"
	"github.com/rgdental/wawork/internal/state"
	"github.com/rgdental/wawork/internal/store"
)

// Session is the part of the session manager the sender needs.
type Session interface {
	Status() manager.Snapshot
	SendMessage(ctx context.Context, to, text string) (manager.Message, error)
}

// Config controls retry behavior for queued messages.
type Config struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int
}

// DefaultConfig matches the clinic reminder defaults: a quick poll, a
// flat delay between retries, and three attempts before giving up.
var DefaultConfig = Config{
	PollInterval: 500 * time.Millisecond,
	RetryDelay:   30 * time.Second,
	MaxAttempts:  3,
}

// Sender polls the outbox and delivers due entries through the session.
type Sender struct {
	cfg     Config
	db      *store.DB
	session Session
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(cfg Config, db *store.DB, session Session, b *bus.Bus, logger *zap.Logger) *Sender {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	return &Sender{
		cfg:     cfg,
		db:      db,
		session: session,
		bus:     b,
		logger:  logger,
	}
}

// Enqueue adds a message to the queue and returns its client message id.
// The entry is picked up by the poll loop once the session is connected.
func (s *Sender) Enqueue(to, body string) (string, error) {
	if to == "" || body == "" {
		return "", errors.New("outbox: recipient and body are required")
	}
	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(clientMsgID, to, body); err != nil {
		return "", err
	}
	s.logger.Info("message queued", zap.String("client_msg_id", clientMsgID), zap.String("to", to))
	return clientMsgID, nil
}

// Start begins polling the outbox for due entries.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	// Entries stay queued until the session is usable. Sending through a
	// disconnected session would burn attempts on a condition that retries
	// cannot fix on their own.
	if s.session.Status().Status != state.Connected {
		return
	}

	pending, err := s.db.PendingOutbox(time.Now().UnixMilli())
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		msg, err := s.session.SendMessage(ctx, entry.ToJID, entry.Body)
		if err != nil {
			s.recordFailure(entry, err)
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		s.logger.Info("queued message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", msg.ID))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindOutboxSent,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"server_msg_id": msg.ID,
			},
		})
	}
}

func (s *Sender) recordFailure(entry store.OutboxEntry, sendErr error) {
	attempts := entry.Attempts + 1
	if attempts >= s.cfg.MaxAttempts {
		s.logger.Error("queued message failed permanently",
			zap.Error(sendErr),
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.Int("attempts", attempts))
		_ = s.db.MarkOutboxFailed(entry.ClientMsgID, sendErr.Error())
		s.bus.Publish(bus.Event{
			Kind:      bus.KindOutboxFailed,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"error":         sendErr.Error(),
			},
		})
		return
	}

	next := time.Now().Add(s.cfg.RetryDelay).UnixMilli()
	s.logger.Warn("queued message send failed, will retry",
		zap.Error(sendErr),
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.Int("attempts", attempts))
	_ = s.db.RequeueOutbox(entry.ClientMsgID, sendErr.Error(), next)
}
