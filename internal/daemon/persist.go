package daemon

import (
	"time"

	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/config"
	"github.com/rgdental/wawork/internal/manager"
	"github.com/rgdental/wawork/internal/store"
)

// storePersister writes the manager's chats and messages through to
// SQLite so a restart can warm the cache instead of starting empty.
type storePersister struct {
	db         *store.DB
	maxPerChat int
	logger     *zap.Logger
}

func (p *storePersister) SaveMessage(m manager.Message) error {
	err := p.db.UpsertMessage(&store.Message{
		ChatJID:    m.ChatJID,
		MsgID:      m.ID,
		Direction:  string(m.Direction),
		SenderName: m.SenderName,
		Body:       m.Text,
		Timestamp:  m.Timestamp.UnixMilli(),
	})
	if err != nil {
		return err
	}
	// Keep the table bounded the same way the in-memory cache is.
	return p.db.PruneMessages(m.ChatJID, p.maxPerChat)
}

func (p *storePersister) SaveChat(c manager.ChatSummary) error {
	return p.db.UpsertChat(&store.Chat{
		JID:           c.JID,
		Name:          c.Name,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt.UnixMilli(),
		UnreadCount:   c.UnreadCount,
	})
}

// warmManager loads persisted history into the manager's cache. Failures
// are logged and skipped; the worker can run with an empty cache.
func warmManager(db *store.DB, mgr *manager.Manager, cfg *config.Config, logger *zap.Logger) {
	chats, err := db.RecentChats(cfg.Cache.MaxChats)
	if err != nil {
		logger.Warn("failed to load persisted chats", zap.Error(err))
		return
	}
	if len(chats) == 0 {
		return
	}

	summaries := make([]manager.ChatSummary, 0, len(chats))
	var msgs []manager.Message
	for _, c := range chats {
		summaries = append(summaries, manager.ChatSummary{
			JID:           c.JID,
			Name:          c.Name,
			LastMessage:   c.LastMessage,
			LastMessageAt: time.UnixMilli(c.LastMessageAt),
			UnreadCount:   c.UnreadCount,
		})

		stored, err := db.RecentMessages(c.JID, cfg.Cache.MaxMessagesPerChat)
		if err != nil {
			logger.Warn("failed to load persisted messages", zap.String("chat", c.JID), zap.Error(err))
			continue
		}
		for _, m := range stored {
			msgs = append(msgs, manager.Message{
				ID:         m.MsgID,
				ChatJID:    m.ChatJID,
				Direction:  manager.Direction(m.Direction),
				SenderName: m.SenderName,
				Text:       m.Body,
				Timestamp:  time.UnixMilli(m.Timestamp),
			})
		}
	}

	mgr.Warm(summaries, msgs)
	logger.Info("cache warmed from store", zap.Int("chats", len(summaries)), zap.Int("messages", len(msgs)))
}
