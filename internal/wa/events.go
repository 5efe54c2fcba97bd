package wa

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/rgdental/wawork/internal/manager"
)

// handleEvent maps whatsmeow events onto the manager's typed event set.
// whatsmeow delivers events from a single goroutine, so arrival order is
// preserved through Dispatch.
func (a *Adapter) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		if evt.Info.IsFromMe {
			// Outbound messages are recorded at send time.
			return
		}
		a.emit(manager.EvMessage{Msg: parseInbound(evt)})
	case *events.Connected:
		a.logger.Info("WhatsApp connected")
		a.emit(manager.EvConnected{User: a.currentUser()})
	case *events.Disconnected:
		a.logger.Warn("WhatsApp disconnected")
		a.emit(manager.EvDisconnected{Reason: "stream closed"})
	case *events.StreamError:
		a.logger.Warn("WhatsApp stream error", zap.String("code", evt.Code))
		a.emit(manager.EvDisconnected{Reason: "stream error: " + evt.Code})
	case *events.ConnectFailure:
		a.logger.Warn("WhatsApp connect failure", zap.String("reason", fmt.Sprintf("%v", evt.Reason)))
		a.emit(manager.EvDisconnected{Reason: fmt.Sprintf("connect failure: %v", evt.Reason)})
	case *events.HistorySync:
		a.handleHistorySync(evt)
	case *events.PairError:
		a.logger.Error("WhatsApp pairing failed", zap.Error(evt.Error))
		a.emit(manager.EvCredsError{Err: evt.Error})
	case *events.LoggedOut:
		a.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		a.emit(manager.EvLoggedOut{Reason: evt.Reason.String()})
	}
}

// handleHistorySync flattens the conversations the provider replays after
// pairing into one backfill batch for the manager.
func (a *Adapter) handleHistorySync(evt *events.HistorySync) {
	if evt.Data == nil {
		return
	}

	var msgs []manager.Message
	for _, conv := range evt.Data.GetConversations() {
		chatJID, err := ParseJID(conv.GetID())
		if err != nil {
			a.logger.Debug("skipping conversation with bad jid", zap.String("jid", conv.GetID()), zap.Error(err))
			continue
		}
		chat := chatJID.ToNonAD().String()
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			body := extractTextBody(wmsg.GetMessage())
			if body == "" {
				body = "[" + detectMessageType(wmsg.GetMessage()) + "]"
			}
			dir := manager.Inbound
			if wmsg.GetKey().GetFromMe() {
				dir = manager.Outbound
			}
			msgs = append(msgs, manager.Message{
				ID:         wmsg.GetKey().GetID(),
				ChatJID:    chat,
				Direction:  dir,
				SenderName: wmsg.GetPushName(),
				Text:       body,
				Timestamp:  time.Unix(int64(wmsg.GetMessageTimestamp()), 0),
			})
		}
	}

	if len(msgs) > 0 {
		a.logger.Info("history sync received", zap.Int("messages", len(msgs)))
		a.emit(manager.EvHistory{Msgs: msgs})
	}
}

func (a *Adapter) currentUser() manager.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := manager.User{}
	if a.client != nil && a.client.Store.ID != nil {
		u.ID = a.client.Store.ID.User
		u.Name = a.client.Store.PushName
	}
	return u
}

func parseInbound(evt *events.Message) manager.Message {
	body := extractTextBody(evt.Message)
	if body == "" {
		body = "[" + detectMessageType(evt.Message) + "]"
	}
	return manager.Message{
		ID:         evt.Info.ID,
		ChatJID:    evt.Info.Chat.ToNonAD().String(),
		Direction:  manager.Inbound,
		SenderName: evt.Info.PushName,
		Text:       body,
		Timestamp:  evt.Info.Timestamp,
	}
}

func sendText(ctx context.Context, c *whatsmeow.Client, jid, text string) (string, error) {
	to, err := ParseJID(jid)
	if err != nil {
		return "", err
	}
	resp, err := c.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "media"
	}
}
