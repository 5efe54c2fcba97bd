package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/bus"
	"github.com/rgdental/wawork/internal/state"
)

// Frame is one WebSocket message in either direction.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type sendCommand struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

const wsSubscriberBuffer = 64

// handleWS upgrades the connection and streams session events to the
// client. The first frame is always the current status snapshot, so a
// client never has to poll after connecting.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.wsOriginPatterns(),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	s.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr))

	if err := wsjson.Write(ctx, conn, Frame{Event: "status", Data: s.session.Status()}); err != nil {
		return
	}

	events, unsub := s.bus.Subscribe("", wsSubscriberBuffer)
	defer unsub()

	go s.readCommands(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			frame, send := s.frameFor(evt)
			if !send {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed, dropping client", zap.Error(err))
				return
			}
		}
	}
}

// frameFor maps an internal bus event to the wire event the frontend
// listens for. Unmapped kinds stay internal.
func (s *Server) frameFor(evt bus.Event) (Frame, bool) {
	switch evt.Kind {
	case bus.KindStatus:
		change, ok := evt.Payload.(state.Change)
		if !ok {
			return Frame{}, false
		}
		// Built from the transition itself, not a live snapshot: a re-read
		// could observe a later state and reorder the stream for clients.
		return Frame{Event: "status", Data: map[string]any{"status": change.To}}, true
	case bus.KindQR:
		return Frame{Event: "qr", Data: evt.Payload}, true
	case bus.KindConnected:
		return Frame{Event: "connected", Data: map[string]any{"user": evt.Payload}}, true
	case bus.KindMsgIn:
		return Frame{Event: "new_message", Data: evt.Payload}, true
	case bus.KindMsgOut:
		return Frame{Event: "message_sent", Data: evt.Payload}, true
	case bus.KindChats:
		return Frame{Event: "chats_updated", Data: evt.Payload}, true
	case bus.KindLoggedOut:
		return Frame{Event: "logged_out"}, true
	case bus.KindError:
		return Frame{Event: "error", Data: map[string]any{"message": evt.Payload}}, true
	default:
		return Frame{}, false
	}
}

// readCommands consumes client frames. The only inbound command is
// send_message; replies go to the issuing client only.
func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame struct {
			Event string      `json:"event"`
			Data  sendCommand `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		if frame.Event != "send_message" {
			continue
		}

		s.cmdMu.Lock()
		msg, err := s.session.SendMessage(ctx, frame.Data.To, frame.Data.Message)
		s.cmdMu.Unlock()
		var reply Frame
		if err != nil {
			reply = Frame{Event: "message_error", Data: map[string]any{"error": err.Error()}}
		} else {
			reply = Frame{Event: "message_sent", Data: map[string]any{"success": true, "messageId": msg.ID}}
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = wsjson.Write(writeCtx, conn, reply)
		cancel()
		if err != nil {
			return
		}
	}
}

func (s *Server) wsOriginPatterns() []string {
	patterns := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			return []string{"*"}
		}
		// AcceptOptions matches against host patterns, not full URLs.
		patterns = append(patterns, stripScheme(o))
	}
	return patterns
}

func stripScheme(origin string) string {
	for _, prefix := range []string{"http://", "https://"} {
		if len(origin) > len(prefix) && origin[:len(prefix)] == prefix {
			return origin[len(prefix):]
		}
	}
	return origin
}
