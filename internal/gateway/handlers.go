package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/manager"
)

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "running",
		"whatsapp":  s.session.Status(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleChats(w http.ResponseWriter, _ *http.Request) {
	chats := s.session.Chats()
	if chats == nil {
		chats = []manager.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	jid := r.PathValue("jid")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	msgs := s.session.Messages(jid, limit)
	if msgs == nil {
		msgs = []manager.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.To == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `missing "to" or "message" field`})
		return
	}

	s.cmdMu.Lock()
	msg, err := s.session.SendMessage(r.Context(), req.To, req.Message)
	s.cmdMu.Unlock()
	if err != nil {
		s.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": msg.ID})
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.To == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `missing "to" or "message" field`})
		return
	}

	id, err := s.queue.Enqueue(req.To, req.Message)
	if err != nil {
		s.logger.Error("failed to queue message", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "clientMsgId": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	err := s.session.Logout(r.Context())
	s.cmdMu.Unlock()
	if err != nil {
		s.logger.Error("logout failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.cmdMu.Lock()
	err := s.session.Reconnect(r.Context())
	s.cmdMu.Unlock()
	if err != nil {
		s.logger.Error("reconnect failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Reconnection initiated"})
}

func (s *Server) writeSendError(w http.ResponseWriter, err error) {
	var sendErr *manager.SendError
	switch {
	case errors.Is(err, manager.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &sendErr) && errors.Is(sendErr.Err, manager.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &sendErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
