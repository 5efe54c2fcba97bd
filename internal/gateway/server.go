// Package gateway exposes the session over HTTP and WebSocket for the
// clinic frontend: REST endpoints for reads and commands, plus a push
// channel mirroring the internal event bus.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/bus"
	"github.com/rgdental/wawork/internal/manager"
)

// Session is the part of the session manager the gateway drives.
type Session interface {
	Status() manager.Snapshot
	Chats() []manager.ChatSummary
	Messages(chatJID string, limit int) []manager.Message
	SendMessage(ctx context.Context, to, text string) (manager.Message, error)
	Logout(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

// Queue accepts messages for later delivery.
type Queue interface {
	Enqueue(to, body string) (clientMsgID string, err error)
}

// Config holds the HTTP listener settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// Server manages the HTTP server lifecycle for the worker gateway.
type Server struct {
	cfg        Config
	httpServer *http.Server
	session    Session
	queue      Queue
	bus        *bus.Bus
	logger     *zap.Logger

	// cmdMu serializes the session commands (send, logout, reconnect)
	// across REST handlers and WebSocket clients, so concurrent requests
	// cannot interleave halfway through a lifecycle command.
	cmdMu sync.Mutex
}

// NewServer builds the gateway with all routes registered.
func NewServer(cfg Config, session Session, queue Queue, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		session: session,
		queue:   queue,
		bus:     b,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /chats", s.handleChats)
	mux.HandleFunc("GET /chats/{jid}/messages", s.handleMessages)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /outbox", s.handleOutbox)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /reconnect", s.handleReconnect)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gateway stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
