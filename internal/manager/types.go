package manager

import (
	"time"

	"github.com/rgdental/wawork/internal/state"
)

// Direction marks whether a message was received or sent by this session.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// User is the identity of the paired account. Present only while connected.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one sent or received message in a chat's history.
type Message struct {
	ID         string    `json:"id"`
	ChatJID    string    `json:"chatJid"`
	Direction  Direction `json:"direction"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatSummary is the per-conversation rollup shown in chat lists.
type ChatSummary struct {
	JID           string    `json:"jid"`
	Name          string    `json:"name"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"timestamp"`
	UnreadCount   int       `json:"unread"`
}

// Snapshot is a point-in-time read of the session state.
type Snapshot struct {
	Status     state.Status `json:"status"`
	User       *User        `json:"user"`
	HasQR      bool         `json:"hasQR"`
	QRCode     string       `json:"qrCode,omitempty"`
	ChatsCount int          `json:"chatsCount"`
}
