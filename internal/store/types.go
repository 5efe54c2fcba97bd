package store

// Chat is a persisted chat summary row.
type Chat struct {
	JID           string
	Name          string
	LastMessage   string
	LastMessageAt int64 // unix millis
	UnreadCount   int
}

// Message is a persisted message row.
type Message struct {
	ID         int64
	ChatJID    string
	MsgID      string
	Direction  string // inbound, outbound
	SenderName string
	Body       string
	Timestamp  int64 // unix millis
}

// OutboxEntry is a queued scheduled send.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ToJID        string
	Body         string
	Status       string // queued, sending, sent, failed
	Attempts     int
	ErrorMessage string
	ServerMsgID  string
}
