package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on chat_jid + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_jid, msg_id, direction, sender_name, body, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body`,
		m.ChatJID, m.MsgID, m.Direction, m.SenderName, m.Body, m.Timestamp, now)
	return err
}

// RecentMessages returns the newest limit messages for a chat, oldest first.
func (db *DB) RecentMessages(chatJID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, chat_jid, msg_id, direction, sender_name, body, timestamp
		FROM (
			SELECT id, chat_jid, msg_id, direction, sender_name, body, timestamp
			FROM messages
			WHERE chat_jid = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, id ASC`, chatJID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatJID, &m.MsgID, &m.Direction, &m.SenderName, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PruneMessages deletes everything but the newest keep messages in a chat.
func (db *DB) PruneMessages(chatJID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := db.Exec(`
		DELETE FROM messages
		WHERE chat_jid = ? AND id NOT IN (
			SELECT id FROM messages
			WHERE chat_jid = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		)`, chatJID, chatJID, keep)
	return err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
