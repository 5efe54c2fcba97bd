package store

import "time"

// QueueOutbox adds a message to the scheduled-send outbox.
func (db *DB) QueueOutbox(clientMsgID, toJID, body string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, to_jid, body, status, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', ?, ?)`,
		clientMsgID, toJID, body, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE client_msg_id = ?`, serverMsgID, now, clientMsgID)
	return err
}

// RequeueOutbox records a failed attempt and schedules the next one.
func (db *DB) RequeueOutbox(clientMsgID, errMsg string, nextAttemptAt int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox
		SET status = 'queued', attempts = attempts + 1, error_message = ?, next_attempt_at = ?, updated_at = ?
		WHERE client_msg_id = ?`,
		errMsg, nextAttemptAt, now, clientMsgID)
	return err
}

// MarkOutboxFailed records a final failed attempt; the entry is terminal.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox
		SET status = 'failed', attempts = attempts + 1, error_message = ?, updated_at = ?
		WHERE client_msg_id = ?`,
		errMsg, now, clientMsgID)
	return err
}

// PendingOutbox returns queued entries that are due, oldest first.
func (db *DB) PendingOutbox(now int64) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, to_jid, body, status, attempts, error_message, server_msg_id
		FROM outbox
		WHERE status = 'queued' AND next_attempt_at <= ?
		ORDER BY created_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ToJID, &e.Body, &e.Status, &e.Attempts, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetOutboxEntry returns a single entry by client message id, or nil.
func (db *DB) GetOutboxEntry(clientMsgID string) (*OutboxEntry, error) {
	var e OutboxEntry
	err := db.QueryRow(`
		SELECT id, client_msg_id, to_jid, body, status, attempts, error_message, server_msg_id
		FROM outbox WHERE client_msg_id = ?`, clientMsgID).
		Scan(&e.ID, &e.ClientMsgID, &e.ToJID, &e.Body, &e.Status, &e.Attempts, &e.ErrorMessage, &e.ServerMsgID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
