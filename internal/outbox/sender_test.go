package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rgdental/wawork/internal/bus"
	"github.com/rgdental/wawork/internal/manager"
	"github.com/rgdental/wawork/internal/state"
	"github.com/rgdental/wawork/internal/store"
)

// mockSession records sends and returns configurable results.
type mockSession struct {
	mu     sync.Mutex
	status state.Status
	calls  []sendCall
	err    error
}

type sendCall struct {
	To   string
	Text string
}

func (m *mockSession) Status() manager.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return manager.Snapshot{Status: m.status}
}

func (m *mockSession) SendMessage(_ context.Context, to, text string) (manager.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{To: to, Text: text})
	if m.err != nil {
		return manager.Message{}, m.err
	}
	return manager.Message{ID: "server-" + to, ChatJID: to, Text: text}, nil
}

func (m *mockSession) sendCalls() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sendCall(nil), m.calls...)
}

func (m *mockSession) setStatus(st state.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = st
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConfig() Config {
	return Config{
		PollInterval: 20 * time.Millisecond,
		RetryDelay:   50 * time.Millisecond,
		MaxAttempts:  3,
	}
}

func TestEnqueueAssignsClientMsgID(t *testing.T) {
	db := testDB(t)
	s := NewSender(testConfig(), db, &mockSession{}, bus.New(), zap.NewNop())

	id, err := s.Enqueue("555@s.whatsapp.net", "reminder")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("got empty client message id")
	}

	entry, err := db.GetOutboxEntry(id)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("entry not found after enqueue")
	}
	if entry.Status != "queued" {
		t.Errorf("status = %q, want queued", entry.Status)
	}
	if entry.ToJID != "555@s.whatsapp.net" || entry.Body != "reminder" {
		t.Errorf("entry = %+v, want to/body preserved", entry)
	}
}

func TestEnqueueRejectsEmptyFields(t *testing.T) {
	db := testDB(t)
	s := NewSender(testConfig(), db, &mockSession{}, bus.New(), zap.NewNop())

	if _, err := s.Enqueue("", "body"); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := s.Enqueue("555@s.whatsapp.net", ""); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestSenderDeliversWhenConnected(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	session := &mockSession{status: state.Connected}
	s := NewSender(testConfig(), db, session, b, zap.NewNop())

	ch, unsub := b.Subscribe("outbox", 10)
	defer unsub()

	id, err := s.Enqueue("555@s.whatsapp.net", "hello")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindOutboxSent {
			t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindOutboxSent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbox.sent event")
	}

	calls := session.sendCalls()
	if len(calls) != 1 {
		t.Fatalf("got %d send calls, want 1", len(calls))
	}
	if calls[0].To != "555@s.whatsapp.net" || calls[0].Text != "hello" {
		t.Errorf("call = %+v, want {555@s.whatsapp.net, hello}", calls[0])
	}

	entry, err := db.GetOutboxEntry(id)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != "sent" {
		t.Errorf("status = %q, want sent", entry.Status)
	}
	if entry.ServerMsgID != "server-555@s.whatsapp.net" {
		t.Errorf("server_msg_id = %q, want server id recorded", entry.ServerMsgID)
	}
}

func TestSenderWaitsForConnection(t *testing.T) {
	db := testDB(t)
	session := &mockSession{status: state.Disconnected}
	s := NewSender(testConfig(), db, session, bus.New(), zap.NewNop())

	id, err := s.Enqueue("555@s.whatsapp.net", "hold")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)
	if calls := session.sendCalls(); len(calls) != 0 {
		t.Fatalf("got %d send calls while disconnected, want 0", len(calls))
	}

	session.setStatus(state.Connected)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := db.GetOutboxEntry(id)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Status == "sent" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("entry never sent after session connected")
}

func TestSenderRetriesWithFlatDelay(t *testing.T) {
	db := testDB(t)
	session := &mockSession{status: state.Connected, err: fmt.Errorf("network error")}
	s := NewSender(testConfig(), db, session, bus.New(), zap.NewNop())

	id, err := s.Enqueue("555@s.whatsapp.net", "flaky")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	// First failure requeues the entry with a future next_attempt_at.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := db.GetOutboxEntry(id)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Attempts == 1 {
			if entry.Status != "queued" {
				t.Fatalf("status after first failure = %q, want queued", entry.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("first failed attempt was never recorded")
}

func TestSenderFailsAfterMaxAttempts(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	session := &mockSession{status: state.Connected, err: fmt.Errorf("unreachable")}
	cfg := testConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	s := NewSender(cfg, db, session, b, zap.NewNop())

	ch, unsub := b.Subscribe("outbox", 10)
	defer unsub()

	id, err := s.Enqueue("555@s.whatsapp.net", "doomed")
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind != bus.KindOutboxFailed {
				continue
			}
			entry, err := db.GetOutboxEntry(id)
			if err != nil {
				t.Fatal(err)
			}
			if entry.Status != "failed" {
				t.Errorf("status = %q, want failed", entry.Status)
			}
			if entry.Attempts != cfg.MaxAttempts {
				t.Errorf("attempts = %d, want %d", entry.Attempts, cfg.MaxAttempts)
			}
			if entry.ErrorMessage != "unreachable" {
				t.Errorf("error_message = %q, want unreachable", entry.ErrorMessage)
			}
			return
		case <-deadline:
			t.Fatal("timeout waiting for outbox.failed event")
		}
	}
}
