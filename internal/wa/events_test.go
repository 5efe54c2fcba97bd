package wa

import (
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/rgdental/wawork/internal/manager"
)

// testAdapter returns an adapter without a network client, wired to collect
// emitted manager events.
func testAdapter() (*Adapter, *[]manager.Event) {
	a := &Adapter{logger: zap.NewNop()}
	var got []manager.Event
	a.OnEvent(func(ev manager.Event) { got = append(got, ev) })
	return a, &got
}

func historyMsg(id, text string, fromMe bool, ts uint64) *waHistorySync.HistorySyncMsg {
	return &waHistorySync.HistorySyncMsg{
		Message: &waWeb.WebMessageInfo{
			Key: &waCommon.MessageKey{
				ID:     proto.String(id),
				FromMe: proto.Bool(fromMe),
			},
			MessageTimestamp: &ts,
			Message:          &waE2E.Message{Conversation: proto.String(text)},
			PushName:         proto.String("Paciente"),
		},
	}
}

func TestHandleHistorySyncBatch(t *testing.T) {
	a, got := testAdapter()

	ts := uint64(time.Now().Unix())
	a.handleEvent(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID: proto.String("34655000111@s.whatsapp.net"),
					Messages: []*waHistorySync.HistorySyncMsg{
						historyMsg("H1", "buenas", false, ts),
						historyMsg("H2", "hola, dime", true, ts+5),
					},
				},
			},
		},
	})

	if len(*got) != 1 {
		t.Fatalf("emitted %d events, want 1 batch", len(*got))
	}
	batch, ok := (*got)[0].(manager.EvHistory)
	if !ok {
		t.Fatalf("event type = %T, want EvHistory", (*got)[0])
	}
	if len(batch.Msgs) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch.Msgs))
	}
	first := batch.Msgs[0]
	if first.ID != "H1" || first.Text != "buenas" || first.Direction != manager.Inbound {
		t.Errorf("first message = %+v, want inbound H1 buenas", first)
	}
	if first.ChatJID != "34655000111@s.whatsapp.net" {
		t.Errorf("chat jid = %q", first.ChatJID)
	}
	if second := batch.Msgs[1]; second.Direction != manager.Outbound {
		t.Errorf("own history message direction = %v, want outbound", second.Direction)
	}
}

func TestHandleHistorySyncNilData(t *testing.T) {
	a, got := testAdapter()

	a.handleEvent(&events.HistorySync{Data: nil})

	if len(*got) != 0 {
		t.Errorf("emitted %d events, want none", len(*got))
	}
}

func TestHandleHistorySyncSkipsEmptyAndBadEntries(t *testing.T) {
	a, got := testAdapter()

	ts := uint64(time.Now().Unix())
	a.handleEvent(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					// Unparseable conversation id is dropped whole.
					ID: proto.String("@@@"),
					Messages: []*waHistorySync.HistorySyncMsg{
						historyMsg("X1", "lost", false, ts),
					},
				},
				{
					ID: proto.String("34655000111:7@s.whatsapp.net"),
					Messages: []*waHistorySync.HistorySyncMsg{
						{Message: nil},
						historyMsg("H1", "visible", false, ts),
					},
				},
			},
		},
	})

	if len(*got) != 1 {
		t.Fatalf("emitted %d events, want 1 batch", len(*got))
	}
	batch := (*got)[0].(manager.EvHistory)
	if len(batch.Msgs) != 1 || batch.Msgs[0].ID != "H1" {
		t.Fatalf("batch = %+v, want just H1", batch.Msgs)
	}
	// Device suffix is stripped from the conversation id.
	if got := batch.Msgs[0].ChatJID; got != "34655000111@s.whatsapp.net" {
		t.Errorf("chat jid = %q, want device suffix stripped", got)
	}
}

func TestHandlePairError(t *testing.T) {
	a, got := testAdapter()

	cause := errors.New("pair-device response rejected")
	a.handleEvent(&events.PairError{Error: cause})

	if len(*got) != 1 {
		t.Fatalf("emitted %d events, want 1", len(*got))
	}
	ce, ok := (*got)[0].(manager.EvCredsError)
	if !ok {
		t.Fatalf("event type = %T, want EvCredsError", (*got)[0])
	}
	if !errors.Is(ce.Err, cause) {
		t.Errorf("err = %v, want the pairing failure", ce.Err)
	}
}
