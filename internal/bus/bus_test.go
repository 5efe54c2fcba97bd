package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatus, Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStatus {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStatus)
		}
		if evt.Seq == 0 {
			t.Error("published event has no sequence number")
		}
		if evt.Timestamp.IsZero() {
			t.Error("published event has no timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatus})
	b.Publish(Event{Kind: KindMsgIn})

	select {
	case evt := <-ch:
		if evt.Kind != KindMsgIn {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMsgIn)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the session event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestEmptyNamespaceMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	kinds := []string{KindStatus, KindMsgIn, KindChats}
	for _, k := range kinds {
		b.Publish(Event{Kind: k})
	}
	for _, want := range kinds {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got kind %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}
}

func TestSequenceOrdering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 16)
	defer unsub()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Kind: KindStatus})
	}

	var last uint64
	for i := 0; i < 10; i++ {
		evt := <-ch
		if evt.Seq <= last {
			t.Fatalf("seq %d after %d: delivery reordered", evt.Seq, last)
		}
		last = evt.Seq
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Publish(Event{Kind: KindStatus})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
