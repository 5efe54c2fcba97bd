package manager

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheAppendDedupe(t *testing.T) {
	c := newCache(8, 8)
	m := Message{ID: "A", ChatJID: "x@s.whatsapp.net", Text: "hi", Timestamp: time.Now()}

	if !c.append(m) {
		t.Fatal("first append returned false")
	}
	if c.append(m) {
		t.Error("duplicate append returned true")
	}
	if got := len(c.messages("x@s.whatsapp.net", 0)); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

func TestCacheMessageBound(t *testing.T) {
	c := newCache(8, 3)
	for i := 0; i < 10; i++ {
		c.append(Message{ID: fmt.Sprintf("M%d", i), ChatJID: "x", Text: fmt.Sprintf("m%d", i)})
	}
	got := c.messages("x", 0)
	if len(got) != 3 {
		t.Fatalf("retained = %d, want 3", len(got))
	}
	for i, want := range []string{"m7", "m8", "m9"} {
		if got[i].Text != want {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Text, want)
		}
	}
	// Trimmed ids may be re-appended; only retained ids dedupe.
	if !c.append(Message{ID: "M0", ChatJID: "x", Text: "m0-again"}) {
		t.Error("append of trimmed id rejected")
	}
}

func TestCacheChatEviction(t *testing.T) {
	c := newCache(2, 8)
	base := time.Now()
	for i := 0; i < 3; i++ {
		jid := fmt.Sprintf("chat%d", i)
		c.touchChat(jid, "", "last", base.Add(time.Duration(i)*time.Minute), false)
		c.append(Message{ID: jid + "-m", ChatJID: jid, Text: "x"})
	}
	if got := c.chatCount(); got != 2 {
		t.Fatalf("chats = %d, want 2", got)
	}
	if _, ok := c.chats["chat0"]; ok {
		t.Error("least-recently-active chat survived eviction")
	}
	if len(c.messages("chat0", 0)) != 0 {
		t.Error("evicted chat retained messages")
	}
}

func TestCacheNewChatAtCapSurvives(t *testing.T) {
	c := newCache(2, 10)
	base := time.Now()
	c.touchChat("a", "", "old", base.Add(-2*time.Hour), false)
	c.touchChat("b", "", "older", base.Add(-time.Hour), false)

	// A first message for an unseen chat lands in arrival order: history
	// first, then the summary touch.
	c.append(Message{ID: "c-m1", ChatJID: "c", Text: "hola"})
	c.touchChat("c", "Ana", "hola", base, true)

	if _, ok := c.chats["c"]; !ok {
		t.Fatal("fresh chat evicted at the cap")
	}
	if _, ok := c.chats["a"]; ok {
		t.Error("stalest chat survived eviction")
	}
	if got := len(c.messages("c", 0)); got != 1 {
		t.Errorf("messages for fresh chat = %d, want 1", got)
	}
	if got := c.chats["c"].UnreadCount; got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
}

func TestCacheChatListOrder(t *testing.T) {
	c := newCache(8, 8)
	base := time.Now()
	c.touchChat("old", "", "a", base.Add(-time.Hour), false)
	c.touchChat("new", "", "b", base, false)
	c.touchChat("mid", "", "c", base.Add(-time.Minute), false)

	list := c.chatList()
	want := []string{"new", "mid", "old"}
	for i, w := range want {
		if list[i].JID != w {
			t.Errorf("list[%d] = %q, want %q", i, list[i].JID, w)
		}
	}
}

func TestCacheTouchChatNames(t *testing.T) {
	c := newCache(8, 8)
	s := c.touchChat("34600@s.whatsapp.net", "", "hi", time.Now(), false)
	if s.Name != "34600@s.whatsapp.net" {
		t.Errorf("name = %q, want jid fallback", s.Name)
	}
	s = c.touchChat("34600@s.whatsapp.net", "Ana", "hi2", time.Now(), true)
	if s.Name != "Ana" {
		t.Errorf("name = %q, want Ana", s.Name)
	}
	if s.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount)
	}
}
