package manager

import (
	"sort"
	"time"
)

// cache is the manager-owned in-memory view of chats and recent messages.
// All access happens under the manager's lock. Both dimensions are bounded:
// the least-recently-active chat is evicted past maxChats, and each chat
// keeps only the newest maxMsgs messages.
type cache struct {
	maxChats int
	maxMsgs  int
	chats    map[string]*ChatSummary
	msgs     map[string][]Message
	seen     map[string]map[string]struct{}
}

func newCache(maxChats, maxMsgs int) *cache {
	if maxChats <= 0 {
		maxChats = 512
	}
	if maxMsgs <= 0 {
		maxMsgs = 200
	}
	return &cache{
		maxChats: maxChats,
		maxMsgs:  maxMsgs,
		chats:    make(map[string]*ChatSummary),
		msgs:     make(map[string][]Message),
		seen:     make(map[string]map[string]struct{}),
	}
}

// append adds a message to its chat's history in arrival order. Returns
// false if a message with the same id is already retained (redelivery).
func (c *cache) append(m Message) bool {
	ids := c.seen[m.ChatJID]
	if ids == nil {
		ids = make(map[string]struct{})
		c.seen[m.ChatJID] = ids
	}
	if _, dup := ids[m.ID]; dup {
		return false
	}
	ids[m.ID] = struct{}{}

	hist := append(c.msgs[m.ChatJID], m)
	if over := len(hist) - c.maxMsgs; over > 0 {
		for _, old := range hist[:over] {
			delete(ids, old.ID)
		}
		hist = append([]Message(nil), hist[over:]...)
	}
	c.msgs[m.ChatJID] = hist
	return true
}

// touchChat creates or updates the summary for a chat. name is only applied
// when non-empty and the chat has no name yet, or the update carries a
// fresher display name for an inbound sender.
func (c *cache) touchChat(jid, name, lastMessage string, at time.Time, incUnread bool) *ChatSummary {
	s := c.chats[jid]
	inserted := s == nil
	if inserted {
		s = &ChatSummary{JID: jid, Name: name}
		c.chats[jid] = s
	}
	if name != "" {
		s.Name = name
	}
	if s.Name == "" {
		s.Name = jid
	}
	s.LastMessage = lastMessage
	s.LastMessageAt = at
	if incUnread {
		s.UnreadCount++
	}
	// Evict only after the summary carries its real activity time, so a
	// fresh chat at the cap displaces the stalest one instead of itself.
	if inserted {
		c.evict()
	}
	return s
}

// backfill merges a batch of synced history into the cache. The batch is
// ordered by timestamp before insertion and chat summaries only advance, so
// an old conversation never regresses activity recorded from live traffic.
// Backfilled messages count no unread. Returns the retained messages and the
// summaries they touched.
func (c *cache) backfill(msgs []Message) ([]Message, []ChatSummary) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	var added []Message
	touched := make(map[string]struct{})
	for _, m := range msgs {
		if !c.append(m) {
			continue
		}
		added = append(added, m)
		touched[m.ChatJID] = struct{}{}
		s := c.chats[m.ChatJID]
		if s != nil && m.Timestamp.Before(s.LastMessageAt) {
			continue
		}
		var name string
		if m.Direction == Inbound {
			name = m.SenderName
		}
		c.touchChat(m.ChatJID, name, m.Text, m.Timestamp, false)
	}

	sums := make([]ChatSummary, 0, len(touched))
	for jid := range touched {
		// A chat that mixed live and synced messages may hold them out of
		// order now; re-sort its window.
		hist := c.msgs[jid]
		sort.SliceStable(hist, func(i, j int) bool {
			return hist[i].Timestamp.Before(hist[j].Timestamp)
		})
		if s := c.chats[jid]; s != nil {
			sums = append(sums, *s)
		}
	}
	return added, sums
}

// evict removes least-recently-active chats (and their histories) until the
// chat count is within bounds.
func (c *cache) evict() {
	for len(c.chats) > c.maxChats {
		var victim string
		var oldest time.Time
		first := true
		for jid, s := range c.chats {
			if first || s.LastMessageAt.Before(oldest) {
				victim, oldest, first = jid, s.LastMessageAt, false
			}
		}
		delete(c.chats, victim)
		delete(c.msgs, victim)
		delete(c.seen, victim)
	}
}

// chatList returns all summaries, most recently active first.
func (c *cache) chatList() []ChatSummary {
	out := make([]ChatSummary, 0, len(c.chats))
	for _, s := range c.chats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// messages returns the newest limit messages for a chat, oldest first within
// that window.
func (c *cache) messages(jid string, limit int) []Message {
	hist := c.msgs[jid]
	if limit <= 0 || limit > len(hist) {
		limit = len(hist)
	}
	out := make([]Message, limit)
	copy(out, hist[len(hist)-limit:])
	return out
}

func (c *cache) chatCount() int {
	return len(c.chats)
}
