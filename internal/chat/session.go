// Package chat manages the lifecycle of one open conversation: history
// load, live message delivery, sends, and teardown.
package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/queue"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

// Session holds at most one live message subscription at a time. Opening a
// conversation tears down the previous subscription before establishing the
// new one; a stale subscription must never keep delivering after the
// dashboard has moved on.
type Session struct {
	store   *store.Store
	feed    *feed.Feed
	queue   *queue.Engine
	agentID string

	mu             sync.Mutex
	conversationID string
	sub            *feed.Subscription
	messages       []store.Message
	seen           map[string]struct{}
	onChange       func([]store.Message)
}

func NewSession(st *store.Store, f *feed.Feed, q *queue.Engine, agentID string) *Session {
	return &Session{store: st, feed: f, queue: q, agentID: agentID}
}

// OnChange registers the view callback invoked with a fresh snapshot after
// every render-affecting change.
func (s *Session) OnChange(fn func([]store.Message)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// ConversationID returns the open conversation, or "" when none is open.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a snapshot of the rendered history, in non-decreasing
// creation-time order.
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []store.Message {
	out := make([]store.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Open switches the session to a conversation. Opening the already-open
// conversation is a no-op. The live subscription is established before the
// history load so nothing inserted in the gap is missed; the overlap this
// creates is absorbed by deduplicating on message id.
func (s *Session) Open(conversationID string) error {
	s.mu.Lock()
	if s.conversationID == conversationID && conversationID != "" {
		s.mu.Unlock()
		return nil
	}
	old := s.detachLocked()
	s.conversationID = conversationID
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	// Cancel outside the session lock: the feed delivers callbacks under
	// its subscriber lock and those callbacks take the session lock.
	if old != nil {
		old.Cancel()
	}

	sub := s.feed.Subscribe(store.TableMessages, feed.OpInsert, func(e feed.Event) bool {
		m, ok := e.Payload.(store.Message)
		return ok && m.ConversationID == conversationID
	}, s.onLiveMessage)

	s.mu.Lock()
	if s.conversationID != conversationID {
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	history, err := s.store.ListMessages(conversationID)
	if err != nil {
		s.mu.Lock()
		stale := s.detachLocked()
		s.conversationID = ""
		s.mu.Unlock()
		if stale != nil {
			stale.Cancel()
		}
		return fmt.Errorf("open conversation: %w", err)
	}

	s.mu.Lock()
	if s.conversationID != conversationID {
		s.mu.Unlock()
		return nil
	}
	for _, m := range history {
		s.insertLocked(m)
	}
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

func (s *Session) onLiveMessage(e feed.Event) {
	m, ok := e.Payload.(store.Message)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.conversationID != m.ConversationID {
		s.mu.Unlock()
		return
	}
	changed := s.insertLocked(m)
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn(snap)
	}
}

// insertLocked places a message so creation-time order is non-decreasing
// even if the feed delivers out of order. Duplicates (history/live overlap)
// are dropped.
func (s *Session) insertLocked(m store.Message) bool {
	if _, dup := s.seen[m.ID]; dup {
		return false
	}
	s.seen[m.ID] = struct{}{}

	i := len(s.messages)
	for i > 0 && s.messages[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	s.messages = append(s.messages, store.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	return true
}

// Send appends a message and advances the conversation's last_activity.
// Empty text or no open session is a no-op. The sent message is not
// rendered locally here; it arrives back through the live feed like any
// other participant's message.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	convID := s.conversationID
	s.mu.Unlock()
	if text == "" || convID == "" {
		return nil
	}

	if _, err := s.store.AppendMessage(convID, s.agentID, &text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if err := s.store.TouchConversation(convID); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Close releases the open conversation through the queue engine, then tears
// down the subscription and clears session state. No-op when nothing is
// open.
func (s *Session) Close() error {
	s.mu.Lock()
	convID := s.conversationID
	s.mu.Unlock()
	if convID == "" {
		return nil
	}

	err := s.queue.Release(convID)
	s.Teardown()
	return err
}

// Teardown cancels the live subscription and clears local state without
// touching the conversation. Used on logout and when switching sessions.
func (s *Session) Teardown() {
	s.mu.Lock()
	old := s.detachLocked()
	s.conversationID = ""
	s.messages = nil
	s.seen = nil
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
}

func (s *Session) detachLocked() *feed.Subscription {
	old := s.sub
	s.sub = nil
	return old
}
