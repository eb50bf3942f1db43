// Package queue owns conversation assignment: the waiting/active partitions,
// the claim and release transitions, and the per-agent concurrency cap.
package queue

import (
	"errors"
	"fmt"

	"github.com/QueueDeck/QueueDeck/internal/store"
)

var (
	// ErrCapacityExceeded is returned when an agent already handles the
	// maximum number of active chats. Recoverable by closing one first.
	ErrCapacityExceeded = errors.New("active chat limit reached")
	// ErrInvalidTransition is returned when a state-machine precondition
	// fails (claiming a non-queued conversation, releasing a non-active
	// one). The conversation is left untouched.
	ErrInvalidTransition = errors.New("invalid conversation transition")
)

// DefaultMaxActiveChats is the per-agent concurrency cap.
const DefaultMaxActiveChats = 2

// Engine computes the queue partitions and performs the only legal status
// transitions: queued -> active (Claim) and active -> closed (Release).
type Engine struct {
	store     *store.Store
	maxActive int
}

func NewEngine(st *store.Store, maxActive int) *Engine {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveChats
	}
	return &Engine{store: st, maxActive: maxActive}
}

// ListWaiting returns queued conversations, oldest activity first.
func (e *Engine) ListWaiting() ([]store.Conversation, error) {
	return e.store.ListConversations(store.ConversationFilter{Status: store.ConvQueued})
}

// ListActiveFor returns the conversations an agent is currently handling.
func (e *Engine) ListActiveFor(agentID string) ([]store.Conversation, error) {
	return e.store.ListConversations(store.ConversationFilter{
		Status:     store.ConvActive,
		AssignedTo: agentID,
	})
}

// Claim assigns a queued conversation to an agent. The capacity guard reads
// the true active count, not the cached one. The write is conditional on the
// conversation still being queued, so two agents racing for the same
// conversation resolve to exactly one assignee; the loser gets
// ErrInvalidTransition and no mutation.
func (e *Engine) Claim(agentID, conversationID string) error {
	conv, err := e.store.GetConversation(conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("claim: %w", err)
	}
	if conv.Status != store.ConvQueued {
		return ErrInvalidTransition
	}

	count, err := e.store.CountActiveFor(agentID)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if count >= e.maxActive {
		return ErrCapacityExceeded
	}

	ok, err := e.store.TransitionConversation(conversationID, store.ConvQueued, store.ConvActive, agentID)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !ok {
		return ErrInvalidTransition
	}
	return e.ReconcileCount(agentID)
}

// Release closes an active conversation and clears its assignee.
func (e *Engine) Release(conversationID string) error {
	conv, err := e.store.GetConversation(conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("release: %w", err)
	}
	if conv.Status != store.ConvActive {
		return ErrInvalidTransition
	}

	ok, err := e.store.TransitionConversation(conversationID, store.ConvActive, store.ConvClosed, "")
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if !ok {
		return ErrInvalidTransition
	}
	if conv.AssignedTo != "" {
		return e.ReconcileCount(conv.AssignedTo)
	}
	return nil
}

// ReconcileCount recomputes an agent's active_chat_count from the live
// assignments and writes it back, so the cache never drifts for more than
// one operation.
func (e *Engine) ReconcileCount(agentID string) error {
	count, err := e.store.CountActiveFor(agentID)
	if err != nil {
		return fmt.Errorf("reconcile count: %w", err)
	}
	if err := e.store.SetActiveChatCount(agentID, count); err != nil {
		return fmt.Errorf("reconcile count: %w", err)
	}
	return nil
}

// MaxActive returns the configured per-agent cap.
func (e *Engine) MaxActive() int { return e.maxActive }
