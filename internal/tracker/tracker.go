// Package tracker keeps the realtime-driven side lists in sync: the shared
// deadline ribbon and the missed-call queue. Both resync wholesale on every
// feed event for their table; the lists are small enough that incremental
// patching is not worth the bookkeeping.
package tracker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

// RibbonItem is one deadline ribbon entry. Urgent marks a deadline already
// in the past; the task itself stays pending until someone flips it.
type RibbonItem struct {
	store.DeadlineTask
	Urgent bool `json:"urgent"`
}

// RibbonTracker maintains the cross-agent deadline ribbon.
type RibbonTracker struct {
	store *store.Store
	feed  *feed.Feed
	now   func() time.Time

	mu       sync.Mutex
	items    []RibbonItem
	sub      *feed.Subscription
	onChange func([]RibbonItem)
}

func NewRibbonTracker(st *store.Store, f *feed.Feed) *RibbonTracker {
	return &RibbonTracker{store: st, feed: f, now: time.Now}
}

// OnChange registers the view callback invoked with a fresh snapshot after
// every resync.
func (t *RibbonTracker) OnChange(fn func([]RibbonItem)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start subscribes to deadline-task mutations and performs the initial
// resync.
func (t *RibbonTracker) Start() error {
	sub := t.feed.Subscribe(store.TableDeadlineTasks, feed.OpAny, nil, func(feed.Event) {
		if err := t.Refresh(); err != nil {
			slog.Error("ribbon: resync failed", "error", err)
		}
	})
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return t.Refresh()
}

// Refresh re-queries the pending tasks, nearest deadline first.
func (t *RibbonTracker) Refresh() error {
	tasks, err := t.store.ListPendingDeadlineTasks()
	if err != nil {
		return fmt.Errorf("ribbon refresh: %w", err)
	}
	now := t.now()
	items := make([]RibbonItem, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, RibbonItem{DeadlineTask: task, Urgent: task.Deadline.Before(now)})
	}

	t.mu.Lock()
	t.items = items
	fn := t.onChange
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

// Items returns the current ribbon snapshot.
func (t *RibbonTracker) Items() []RibbonItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *RibbonTracker) snapshotLocked() []RibbonItem {
	out := make([]RibbonItem, len(t.items))
	copy(out, t.items)
	return out
}

// Stop cancels the feed subscription.
func (t *RibbonTracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// MissedCallTracker maintains the unattended missed-call queue.
type MissedCallTracker struct {
	store *store.Store
	feed  *feed.Feed

	mu       sync.Mutex
	calls    []store.MissedCall
	sub      *feed.Subscription
	onChange func([]store.MissedCall)
}

func NewMissedCallTracker(st *store.Store, f *feed.Feed) *MissedCallTracker {
	return &MissedCallTracker{store: st, feed: f}
}

func (t *MissedCallTracker) OnChange(fn func([]store.MissedCall)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start subscribes to missed-call mutations and performs the initial
// resync.
func (t *MissedCallTracker) Start() error {
	sub := t.feed.Subscribe(store.TableMissedCalls, feed.OpAny, nil, func(feed.Event) {
		if err := t.Refresh(); err != nil {
			slog.Error("missed calls: resync failed", "error", err)
		}
	})
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return t.Refresh()
}

func (t *MissedCallTracker) Refresh() error {
	calls, err := t.store.ListUnattendedMissedCalls()
	if err != nil {
		return fmt.Errorf("missed calls refresh: %w", err)
	}

	t.mu.Lock()
	t.calls = calls
	fn := t.onChange
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

// Acknowledge flips a call to attended. The flip is one-way; acknowledging
// an already-attended call is a no-op. The list itself refreshes through
// the feed event the mutation publishes.
func (t *MissedCallTracker) Acknowledge(callID string) error {
	if _, err := t.store.AttendMissedCall(callID); err != nil {
		return fmt.Errorf("acknowledge missed call: %w", err)
	}
	return nil
}

// Calls returns the current unattended snapshot.
func (t *MissedCallTracker) Calls() []store.MissedCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *MissedCallTracker) snapshotLocked() []store.MissedCall {
	out := make([]store.MissedCall, len(t.calls))
	copy(out, t.calls)
	return out
}

func (t *MissedCallTracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
