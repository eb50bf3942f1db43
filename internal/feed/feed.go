// Package feed provides the in-process change feed that fans out row-level
// store mutations to dashboard subscribers.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Op identifies the kind of row mutation an event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpAny matches every mutation kind when used in a subscription.
	OpAny Op = "*"
)

// Event is a single row-level mutation observed on a store table.
type Event struct {
	Table   string    `json:"table"`
	Op      Op        `json:"op"`
	RowID   string    `json:"row_id"`
	Payload any       `json:"payload,omitempty"`
	Origin  string    `json:"origin,omitempty"` // empty for local mutations, relay node id for remote ones
	At      time.Time `json:"at"`
}

// Filter narrows a subscription to events matching a predicate.
// A nil Filter matches everything.
type Filter func(Event) bool

type subscriber struct {
	id     int64
	table  string
	op     Op
	filter Filter
	fn     func(Event)
}

// Subscription is the handle returned by Subscribe. It must be cancelled
// explicitly; Cancel blocks until any in-flight delivery has returned, so
// after Cancel no further callbacks fire.
type Subscription struct {
	id   int64
	feed *Feed
	once sync.Once
}

// Cancel deregisters the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
	})
}

// Feed decouples the store from its observers. Events are published onto a
// buffered channel and delivered by the Run dispatcher goroutine.
//
// Callbacks must not call Subscribe or Cancel on the same feed; they run
// while the subscriber set is read-locked.
type Feed struct {
	events chan Event
	mu     sync.RWMutex
	nextID int64
	subs   map[int64]*subscriber
}

// New creates a change feed.
func New() *Feed {
	return &Feed{
		events: make(chan Event, 100),
		subs:   make(map[int64]*subscriber),
	}
}

// Publish enqueues an event for delivery. Callbacks may publish (a resync
// writing back a reconciled count does), so a full buffer drops the event
// instead of blocking the dispatcher; consumers resync wholesale and only
// see added latency.
func (f *Feed) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case f.events <- e:
	default:
		slog.Warn("feed: buffer full, event dropped", "table", e.Table, "op", e.Op, "row_id", e.RowID)
	}
}

// Subscribe registers a callback for mutations on a table. op narrows the
// mutation kind (OpAny for all), filter optionally narrows by row content.
func (f *Feed) Subscribe(table string, op Op, filter Filter, fn func(Event)) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &subscriber{id: f.nextID, table: table, op: op, filter: filter, fn: fn}
	f.subs[sub.id] = sub
	return &Subscription{id: sub.id, feed: f}
}

// Run delivers published events until the context is cancelled.
// This should be run as a goroutine.
func (f *Feed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-f.events:
			f.dispatch(e)
		}
	}
}

func (f *Feed) dispatch(e Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.table != e.Table {
			continue
		}
		if sub.op != OpAny && sub.op != e.Op {
			continue
		}
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		deliver(sub, e)
	}
}

// deliver invokes one callback. A panicking callback is logged and kept
// subscribed; a bad observer must not silently lose its subscription.
func deliver(sub *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("feed: subscriber panicked", "table", e.Table, "op", e.Op, "row_id", e.RowID, "panic", r)
		}
	}()
	sub.fn(e)
}

// Pending returns the number of undelivered events.
func (f *Feed) Pending() int {
	return len(f.events)
}

// Subscribers returns the number of registered subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
