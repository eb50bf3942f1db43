// Package dashboard is the orchestrator behind one agent's dispatch view.
// It owns the session context — the signed-in employee, the open chat
// session, the queue read models — and exposes the action entry points the
// view layer invokes. All failures surface here; nothing escapes a feed
// callback silently.
package dashboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/QueueDeck/QueueDeck/internal/chat"
	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/identity"
	"github.com/QueueDeck/QueueDeck/internal/queue"
	"github.com/QueueDeck/QueueDeck/internal/secure"
	"github.com/QueueDeck/QueueDeck/internal/store"
	"github.com/QueueDeck/QueueDeck/internal/tracker"
)

// ErrNotSignedIn is returned by actions that need an authenticated agent.
var ErrNotSignedIn = errors.New("no agent signed in")

// Lists is the queue read model: the shared waiting partition plus the
// signed-in agent's active partition.
type Lists struct {
	Waiting []store.Conversation `json:"waiting"`
	Active  []store.Conversation `json:"active"`
}

type Dashboard struct {
	store  *store.Store
	feed   *feed.Feed
	queue  *queue.Engine
	auth   identity.Provider
	linker *secure.Linker
	ribbon *tracker.RibbonTracker
	missed *tracker.MissedCallTracker

	mu       sync.Mutex
	employee *store.Employee
	session  *chat.Session
	convSub  *feed.Subscription
	waiting  []store.Conversation
	active   []store.Conversation
	onQueues func(Lists)
}

func New(st *store.Store, f *feed.Feed, q *queue.Engine, auth identity.Provider) *Dashboard {
	return &Dashboard{
		store:  st,
		feed:   f,
		queue:  q,
		auth:   auth,
		linker: secure.NewLinker(st),
		ribbon: tracker.NewRibbonTracker(st, f),
		missed: tracker.NewMissedCallTracker(st, f),
	}
}

// OnQueuesChange registers the view callback for the queue read model.
func (d *Dashboard) OnQueuesChange(fn func(Lists)) {
	d.mu.Lock()
	d.onQueues = fn
	d.mu.Unlock()
}

// Login authenticates the caller, verifies them against the employee
// roster, marks them online, and brings up the realtime views. An
// authenticated caller who is not on the roster gets
// identity.ErrAuthorizationDenied and no session.
func (d *Dashboard) Login(email, password string) error {
	d.mu.Lock()
	signedIn := d.employee != nil
	d.mu.Unlock()
	if signedIn {
		if err := d.Logout(); err != nil {
			return err
		}
	}

	userID, err := d.auth.Authenticate(email, password)
	if err != nil {
		return err
	}

	emp, err := d.store.GetEmployee(userID)
	if errors.Is(err, store.ErrNotFound) {
		return identity.ErrAuthorizationDenied
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := d.store.SetEmployeeStatus(emp.ID, store.EmployeeOnline); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	emp.Status = store.EmployeeOnline

	session := chat.NewSession(d.store, d.feed, d.queue, emp.ID)
	sub := d.feed.Subscribe(store.TableConversations, feed.OpAny, nil, func(feed.Event) {
		if err := d.refreshQueues(); err != nil {
			slog.Error("dashboard: queue resync failed", "error", err)
		}
	})

	d.mu.Lock()
	d.employee = emp
	d.session = session
	d.convSub = sub
	d.mu.Unlock()

	if err := d.ribbon.Start(); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := d.missed.Start(); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := d.refreshQueues(); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	slog.Info("agent signed in", "employee", emp.ID, "name", emp.Name)
	return nil
}

// Logout tears down the live subscriptions before anything else; a stale
// subscription outliving the session is the one leak this layer must never
// allow. The employee is then marked offline.
func (d *Dashboard) Logout() error {
	d.mu.Lock()
	emp := d.employee
	session := d.session
	sub := d.convSub
	d.employee = nil
	d.session = nil
	d.convSub = nil
	d.waiting = nil
	d.active = nil
	d.mu.Unlock()

	if session != nil {
		session.Teardown()
	}
	if sub != nil {
		sub.Cancel()
	}
	d.ribbon.Stop()
	d.missed.Stop()

	if emp == nil {
		return nil
	}
	if err := d.store.SetEmployeeStatus(emp.ID, store.EmployeeOffline); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	slog.Info("agent signed out", "employee", emp.ID)
	return nil
}

func (d *Dashboard) current() (*store.Employee, *chat.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.employee == nil || d.session == nil {
		return nil, nil, ErrNotSignedIn
	}
	return d.employee, d.session, nil
}

// refreshQueues re-queries both partitions and, as the original dashboard
// does on every conversations change, reconciles the signed-in agent's
// cached active count.
func (d *Dashboard) refreshQueues() error {
	d.mu.Lock()
	emp := d.employee
	d.mu.Unlock()
	if emp == nil {
		return nil
	}

	waiting, err := d.queue.ListWaiting()
	if err != nil {
		return err
	}
	active, err := d.queue.ListActiveFor(emp.ID)
	if err != nil {
		return err
	}
	if err := d.queue.ReconcileCount(emp.ID); err != nil {
		return err
	}

	d.mu.Lock()
	d.waiting = waiting
	d.active = active
	fn := d.onQueues
	snap := d.listsLocked()
	d.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return nil
}

func (d *Dashboard) listsLocked() Lists {
	l := Lists{
		Waiting: make([]store.Conversation, len(d.waiting)),
		Active:  make([]store.Conversation, len(d.active)),
	}
	copy(l.Waiting, d.waiting)
	copy(l.Active, d.active)
	return l
}

// Queues returns the current queue read model.
func (d *Dashboard) Queues() Lists {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listsLocked()
}

// ClaimConversation takes ownership of a waiting conversation and opens its
// chat session. Claim failures (capacity, lost race) leave everything as it
// was.
func (d *Dashboard) ClaimConversation(conversationID string) error {
	emp, session, err := d.current()
	if err != nil {
		return err
	}
	if session.ConversationID() == conversationID {
		return nil
	}
	if err := d.queue.Claim(emp.ID, conversationID); err != nil {
		return err
	}
	return session.Open(conversationID)
}

// OpenConversation opens a chat session without claiming — for revisiting
// an already-active assignment or a search hit.
func (d *Dashboard) OpenConversation(conversationID string) error {
	_, session, err := d.current()
	if err != nil {
		return err
	}
	return session.Open(conversationID)
}

// SendMessage appends to the open conversation.
func (d *Dashboard) SendMessage(text string) error {
	_, session, err := d.current()
	if err != nil {
		return err
	}
	return session.Send(text)
}

// CloseConversation releases the open conversation and clears the session.
func (d *Dashboard) CloseConversation() error {
	_, session, err := d.current()
	if err != nil {
		return err
	}
	return session.Close()
}

// Messages returns the open conversation's rendered history.
func (d *Dashboard) Messages() []store.Message {
	d.mu.Lock()
	session := d.session
	d.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Messages()
}

// OnMessagesChange registers the view callback for the open conversation's
// message list.
func (d *Dashboard) OnMessagesChange(fn func([]store.Message)) error {
	_, session, err := d.current()
	if err != nil {
		return err
	}
	session.OnChange(fn)
	return nil
}

// LoadSecureRecord loads the confidential record for the open
// conversation's client.
func (d *Dashboard) LoadSecureRecord() (*store.SecureRecord, error) {
	_, session, err := d.current()
	if err != nil {
		return nil, err
	}
	convID := session.ConversationID()
	if convID == "" {
		return nil, store.ErrNotFound
	}
	return d.linker.Load(convID)
}

// SaveSecureRecord upserts the confidential record for the open
// conversation's client; with a deadline it also files a ribbon task. A
// *secure.PartialSaveError means the record landed but the task did not.
func (d *Dashboard) SaveSecureRecord(fields secure.Fields, deadline *time.Time) error {
	emp, session, err := d.current()
	if err != nil {
		return err
	}
	convID := session.ConversationID()
	if convID == "" {
		return store.ErrNotFound
	}
	return d.linker.Save(convID, fields, deadline, emp.Name)
}

// AcknowledgeMissedCall flips an unattended call to attended.
func (d *Dashboard) AcknowledgeMissedCall(callID string) error {
	if _, _, err := d.current(); err != nil {
		return err
	}
	return d.missed.Acknowledge(callID)
}

// SearchByDisplayCode resolves a client's short public code. The hit is
// returned for the view to open; a miss is a user-visible failure
// (store.ErrNotFound), unlike the secure-record lookup.
func (d *Dashboard) SearchByDisplayCode(code string) (*store.Conversation, error) {
	if _, _, err := d.current(); err != nil {
		return nil, err
	}
	return d.store.GetConversationByDisplayCode(code)
}

// Ribbon returns the deadline ribbon read model.
func (d *Dashboard) Ribbon() []tracker.RibbonItem {
	return d.ribbon.Items()
}

// MissedCalls returns the unattended missed-call read model.
func (d *Dashboard) MissedCalls() []store.MissedCall {
	return d.missed.Calls()
}

// OnRibbonChange registers the view callback for the ribbon.
func (d *Dashboard) OnRibbonChange(fn func([]tracker.RibbonItem)) {
	d.ribbon.OnChange(fn)
}

// OnMissedCallsChange registers the view callback for the missed-call list.
func (d *Dashboard) OnMissedCallsChange(fn func([]store.MissedCall)) {
	d.missed.OnChange(fn)
}

// Employee returns a copy of the signed-in employee, refreshed from the
// store so the reconciled active count is current.
func (d *Dashboard) Employee() (*store.Employee, error) {
	emp, _, err := d.current()
	if err != nil {
		return nil, err
	}
	return d.store.GetEmployee(emp.ID)
}
