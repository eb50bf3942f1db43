package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/identity"
	"github.com/QueueDeck/QueueDeck/internal/queue"
	"github.com/QueueDeck/QueueDeck/internal/secure"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

type env struct {
	dash  *Dashboard
	store *store.Store
	feed  *feed.Feed
	agent *store.Employee
}

// newEnv wires a full dashboard over a temp store: one roster employee with
// matching credentials, plus a stray credential with no roster entry.
func newEnv(t *testing.T) *env {
	t.Helper()
	f := feed.New()
	dbPath := filepath.Join(t.TempDir(), "queuedeck.db")
	st, err := store.Open(dbPath, f)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go f.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = st.Close()
	})

	agent, err := st.CreateEmployee(&store.Employee{Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	auth := identity.NewStaticProvider([]identity.Credential{
		{UserID: agent.ID, Email: agent.Email, Password: "s3cret"},
		{UserID: "ghost", Email: "ghost@example.com", Password: "s3cret"},
	})

	return &env{
		dash:  New(st, f, queue.NewEngine(st, 0), auth),
		store: st,
		feed:  f,
		agent: agent,
	}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	if err := e.dash.Login("alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	t.Cleanup(func() { _ = e.dash.Logout() })
}

func (e *env) conversation(t *testing.T, clientID, code string) *store.Conversation {
	t.Helper()
	conv, err := e.store.CreateConversation(clientID, "Guest "+clientID, code)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	err := e.dash.Login("alice@example.com", "wrong")
	if !errors.Is(err, identity.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if _, err := e.dash.Employee(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected no session after failed login, got %v", err)
	}
}

func TestLoginRejectsNonStaff(t *testing.T) {
	e := newEnv(t)
	// valid credentials, but no roster entry behind them
	err := e.dash.Login("ghost@example.com", "s3cret")
	if !errors.Is(err, identity.ErrAuthorizationDenied) {
		t.Fatalf("expected ErrAuthorizationDenied, got %v", err)
	}
	if _, err := e.dash.Employee(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected no session after denied login, got %v", err)
	}
}

func TestLoginMarksOnlineAndLoadsQueues(t *testing.T) {
	e := newEnv(t)
	e.conversation(t, "client-1", "111111")
	e.conversation(t, "client-2", "222222")
	e.login(t)

	emp, err := e.dash.Employee()
	if err != nil {
		t.Fatalf("employee: %v", err)
	}
	if emp.Status != store.EmployeeOnline {
		t.Fatalf("expected online after login, got %s", emp.Status)
	}

	lists := e.dash.Queues()
	if len(lists.Waiting) != 2 || len(lists.Active) != 0 {
		t.Fatalf("expected 2 waiting / 0 active, got %d / %d", len(lists.Waiting), len(lists.Active))
	}
}

func TestClaimMovesConversationAcrossLists(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "111111")
	e.login(t)

	if err := e.dash.ClaimConversation(conv.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// the claim publishes a conversations event that drives the resync
	waitFor(t, func() bool {
		lists := e.dash.Queues()
		return len(lists.Waiting) == 0 && len(lists.Active) == 1
	})

	emp, _ := e.dash.Employee()
	if emp.ActiveChatCount != 1 {
		t.Fatalf("expected active count 1, got %d", emp.ActiveChatCount)
	}

	// re-claiming the open conversation is a no-op
	if err := e.dash.ClaimConversation(conv.ID); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
}

func TestClaimRequiresSignIn(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "111111")
	if err := e.dash.ClaimConversation(conv.ID); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestSendAndReceiveMessages(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "111111")
	e.login(t)
	if err := e.dash.ClaimConversation(conv.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := e.dash.SendMessage("hello there"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, func() bool { return len(e.dash.Messages()) == 1 })

	body := "hi, I need help"
	if _, err := e.store.AppendMessage(conv.ID, "client-1", &body); err != nil {
		t.Fatalf("client message: %v", err)
	}
	waitFor(t, func() bool { return len(e.dash.Messages()) == 2 })
}

func TestCloseConversationReleases(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "111111")
	e.login(t)
	if err := e.dash.ClaimConversation(conv.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := e.dash.CloseConversation(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, _ := e.store.GetConversation(conv.ID)
	if got.Status != store.ConvClosed {
		t.Fatalf("expected closed, got %s", got.Status)
	}
	waitFor(t, func() bool {
		emp, err := e.dash.Employee()
		return err == nil && emp.ActiveChatCount == 0
	})
	if len(e.dash.Messages()) != 0 {
		t.Fatalf("expected no messages after close")
	}
}

func TestSecureRecordRoundTrip(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "111111")
	e.login(t)
	if err := e.dash.ClaimConversation(conv.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	deadline := time.Now().Add(24 * time.Hour)
	fields := secure.Fields{PassportNumber: "P1234567", Notes: "renewal"}
	if err := e.dash.SaveSecureRecord(fields, &deadline); err != nil {
		t.Fatalf("save secure record: %v", err)
	}

	rec, err := e.dash.LoadSecureRecord()
	if err != nil {
		t.Fatalf("load secure record: %v", err)
	}
	if rec.PassportNumber != "P1234567" || rec.UpdatedBy != "Alice" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// the deadline filed a ribbon task
	waitFor(t, func() bool { return len(e.dash.Ribbon()) == 1 })
}

func TestSecureRecordRequiresOpenConversation(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	if _, err := e.dash.LoadSecureRecord(); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without open conversation, got %v", err)
	}
}

func TestSearchByDisplayCode(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "314159")
	e.login(t)

	hit, err := e.dash.SearchByDisplayCode("314159")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hit.ID != conv.ID {
		t.Fatalf("expected %s, got %s", conv.ID, hit.ID)
	}

	// search never claims
	got, _ := e.store.GetConversation(conv.ID)
	if got.Status != store.ConvQueued {
		t.Fatalf("expected search hit left queued, got %s", got.Status)
	}

	if _, err := e.dash.SearchByDisplayCode("000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on miss, got %v", err)
	}
}

func TestMissedCallsAcknowledge(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	call, err := e.store.CreateMissedCall("client-1")
	if err != nil {
		t.Fatalf("create missed call: %v", err)
	}
	waitFor(t, func() bool { return len(e.dash.MissedCalls()) == 1 })

	if err := e.dash.AcknowledgeMissedCall(call.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	waitFor(t, func() bool { return len(e.dash.MissedCalls()) == 0 })
}

func TestLogoutTearsEverythingDown(t *testing.T) {
	e := newEnv(t)
	conv := e.conversation(t, "client-1", "111111")
	if err := e.dash.Login("alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := e.dash.ClaimConversation(conv.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := e.dash.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if e.feed.Subscribers() != 0 {
		t.Fatalf("expected all subscriptions torn down, got %d", e.feed.Subscribers())
	}
	emp, err := e.store.GetEmployee(e.agent.ID)
	if err != nil {
		t.Fatalf("get employee: %v", err)
	}
	if emp.Status != store.EmployeeOffline {
		t.Fatalf("expected offline after logout, got %s", emp.Status)
	}
	if _, err := e.dash.Employee(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn after logout, got %v", err)
	}

	// logout with no session is a no-op
	if err := e.dash.Logout(); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}
