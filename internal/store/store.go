// Package store provides the SQLite-backed persistence layer for the
// dispatch dashboard. Every successful mutation is published onto the
// change feed so subscribed dashboards observe it.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/QueueDeck/QueueDeck/internal/feed"
)

// ErrNotFound is returned when a required entity is absent.
var ErrNotFound = errors.New("not found")

type Store struct {
	db   *sql.DB
	feed *feed.Feed
}

// Open opens (or creates) the database at dbPath and applies the schema.
// f may be nil, in which case mutations are not announced.
func Open(dbPath string, f *feed.Feed) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, feed: f}, nil
}

// DB returns the underlying *sql.DB for shared access.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) publish(table string, op feed.Op, rowID string, payload any) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(feed.Event{Table: table, Op: op, RowID: rowID, Payload: payload})
}

// --- Employees ---

// CreateEmployee registers a staff member. ID is generated if empty.
func (s *Store) CreateEmployee(emp *Employee) (*Employee, error) {
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	if emp.Role == "" {
		emp.Role = "agent"
	}
	if emp.Status == "" {
		emp.Status = EmployeeOffline
	}
	_, err := s.db.Exec(`INSERT INTO employees (id, name, email, role, status, active_chat_count, last_active)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		emp.ID, emp.Name, emp.Email, emp.Role, string(emp.Status), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}
	return s.GetEmployee(emp.ID)
}

func (s *Store) GetEmployee(id string) (*Employee, error) {
	return s.scanEmployee(s.db.QueryRow(`SELECT id, name, email, role, status, active_chat_count, last_active
		FROM employees WHERE id = ?`, id))
}

func (s *Store) GetEmployeeByEmail(email string) (*Employee, error) {
	return s.scanEmployee(s.db.QueryRow(`SELECT id, name, email, role, status, active_chat_count, last_active
		FROM employees WHERE email = ?`, email))
}

func (s *Store) scanEmployee(row *sql.Row) (*Employee, error) {
	var e Employee
	var status string
	var lastActive sql.NullTime
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &status, &e.ActiveChatCount, &lastActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	e.Status = EmployeeStatus(status)
	if lastActive.Valid {
		e.LastActive = lastActive.Time
	}
	return &e, nil
}

// SetEmployeeStatus updates presence and stamps last_active.
func (s *Store) SetEmployeeStatus(id string, status EmployeeStatus) error {
	_, err := s.db.Exec(`UPDATE employees SET status = ?, last_active = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set employee status: %w", err)
	}
	s.publish(TableEmployees, feed.OpUpdate, id, nil)
	return nil
}

// SetActiveChatCount writes the derived assignment-count cache.
func (s *Store) SetActiveChatCount(id string, count int) error {
	_, err := s.db.Exec(`UPDATE employees SET active_chat_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set active chat count: %w", err)
	}
	s.publish(TableEmployees, feed.OpUpdate, id, nil)
	return nil
}

// CountActiveFor returns the true count of active conversations assigned to
// an employee. This, not the cache, is what capacity enforcement reads.
func (s *Store) CountActiveFor(employeeID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE assigned_to = ? AND status = ?`,
		employeeID, string(ConvActive)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active conversations: %w", err)
	}
	return n, nil
}

// --- Conversations ---

// CreateConversation inserts a new queued conversation. Normally done by the
// inbound-contact front end; exposed here for seeding and tests.
func (s *Store) CreateConversation(clientID, clientName, displayCode string) (*Conversation, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO conversations (id, client_id, client_name, display_code, status, assigned_to, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
		id, clientID, clientName, displayCode, string(ConvQueued), now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	s.publish(TableConversations, feed.OpInsert, id, *conv)
	return conv, nil
}

const conversationCols = `id, client_id, client_name, display_code, status, COALESCE(assigned_to, ''), last_activity, created_at`

func (s *Store) GetConversation(id string) (*Conversation, error) {
	row := s.db.QueryRow(`SELECT `+conversationCols+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row.Scan)
}

// GetConversationByDisplayCode resolves the short public code used by the
// dashboard search box. Returns ErrNotFound when no client matches.
func (s *Store) GetConversationByDisplayCode(code string) (*Conversation, error) {
	row := s.db.QueryRow(`SELECT `+conversationCols+` FROM conversations WHERE display_code = ? LIMIT 1`, code)
	return scanConversation(row.Scan)
}

func scanConversation(scan func(...any) error) (*Conversation, error) {
	var c Conversation
	var status string
	err := scan(&c.ID, &c.ClientID, &c.ClientName, &c.DisplayCode, &status, &c.AssignedTo, &c.LastActivity, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.Status = ConversationStatus(status)
	return &c, nil
}

// ConversationFilter narrows ListConversations. Zero values are ignored.
type ConversationFilter struct {
	Status     ConversationStatus
	AssignedTo string
}

// ListConversations returns conversations matching the filter, ordered by
// last_activity ascending (oldest first).
func (s *Store) ListConversations(filter ConversationFilter) ([]Conversation, error) {
	query := `SELECT ` + conversationCols + ` FROM conversations WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.AssignedTo != "" {
		query += " AND assigned_to = ?"
		args = append(args, filter.AssignedTo)
	}
	query += " ORDER BY last_activity ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// TransitionConversation performs a conditional status update: the write
// lands only if the conversation is still in the expected state. Reports
// whether a row was updated. assignTo is the new assignee; empty clears it.
func (s *Store) TransitionConversation(id string, from, to ConversationStatus, assignTo string) (bool, error) {
	var assigned any
	if assignTo != "" {
		assigned = assignTo
	}
	res, err := s.db.Exec(`UPDATE conversations SET status = ?, assigned_to = ?, last_activity = ?
		WHERE id = ? AND status = ?`,
		string(to), assigned, time.Now().UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if conv, err := s.GetConversation(id); err == nil {
		s.publish(TableConversations, feed.OpUpdate, id, *conv)
	}
	return true, nil
}

// TouchConversation advances last_activity.
func (s *Store) TouchConversation(id string) error {
	_, err := s.db.Exec(`UPDATE conversations SET last_activity = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	s.publish(TableConversations, feed.OpUpdate, id, nil)
	return nil
}

// --- Messages ---

// AppendMessage inserts one message. body nil means a non-text attachment.
// Messages are append-only; nothing updates or deletes them.
func (s *Store) AppendMessage(conversationID, senderID string, body *string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}
	var bodyVal any
	if body != nil {
		bodyVal = *body
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, bodyVal, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	s.publish(TableMessages, feed.OpInsert, msg.ID, *msg)
	return msg, nil
}

// ListMessages returns a conversation's full history, oldest first.
func (s *Store) ListMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, sender_id, body, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var body sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &body, &m.CreatedAt); err != nil {
			return nil, err
		}
		if body.Valid {
			m.Body = &body.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Secure records ---

// GetSecureRecord fetches the confidential record for a client.
// Returns (nil, nil) when none exists; absence is not an error here.
func (s *Store) GetSecureRecord(clientID string) (*SecureRecord, error) {
	var r SecureRecord
	err := s.db.QueryRow(`SELECT client_id, passport_number, application_id, notes, updated_by, updated_at
		FROM secure_records WHERE client_id = ?`, clientID).
		Scan(&r.ClientID, &r.PassportNumber, &r.ApplicationID, &r.Notes, &r.UpdatedBy, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secure record: %w", err)
	}
	return &r, nil
}

// UpsertSecureRecord creates or replaces the record keyed by client
// identity. No history is kept; last write wins.
func (s *Store) UpsertSecureRecord(rec *SecureRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO secure_records (client_id, passport_number, application_id, notes, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			passport_number = excluded.passport_number,
			application_id = excluded.application_id,
			notes = excluded.notes,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`, rec.ClientID, rec.PassportNumber, rec.ApplicationID, rec.Notes, rec.UpdatedBy, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert secure record: %w", err)
	}
	s.publish(TableSecureRecords, feed.OpUpdate, rec.ClientID, *rec)
	return nil
}

// --- Deadline tasks ---

func (s *Store) CreateDeadlineTask(clientID, note string, deadline time.Time, createdBy string) (*DeadlineTask, error) {
	task := &DeadlineTask{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Note:      note,
		Deadline:  deadline,
		Status:    TaskPending,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO deadline_tasks (id, client_id, note, deadline, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ClientID, task.Note, task.Deadline, string(task.Status), task.CreatedBy, task.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create deadline task: %w", err)
	}
	s.publish(TableDeadlineTasks, feed.OpInsert, task.ID, *task)
	return task, nil
}

// ListPendingDeadlineTasks returns pending ribbon entries, nearest deadline
// first.
func (s *Store) ListPendingDeadlineTasks() ([]DeadlineTask, error) {
	rows, err := s.db.Query(`SELECT id, client_id, note, deadline, status, created_by, created_at
		FROM deadline_tasks WHERE status = ? ORDER BY deadline ASC`, string(TaskPending))
	if err != nil {
		return nil, fmt.Errorf("list deadline tasks: %w", err)
	}
	defer rows.Close()

	var out []DeadlineTask
	for rows.Next() {
		var t DeadlineTask
		var status string
		if err := rows.Scan(&t.ID, &t.ClientID, &t.Note, &t.Deadline, &status, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = TaskStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkDeadlineTaskDone flips a pending task to done. Reports whether the
// task was still pending.
func (s *Store) MarkDeadlineTaskDone(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE deadline_tasks SET status = ? WHERE id = ? AND status = ?`,
		string(TaskDone), id, string(TaskPending))
	if err != nil {
		return false, fmt.Errorf("mark deadline task done: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	s.publish(TableDeadlineTasks, feed.OpUpdate, id, nil)
	return true, nil
}

// --- Missed calls ---

func (s *Store) CreateMissedCall(clientID string) (*MissedCall, error) {
	call := &MissedCall{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Status:    CallUnattended,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO missed_calls (id, client_id, status, created_at)
		VALUES (?, ?, ?, ?)`,
		call.ID, call.ClientID, string(call.Status), call.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create missed call: %w", err)
	}
	s.publish(TableMissedCalls, feed.OpInsert, call.ID, *call)
	return call, nil
}

func (s *Store) ListUnattendedMissedCalls() ([]MissedCall, error) {
	rows, err := s.db.Query(`SELECT id, client_id, status, created_at
		FROM missed_calls WHERE status = ? ORDER BY created_at ASC`, string(CallUnattended))
	if err != nil {
		return nil, fmt.Errorf("list missed calls: %w", err)
	}
	defer rows.Close()

	var out []MissedCall
	for rows.Next() {
		var c MissedCall
		var status string
		if err := rows.Scan(&c.ID, &c.ClientID, &status, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Status = CallStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AttendMissedCall flips a call to attended. One-way; reports whether the
// call was still unattended.
func (s *Store) AttendMissedCall(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE missed_calls SET status = ? WHERE id = ? AND status = ?`,
		string(CallAttended), id, string(CallUnattended))
	if err != nil {
		return false, fmt.Errorf("attend missed call: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	s.publish(TableMissedCalls, feed.OpUpdate, id, nil)
	return true, nil
}
