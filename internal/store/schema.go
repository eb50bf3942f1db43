package store

import (
	"time"
)

// Table names, shared with feed subscribers.
const (
	TableEmployees     = "employees"
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableSecureRecords = "secure_records"
	TableDeadlineTasks = "deadline_tasks"
	TableMissedCalls   = "missed_calls"
)

// ConversationStatus is the lifecycle state of a conversation.
// Progression is strictly queued -> active -> closed.
type ConversationStatus string

const (
	ConvQueued ConversationStatus = "queued"
	ConvActive ConversationStatus = "active"
	ConvClosed ConversationStatus = "closed"
)

// EmployeeStatus is the presence state of a staff member.
type EmployeeStatus string

const (
	EmployeeOffline EmployeeStatus = "offline"
	EmployeeOnline  EmployeeStatus = "online"
)

// TaskStatus is the lifecycle state of a deadline task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
)

// CallStatus is the lifecycle state of a missed call.
type CallStatus string

const (
	CallUnattended CallStatus = "unattended"
	CallAttended   CallStatus = "attended"
)

// Employee represents a staff member who can handle conversations.
// ActiveChatCount is a derived cache of their live active assignments;
// the queue engine reconciles it after every claim and release.
type Employee struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Role            string         `json:"role"`
	Status          EmployeeStatus `json:"status"`
	ActiveChatCount int            `json:"active_chat_count"`
	LastActive      time.Time      `json:"last_active"`
}

// Conversation represents one client contact thread.
type Conversation struct {
	ID           string             `json:"id"`
	ClientID     string             `json:"client_id"`
	ClientName   string             `json:"client_name"`
	DisplayCode  string             `json:"display_code"` // short public identifier, distinct from ClientID
	Status       ConversationStatus `json:"status"`
	AssignedTo   string             `json:"assigned_to,omitempty"` // employee id, set only while active
	LastActivity time.Time          `json:"last_activity"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Message is one append-only chat message. Body is nil for non-text
// attachments.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           *string   `json:"body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SecureRecord holds confidential client fields. Keyed by client identity,
// shared across all of that client's conversations. Last write wins.
type SecureRecord struct {
	ClientID       string    `json:"client_id"`
	PassportNumber string    `json:"passport_number"`
	ApplicationID  string    `json:"application_id"`
	Notes          string    `json:"notes"`
	UpdatedBy      string    `json:"updated_by"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeadlineTask is one entry on the shared deadline ribbon.
type DeadlineTask struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	Note      string     `json:"note"`
	Deadline  time.Time  `json:"deadline"`
	Status    TaskStatus `json:"status"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// MissedCall is one unanswered inbound call awaiting acknowledgment.
type MissedCall struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	Status    CallStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	role TEXT NOT NULL DEFAULT 'agent',
	status TEXT NOT NULL DEFAULT 'offline',
	active_chat_count INTEGER NOT NULL DEFAULT 0,
	last_active DATETIME
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	client_name TEXT NOT NULL DEFAULT '',
	display_code TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	assigned_to TEXT,
	last_activity DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
CREATE INDEX IF NOT EXISTS idx_conversations_assigned ON conversations(assigned_to, status);
CREATE INDEX IF NOT EXISTS idx_conversations_display ON conversations(display_code);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	body TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS secure_records (
	client_id TEXT PRIMARY KEY,
	passport_number TEXT NOT NULL DEFAULT '',
	application_id TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deadline_tasks (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	deadline DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deadline_tasks_status ON deadline_tasks(status, deadline);

CREATE TABLE IF NOT EXISTS missed_calls (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'unattended',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_missed_calls_status ON missed_calls(status);
`
