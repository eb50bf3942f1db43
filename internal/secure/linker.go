// Package secure resolves conversations to client identities and manages
// the confidential record attached to each client.
package secure

import (
	"fmt"
	"time"

	"github.com/QueueDeck/QueueDeck/internal/store"
)

// noteLimit bounds the ribbon note derived from the free-text notes field.
const noteLimit = 30

// PartialSaveError reports that the secure record was saved but the
// deadline task was not created. The two effects are not transactional;
// the caller needs to know the first one landed.
type PartialSaveError struct {
	Err error
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("secure record saved, but deadline task was not created: %v", e.Err)
}

func (e *PartialSaveError) Unwrap() error { return e.Err }

// Fields are the editable confidential fields of a secure record.
type Fields struct {
	PassportNumber string `json:"passport_number"`
	ApplicationID  string `json:"application_id"`
	Notes          string `json:"notes"`
}

// Linker loads and saves secure records addressed by conversation, keyed by
// the conversation's client identity. Independent of the chat transport.
type Linker struct {
	store *store.Store
}

func NewLinker(st *store.Store) *Linker {
	return &Linker{store: st}
}

// Load resolves the conversation's client and fetches their secure record.
// A missing record is not an error; a zero record for the client comes
// back instead.
func (l *Linker) Load(conversationID string) (*store.SecureRecord, error) {
	conv, err := l.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load secure record: %w", err)
	}
	rec, err := l.store.GetSecureRecord(conv.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load secure record: %w", err)
	}
	if rec == nil {
		return &store.SecureRecord{ClientID: conv.ClientID}, nil
	}
	return rec, nil
}

// Save upserts the client's secure record and, only when a deadline is
// supplied, additionally creates a pending DeadlineTask whose note is the
// notes field truncated to the ribbon limit. If the second effect fails
// after the first succeeded, the failure is reported as *PartialSaveError.
func (l *Linker) Save(conversationID string, fields Fields, deadline *time.Time, updatedBy string) error {
	conv, err := l.store.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("save secure record: %w", err)
	}

	rec := &store.SecureRecord{
		ClientID:       conv.ClientID,
		PassportNumber: fields.PassportNumber,
		ApplicationID:  fields.ApplicationID,
		Notes:          fields.Notes,
		UpdatedBy:      updatedBy,
	}
	if err := l.store.UpsertSecureRecord(rec); err != nil {
		return fmt.Errorf("save secure record: %w", err)
	}

	if deadline == nil {
		return nil
	}
	if _, err := l.store.CreateDeadlineTask(conv.ClientID, truncateNote(fields.Notes), *deadline, updatedBy); err != nil {
		return &PartialSaveError{Err: err}
	}
	return nil
}

func truncateNote(s string) string {
	r := []rune(s)
	if len(r) <= noteLimit {
		return s
	}
	return string(r[:noteLimit])
}
