// Package mocks provides in-memory collaborator fakes for tests. The fakes
// honor the idempotency-key contract: repeated calls with the same key do not
// produce a second side effect.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/jobdeck/automation/pkg/protocol"
)

// CreatedRecord captures one CreateRecord call.
type CreatedRecord struct {
	TenantID string
	Key      string
	Record   protocol.NewRecord
}

// StatusUpdate captures one status or assignment mutation.
type StatusUpdate struct {
	TenantID string
	Key      string
	TargetID string
	Value    string
	Ticket   bool
}

// RecordStore is an in-memory protocol.RecordStore. Err, when set, is
// returned by every call; FailTimes alone makes the next N CreateRecord calls
// fail with a transient error and then recover, which lets tests drive retry
// behavior.
type RecordStore struct {
	mu sync.Mutex

	Err       error
	FailTimes int

	Created       []CreatedRecord
	StatusUpdates []StatusUpdate
	Assignments   []StatusUpdate
	Calls         int

	byKey map[string]string
	next  int
}

func NewRecordStore() *RecordStore {
	return &RecordStore{byKey: make(map[string]string)}
}

// fail implements the Err/FailTimes contract. Callers hold the lock.
func (s *RecordStore) fail() error {
	s.Calls++

	if s.FailTimes > 0 {
		s.FailTimes--

		if s.Err != nil {
			return s.Err
		}

		return fmt.Errorf("record store unavailable")
	}

	return s.Err
}

func (s *RecordStore) CreateRecord(_ context.Context, tenantID, idempotencyKey string, record protocol.NewRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(); err != nil {
		return "", err
	}

	if id, seen := s.byKey[idempotencyKey]; seen {
		return id, nil
	}

	s.next++
	id := fmt.Sprintf("rec-%d", s.next)
	s.byKey[idempotencyKey] = id
	s.Created = append(s.Created, CreatedRecord{TenantID: tenantID, Key: idempotencyKey, Record: record})

	return id, nil
}

func (s *RecordStore) UpdateDocumentStatus(_ context.Context, tenantID, idempotencyKey, documentID, status string) error {
	return s.recordStatus(tenantID, idempotencyKey, documentID, status, false)
}

func (s *RecordStore) UpdateTicketStatus(_ context.Context, tenantID, idempotencyKey, ticketID, status string) error {
	return s.recordStatus(tenantID, idempotencyKey, ticketID, status, true)
}

func (s *RecordStore) recordStatus(tenantID, idempotencyKey, targetID, status string, ticket bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	if _, seen := s.byKey[idempotencyKey]; seen {
		return nil
	}

	s.byKey[idempotencyKey] = targetID
	s.StatusUpdates = append(s.StatusUpdates, StatusUpdate{
		TenantID: tenantID,
		Key:      idempotencyKey,
		TargetID: targetID,
		Value:    status,
		Ticket:   ticket,
	})

	return nil
}

func (s *RecordStore) AssignDocument(_ context.Context, tenantID, idempotencyKey, documentID, userID string) error {
	return s.recordAssignment(tenantID, idempotencyKey, documentID, userID, false)
}

func (s *RecordStore) AssignTicket(_ context.Context, tenantID, idempotencyKey, ticketID, userID string) error {
	return s.recordAssignment(tenantID, idempotencyKey, ticketID, userID, true)
}

func (s *RecordStore) recordAssignment(tenantID, idempotencyKey, targetID, userID string, ticket bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	if _, seen := s.byKey[idempotencyKey]; seen {
		return nil
	}

	s.byKey[idempotencyKey] = targetID
	s.Assignments = append(s.Assignments, StatusUpdate{
		TenantID: tenantID,
		Key:      idempotencyKey,
		TargetID: targetID,
		Value:    userID,
		Ticket:   ticket,
	})

	return nil
}

// SentMail captures one Send call.
type SentMail struct {
	TenantID string
	Key      string
	Mail     protocol.OutboundMail
}

// Mailer is an in-memory protocol.Mailer.
type Mailer struct {
	mu sync.Mutex

	Err  error
	Sent []SentMail

	byKey map[string]bool
}

func NewMailer() *Mailer {
	return &Mailer{byKey: make(map[string]bool)}
}

func (m *Mailer) Send(_ context.Context, tenantID, idempotencyKey string, mail protocol.OutboundMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	if m.byKey[idempotencyKey] {
		return nil
	}

	m.byKey[idempotencyKey] = true
	m.Sent = append(m.Sent, SentMail{TenantID: tenantID, Key: idempotencyKey, Mail: mail})

	return nil
}

// Directory is an in-memory protocol.UserDirectory rotating over Users with
// an independent cursor per pool.
type Directory struct {
	mu sync.Mutex

	Err     error
	Users   []string
	cursors map[string]int
}

func NewDirectory(users ...string) *Directory {
	return &Directory{Users: users, cursors: make(map[string]int)}
}

func (d *Directory) NextAssignee(_ context.Context, _ string, pool string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return "", d.Err
	}

	if len(d.Users) == 0 {
		return "", fmt.Errorf("no users in directory")
	}

	userID := d.Users[d.cursors[pool]%len(d.Users)]
	d.cursors[pool]++

	return userID, nil
}
