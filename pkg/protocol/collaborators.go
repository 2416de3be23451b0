package protocol

import (
	"context"
	"time"
)

// RecordKind names the business record kinds the create_* actions produce.
type RecordKind string

const (
	RecordProject      RecordKind = "project"
	RecordServiceOrder RecordKind = "service_order"
	RecordInvoice      RecordKind = "invoice"
	RecordTask         RecordKind = "task"
	RecordChecklist    RecordKind = "checklist"
	RecordNote         RecordKind = "note"
)

// NewRecord is the shape handed to the record store when creating a record.
// SourceDocumentID links the created record back to the triggering document.
type NewRecord struct {
	Kind             RecordKind
	Title            string
	Description      string
	Status           string
	DueAt            *time.Time
	CustomerID       string
	ProjectID        string
	SourceDocumentID string
}

// RecordStore is the host application's record layer. Every mutating call
// receives an idempotency key (the execution step id); a repeated call with
// the same key must return the original result without a second side effect.
type RecordStore interface {
	CreateRecord(ctx context.Context, tenantID, idempotencyKey string, record NewRecord) (string, error)
	UpdateDocumentStatus(ctx context.Context, tenantID, idempotencyKey, documentID, status string) error
	UpdateTicketStatus(ctx context.Context, tenantID, idempotencyKey, ticketID, status string) error
	AssignDocument(ctx context.Context, tenantID, idempotencyKey, documentID, userID string) error
	AssignTicket(ctx context.Context, tenantID, idempotencyKey, ticketID, userID string) error
}

// OutboundMail is handed to the mail collaborator. Helpdesk mail is routed
// through the tenant's helpdesk mailbox instead of the default sender.
type OutboundMail struct {
	To       string
	Subject  string
	Body     string
	Helpdesk bool
}

// Mailer delivers mail on behalf of the engine, deduplicating on the
// idempotency key.
type Mailer interface {
	Send(ctx context.Context, tenantID, idempotencyKey string, mail OutboundMail) error
}

// UserDirectory resolves round-robin assignees. Pool is an opaque cursor name
// so that assign_user and assign_ticket rotate independently.
type UserDirectory interface {
	NextAssignee(ctx context.Context, tenantID, pool string) (string, error)
}
