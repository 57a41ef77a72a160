package domain

import "time"

// AuditAction codes the kind of change an audit event records.
type AuditAction string

const (
	AuditTicketCreated    AuditAction = "TICKET_CREATED"
	AuditEntryScheduled   AuditAction = "ENTRY_SCHEDULED"
	AuditEntryStarted     AuditAction = "ENTRY_STARTED"
	AuditEntryCancelled   AuditAction = "ENTRY_CANCELLED"
	AuditEntryFinalized   AuditAction = "ENTRY_FINALIZED"
	AuditBudgetDrafted    AuditAction = "BUDGET_DRAFTED"
	AuditBudgetSent       AuditAction = "BUDGET_SENT"
	AuditBudgetApproved   AuditAction = "BUDGET_APPROVED"
	AuditBudgetRejected   AuditAction = "BUDGET_REJECTED"
	AuditPendencyResolved AuditAction = "PENDENCY_RESOLVED"
	AuditTicketCompleted  AuditAction = "TICKET_COMPLETED"
	AuditTicketCancelled  AuditAction = "TICKET_CANCELLED"
)

// AuditEvent is one immutable history record appended to a ticket. Events
// are never updated or deleted.
type AuditEvent struct {
	ID        string
	TicketID  string
	ActorID   string
	ActorName string
	Action    AuditAction
	Detail    string
	CreatedAt time.Time
}
