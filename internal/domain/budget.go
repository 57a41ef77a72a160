package domain

import "time"

// BudgetStatus mirrors the externally-owned budget document's state. The
// ticket workflow only ever reads and writes this field.
type BudgetStatus string

const (
	BudgetStatusDraft    BudgetStatus = "DRAFT"
	BudgetStatusSent     BudgetStatus = "SENT"
	BudgetStatusApproved BudgetStatus = "APPROVED"
	BudgetStatusRejected BudgetStatus = "REJECTED"
)

// Budget is the slice of the external budget record the core touches. Line
// items live on the budgeting side and never appear here.
type Budget struct {
	ID          string
	TenantID    string
	TicketID    string
	PendencyID  string
	Title       string
	ValidUntil  time.Time
	Status      BudgetStatus
	CreatedAt   time.Time
	StatusSetAt time.Time
}
