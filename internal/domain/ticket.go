package domain

import "time"

// TicketStatus enumerates lifecycle states for work-order tickets.
type TicketStatus string

const (
	TicketStatusOpen             TicketStatus = "OPEN"
	TicketStatusInProgress       TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted        TicketStatus = "COMPLETED"
	TicketStatusCancelled        TicketStatus = "CANCELLED"
	TicketStatusTechnicalPending TicketStatus = "TECHNICAL_PENDING"
	TicketStatusFinancialPending TicketStatus = "FINANCIAL_PENDING"
	TicketStatusQuoteDrafting    TicketStatus = "QUOTE_DRAFTING"
	TicketStatusQuoteSent        TicketStatus = "QUOTE_SENT"
	TicketStatusQuoteApproved    TicketStatus = "QUOTE_APPROVED"
	TicketStatusQuoteRejected    TicketStatus = "QUOTE_REJECTED"
	TicketStatusAwaitingReturn   TicketStatus = "AWAITING_RETURN"
)

// TicketKind separates technical execution tickets from commercial quoting
// ones. A commercial ticket flips back to technical when a rejected budget
// leaves equipment to return.
type TicketKind string

const (
	TicketKindTechnical  TicketKind = "TECHNICAL"
	TicketKindCommercial TicketKind = "COMMERCIAL"
)

// Ticket is the root aggregate for a unit of service work. Status, version
// and the nested collections are mutated only through lifecycle transitions.
type Ticket struct {
	ID             string
	TenantID       string
	Number         int64
	Kind           TicketKind
	Status         TicketStatus
	Urgent         bool
	ClientRef      string
	Summary        string
	LinkedBudgetID *string
	Version        int64
	Entries        []ScheduleEntry
	Pendencies     []Pendency
	AuditTrail     []AuditEvent
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal reports whether no further transition may leave the status.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

var validStatuses = map[TicketStatus]struct{}{
	TicketStatusOpen:             {},
	TicketStatusInProgress:       {},
	TicketStatusCompleted:        {},
	TicketStatusCancelled:        {},
	TicketStatusTechnicalPending: {},
	TicketStatusFinancialPending: {},
	TicketStatusQuoteDrafting:    {},
	TicketStatusQuoteSent:        {},
	TicketStatusQuoteApproved:    {},
	TicketStatusQuoteRejected:    {},
	TicketStatusAwaitingReturn:   {},
}

// IsValid reports whether the status is one of the declared states.
func (s TicketStatus) IsValid() bool {
	_, ok := validStatuses[s]
	return ok
}

// OpenPendency returns the unresolved pendency of the given kind, if any.
func (t *Ticket) OpenPendency(kind PendencyKind) *Pendency {
	for i := range t.Pendencies {
		if t.Pendencies[i].Kind == kind && !t.Pendencies[i].Resolved {
			return &t.Pendencies[i]
		}
	}
	return nil
}

// FindPendency returns the pendency with the given id, if present.
func (t *Ticket) FindPendency(id string) *Pendency {
	for i := range t.Pendencies {
		if t.Pendencies[i].ID == id {
			return &t.Pendencies[i]
		}
	}
	return nil
}

// FindEntry returns the schedule entry with the given id, if present.
func (t *Ticket) FindEntry(id string) *ScheduleEntry {
	for i := range t.Entries {
		if t.Entries[i].ID == id {
			return &t.Entries[i]
		}
	}
	return nil
}
