package events

import (
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventStatusChanged   EventType = "ticket_status_changed"
	EventEntryScheduled  EventType = "entry_scheduled"
	EventEntryFinalized  EventType = "entry_finalized"
	EventBudgetDrafted   EventType = "budget_drafted"
	EventBudgetDecided   EventType = "budget_decided"
	EventReturnRequested EventType = "return_requested"
)

// Actor identifies the operator behind an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	Trigger   domain.Trigger      `json:"trigger"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// EntryScheduledPayload payload. Recipients are the assigned technicians.
type EntryScheduledPayload struct {
	EntryID      string              `json:"entry_id"`
	ScheduledAt  *time.Time          `json:"scheduled_at,omitempty"`
	Recipients   []domain.Technician `json:"recipients"`
	ActivityName string              `json:"activity_name"`
	Summary      string              `json:"summary"`
	ReturnVisit  bool                `json:"return_visit"`
}

// EntryFinalizedPayload payload.
type EntryFinalizedPayload struct {
	EntryID string                     `json:"entry_id"`
	Outcome domain.FinalizationOutcome `json:"outcome"`
}

// BudgetDecidedPayload payload for approval or rejection.
type BudgetDecidedPayload struct {
	BudgetID string              `json:"budget_id"`
	Status   domain.BudgetStatus `json:"status"`
	Reason   string              `json:"reason,omitempty"`
}
