package dto

import (
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
)

// CreateTicketRequest payload for POST /tickets.
type CreateTicketRequest struct {
	Kind      domain.TicketKind `json:"kind"`
	Urgent    bool              `json:"urgent"`
	ClientRef string            `json:"client_ref"`
	Summary   string            `json:"summary"`
}

// VersionRequest carries the caller's expected ticket version for operations
// with no other payload.
type VersionRequest struct {
	Version int64 `json:"version"`
}

// CancelTicketRequest payload for POST /tickets/:id/cancel.
type CancelTicketRequest struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason"`
}

// TicketSummary is the shallow ticket representation used in listings.
type TicketSummary struct {
	ID             string              `json:"id"`
	Number         int64               `json:"number"`
	Kind           domain.TicketKind   `json:"kind"`
	Status         domain.TicketStatus `json:"status"`
	Urgent         bool                `json:"urgent"`
	ClientRef      string              `json:"client_ref,omitempty"`
	Summary        string              `json:"summary"`
	LinkedBudgetID *string             `json:"linked_budget_id,omitempty"`
	Version        int64               `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// TicketDetail is the full aggregate representation.
type TicketDetail struct {
	TicketSummary
	Entries    []EntryResponse    `json:"entries"`
	Pendencies []PendencyResponse `json:"pendencies"`
	AuditTrail []AuditResponse    `json:"audit_trail"`
}

// AuditResponse is one history record.
type AuditResponse struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTicketSummary maps a domain ticket.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:             ticket.ID,
		Number:         ticket.Number,
		Kind:           ticket.Kind,
		Status:         ticket.Status,
		Urgent:         ticket.Urgent,
		ClientRef:      ticket.ClientRef,
		Summary:        ticket.Summary,
		LinkedBudgetID: ticket.LinkedBudgetID,
		Version:        ticket.Version,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

// NewTicketDetail maps a domain ticket with its nested collections.
func NewTicketDetail(ticket *domain.Ticket) TicketDetail {
	detail := TicketDetail{
		TicketSummary: NewTicketSummary(ticket),
		Entries:       make([]EntryResponse, 0, len(ticket.Entries)),
		Pendencies:    make([]PendencyResponse, 0, len(ticket.Pendencies)),
		AuditTrail:    make([]AuditResponse, 0, len(ticket.AuditTrail)),
	}
	for i := range ticket.Entries {
		detail.Entries = append(detail.Entries, NewEntryResponse(&ticket.Entries[i]))
	}
	for i := range ticket.Pendencies {
		detail.Pendencies = append(detail.Pendencies, NewPendencyResponse(&ticket.Pendencies[i]))
	}
	for _, event := range ticket.AuditTrail {
		detail.AuditTrail = append(detail.AuditTrail, AuditResponse{
			ID:        event.ID,
			ActorID:   event.ActorID,
			ActorName: event.ActorName,
			Action:    string(event.Action),
			Detail:    event.Detail,
			CreatedAt: event.CreatedAt,
		})
	}
	return detail
}
