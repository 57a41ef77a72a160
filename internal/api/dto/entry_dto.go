package dto

import (
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
)

// TechnicianInput identifies one assigned technician.
type TechnicianInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateEntryRequest payload for POST /tickets/:id/entries.
type CreateEntryRequest struct {
	Version         int64             `json:"version"`
	ScheduledAt     *time.Time        `json:"scheduled_at"`
	Technicians     []TechnicianInput `json:"technicians"`
	ActivityTypeID  string            `json:"activity_type_id"`
	NewActivityName string            `json:"new_activity_name"`
	Observations    string            `json:"observations"`
}

// FinancialPayload mirrors the financial pendency fields a finalization may
// carry.
type FinancialPayload struct {
	Type            domain.FinancialPendencyType `json:"type"`
	Description     string                       `json:"description"`
	EstimatedAmount *float64                     `json:"estimated_amount"`
	PartsRemoved    bool                         `json:"parts_removed"`
	PartsLocation   string                       `json:"parts_location"`
}

// TechnicalPayload mirrors the technical pendency fields.
type TechnicalPayload struct {
	Description string `json:"description"`
}

// FinalizeEntryRequest payload for POST .../entries/:entryId/finalize.
type FinalizeEntryRequest struct {
	Version   int64                      `json:"version"`
	Outcome   domain.FinalizationOutcome `json:"outcome"`
	Technical *TechnicalPayload          `json:"technical"`
	Financial *FinancialPayload          `json:"financial"`
}

// PublicSubmitRequest payload for the public form endpoint.
type PublicSubmitRequest struct {
	Token     string                     `json:"token"`
	Outcome   domain.FinalizationOutcome `json:"outcome"`
	Technical *TechnicalPayload          `json:"technical"`
	Financial *FinancialPayload          `json:"financial"`
}

// EntryResponse is the schedule entry representation.
type EntryResponse struct {
	ID            string                     `json:"id"`
	TicketID      string                     `json:"ticket_id"`
	ScheduledAt   *time.Time                 `json:"scheduled_at,omitempty"`
	Technicians   []TechnicianInput          `json:"technicians"`
	ActivityName  string                     `json:"activity_name"`
	Observations  string                     `json:"observations,omitempty"`
	Status        domain.EntryStatus         `json:"status"`
	Outcome       domain.FinalizationOutcome `json:"outcome"`
	IsReturnVisit bool                       `json:"is_return_visit"`
	OriginEntryID *string                    `json:"origin_entry_id,omitempty"`
	PublicToken   string                     `json:"public_token,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	FinalizedAt   *time.Time                 `json:"finalized_at,omitempty"`
}

// EntryResult wraps an entry with the warnings collected while creating it.
type EntryResult struct {
	Entry    EntryResponse `json:"entry"`
	Warnings []string      `json:"warnings,omitempty"`
}

// NewEntryResponse maps a domain entry.
func NewEntryResponse(entry *domain.ScheduleEntry) EntryResponse {
	technicians := make([]TechnicianInput, 0, len(entry.Technicians))
	for _, tech := range entry.Technicians {
		technicians = append(technicians, TechnicianInput{ID: tech.ID, Name: tech.Name})
	}
	return EntryResponse{
		ID:            entry.ID,
		TicketID:      entry.TicketID,
		ScheduledAt:   entry.ScheduledAt,
		Technicians:   technicians,
		ActivityName:  entry.ActivityName,
		Observations:  entry.Observations,
		Status:        entry.Status,
		Outcome:       entry.Outcome,
		IsReturnVisit: entry.IsReturnVisit,
		OriginEntryID: entry.OriginEntryID,
		PublicToken:   entry.PublicToken,
		CreatedAt:     entry.CreatedAt,
		FinalizedAt:   entry.FinalizedAt,
	}
}
