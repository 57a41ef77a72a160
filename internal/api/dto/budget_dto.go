package dto

import (
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
)

// CreateBudgetRequest payload for POST /tickets/:id/budget.
type CreateBudgetRequest struct {
	Version    int64     `json:"version"`
	PendencyID string    `json:"pendency_id"`
	Title      string    `json:"title"`
	ValidUntil time.Time `json:"valid_until"`
}

// RejectBudgetRequest payload for POST /tickets/:id/budget/reject.
type RejectBudgetRequest struct {
	Version            int64  `json:"version"`
	Reason             string `json:"reason"`
	EquipmentToReturn  bool   `json:"equipment_to_return"`
	ReturnInstructions string `json:"return_instructions"`
}

// BudgetResponse is the tracked slice of the external budget record.
type BudgetResponse struct {
	ID          string              `json:"id"`
	TicketID    string              `json:"ticket_id"`
	PendencyID  string              `json:"pendency_id"`
	Title       string              `json:"title"`
	ValidUntil  time.Time           `json:"valid_until"`
	Status      domain.BudgetStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StatusSetAt time.Time           `json:"status_set_at"`
}

// NewBudgetResponse maps a domain budget.
func NewBudgetResponse(budget *domain.Budget) BudgetResponse {
	return BudgetResponse{
		ID:          budget.ID,
		TicketID:    budget.TicketID,
		PendencyID:  budget.PendencyID,
		Title:       budget.Title,
		ValidUntil:  budget.ValidUntil,
		Status:      budget.Status,
		CreatedAt:   budget.CreatedAt,
		StatusSetAt: budget.StatusSetAt,
	}
}
