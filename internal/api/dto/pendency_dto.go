package dto

import (
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
)

// PendencyResponse flattens the pendency variant for transport; only the
// fields of the active kind are populated.
type PendencyResponse struct {
	ID                 string                        `json:"id"`
	Kind               domain.PendencyKind           `json:"kind"`
	Description        string                        `json:"description,omitempty"`
	FinancialType      *domain.FinancialPendencyType `json:"financial_type,omitempty"`
	EstimatedAmount    *float64                      `json:"estimated_amount,omitempty"`
	PartsRemoved       bool                          `json:"parts_removed,omitempty"`
	PartsLocation      string                        `json:"parts_location,omitempty"`
	RejectionReason    string                        `json:"rejection_reason,omitempty"`
	ReturnInstructions string                        `json:"return_instructions,omitempty"`
	OriginEntryID      *string                       `json:"origin_entry_id,omitempty"`
	Resolved           bool                          `json:"resolved"`
	CreatedAt          time.Time                     `json:"created_at"`
	ResolvedAt         *time.Time                    `json:"resolved_at,omitempty"`
}

// NewPendencyResponse maps a domain pendency.
func NewPendencyResponse(pendency *domain.Pendency) PendencyResponse {
	resp := PendencyResponse{
		ID:            pendency.ID,
		Kind:          pendency.Kind,
		OriginEntryID: pendency.OriginEntryID,
		Resolved:      pendency.Resolved,
		CreatedAt:     pendency.CreatedAt,
		ResolvedAt:    pendency.ResolvedAt,
	}
	switch pendency.Kind {
	case domain.PendencyKindTechnical:
		if pendency.Technical != nil {
			resp.Description = pendency.Technical.Description
		}
	case domain.PendencyKindFinancial:
		if pendency.Financial != nil {
			finType := pendency.Financial.Type
			resp.FinancialType = &finType
			resp.Description = pendency.Financial.Description
			resp.EstimatedAmount = pendency.Financial.EstimatedAmount
			resp.PartsRemoved = pendency.Financial.PartsRemoved
			resp.PartsLocation = pendency.Financial.PartsLocation
		}
	case domain.PendencyKindReturn:
		if pendency.Return != nil {
			resp.RejectionReason = pendency.Return.RejectionReason
			resp.ReturnInstructions = pendency.Return.ReturnInstructions
			resp.PartsLocation = pendency.Return.PartsLocation
		}
	}
	return resp
}
