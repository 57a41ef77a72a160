package domain

import "time"

// PendencyKind tags the variant carried by a Pendency.
type PendencyKind string

const (
	PendencyKindTechnical PendencyKind = "TECHNICAL"
	PendencyKindFinancial PendencyKind = "FINANCIAL"
	PendencyKindReturn    PendencyKind = "RETURN"
)

// FinancialPendencyType distinguishes a direct invoice from a formal quote.
type FinancialPendencyType string

const (
	FinancialTypeInvoice FinancialPendencyType = "INVOICE"
	FinancialTypeQuote   FinancialPendencyType = "QUOTE"
)

// TechnicalDetails is the payload of a technical pendency: work that could
// not be completed, with no billing implication.
type TechnicalDetails struct {
	Description string
}

// FinancialDetails is the payload of a financial pendency: a billing or
// quoting need arising from a visit.
type FinancialDetails struct {
	Type            FinancialPendencyType
	Description     string
	EstimatedAmount *float64
	PartsRemoved    bool
	PartsLocation   string
}

// ReturnDetails is the payload of a return pendency, opened when a rejected
// budget leaves removed equipment with the service provider.
type ReturnDetails struct {
	RejectionReason    string
	ReturnInstructions string
	PartsLocation      string
}

// Pendency is a tagged variant: exactly the payload matching Kind is set.
// Instances are built through the New*Pendency constructors so an
// inconsistent combination is not constructible.
type Pendency struct {
	ID            string
	TicketID      string
	Kind          PendencyKind
	Technical     *TechnicalDetails
	Financial     *FinancialDetails
	Return        *ReturnDetails
	OriginEntryID *string
	Resolved      bool
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// NewTechnicalPendency builds an open technical pendency.
func NewTechnicalPendency(ticketID, originEntryID, description string, now time.Time) Pendency {
	return Pendency{
		TicketID:      ticketID,
		Kind:          PendencyKindTechnical,
		Technical:     &TechnicalDetails{Description: description},
		OriginEntryID: &originEntryID,
		CreatedAt:     now,
	}
}

// NewFinancialPendency builds an open financial pendency.
func NewFinancialPendency(ticketID, originEntryID string, details FinancialDetails, now time.Time) Pendency {
	return Pendency{
		TicketID:      ticketID,
		Kind:          PendencyKindFinancial,
		Financial:     &details,
		OriginEntryID: &originEntryID,
		CreatedAt:     now,
	}
}

// NewReturnPendency builds an open return pendency, copying the parts
// location from the financial pendency that originated the rejected budget.
func NewReturnPendency(ticketID string, origin *Pendency, reason, instructions string, now time.Time) Pendency {
	details := ReturnDetails{
		RejectionReason:    reason,
		ReturnInstructions: instructions,
	}
	if origin != nil && origin.Financial != nil {
		details.PartsLocation = origin.Financial.PartsLocation
	}
	var originEntry *string
	if origin != nil {
		originEntry = origin.OriginEntryID
	}
	return Pendency{
		TicketID:      ticketID,
		Kind:          PendencyKindReturn,
		Return:        &details,
		OriginEntryID: originEntry,
		CreatedAt:     now,
	}
}
