package domain

// Trigger names an operator intent against the ticket state machine. Every
// ticket mutation, including sub-state changes that keep the status, is
// applied under one of these.
type Trigger string

const (
	TriggerEntryScheduled       Trigger = "entry_scheduled"
	TriggerEntryAdded           Trigger = "entry_added"
	TriggerExecutionScheduled   Trigger = "execution_scheduled"
	TriggerReturnScheduled      Trigger = "return_scheduled"
	TriggerEntryStarted         Trigger = "entry_started"
	TriggerEntryCancelled       Trigger = "entry_cancelled"
	TriggerEntryFinalizedClean  Trigger = "entry_finalized_clean"
	TriggerTechnicalPendency    Trigger = "technical_pendency"
	TriggerFinancialPendency    Trigger = "financial_pendency"
	TriggerBudgetDrafted        Trigger = "budget_drafted"
	TriggerBudgetSent           Trigger = "budget_sent"
	TriggerBudgetApproved       Trigger = "budget_approved"
	TriggerBudgetRejected       Trigger = "budget_rejected"
	TriggerBudgetRejectedReturn Trigger = "budget_rejected_return"
	TriggerPendencyResolved     Trigger = "pendency_resolved"
	TriggerComplete             Trigger = "complete"
	TriggerCancel               Trigger = "cancel"
)

var nonTerminalStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusTechnicalPending,
	TicketStatusFinancialPending,
	TicketStatusQuoteDrafting,
	TicketStatusQuoteSent,
	TicketStatusQuoteApproved,
	TicketStatusQuoteRejected,
	TicketStatusAwaitingReturn,
}

// allowedFrom lists the statuses each trigger may legally fire from.
var allowedFrom = map[Trigger][]TicketStatus{
	TriggerEntryScheduled:       {TicketStatusOpen},
	TriggerEntryAdded:           {TicketStatusInProgress},
	TriggerExecutionScheduled:   {TicketStatusQuoteApproved},
	TriggerReturnScheduled:      {TicketStatusAwaitingReturn},
	TriggerEntryStarted:         {TicketStatusInProgress},
	TriggerEntryCancelled:       {TicketStatusInProgress},
	TriggerEntryFinalizedClean:  {TicketStatusInProgress},
	TriggerTechnicalPendency:    {TicketStatusInProgress},
	TriggerFinancialPendency:    {TicketStatusInProgress},
	TriggerBudgetDrafted:        {TicketStatusFinancialPending},
	TriggerBudgetSent:           {TicketStatusQuoteDrafting},
	TriggerBudgetApproved:       {TicketStatusQuoteSent},
	TriggerBudgetRejected:       {TicketStatusQuoteSent},
	TriggerBudgetRejectedReturn: {TicketStatusQuoteSent},
	TriggerPendencyResolved:     nonTerminalStatuses,
	TriggerComplete:             {TicketStatusInProgress, TicketStatusFinancialPending, TicketStatusQuoteApproved},
	TriggerCancel:               nonTerminalStatuses,
}

// targets maps each trigger to its resulting status. Triggers absent here
// are self-loops: the ticket keeps its current status.
var targets = map[Trigger]TicketStatus{
	TriggerEntryScheduled:       TicketStatusInProgress,
	TriggerExecutionScheduled:   TicketStatusInProgress,
	TriggerReturnScheduled:      TicketStatusInProgress,
	TriggerTechnicalPendency:    TicketStatusTechnicalPending,
	TriggerFinancialPendency:    TicketStatusFinancialPending,
	TriggerBudgetDrafted:        TicketStatusQuoteDrafting,
	TriggerBudgetSent:           TicketStatusQuoteSent,
	TriggerBudgetApproved:       TicketStatusQuoteApproved,
	TriggerBudgetRejected:       TicketStatusQuoteRejected,
	TriggerBudgetRejectedReturn: TicketStatusAwaitingReturn,
	TriggerComplete:             TicketStatusCompleted,
	TriggerCancel:               TicketStatusCancelled,
}

// ValidTransition reports whether trigger may fire from the given status.
func ValidTransition(trigger Trigger, from TicketStatus) bool {
	allowed, ok := allowedFrom[trigger]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// TransitionTarget resolves the status that firing trigger from the given
// status produces. The second return is false when the transition is illegal.
func TransitionTarget(trigger Trigger, from TicketStatus) (TicketStatus, bool) {
	if !ValidTransition(trigger, from) {
		return "", false
	}
	if to, ok := targets[trigger]; ok {
		return to, true
	}
	return from, true
}
