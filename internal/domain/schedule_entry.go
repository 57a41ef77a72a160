package domain

import "time"

// EntryStatus is the sub-state of a single visit, independent of the parent
// ticket status.
type EntryStatus string

const (
	EntryStatusScheduled  EntryStatus = "SCHEDULED"
	EntryStatusInProgress EntryStatus = "IN_PROGRESS"
	EntryStatusDone       EntryStatus = "DONE"
	EntryStatusCancelled  EntryStatus = "CANCELLED"
)

// FinalizationOutcome is recorded when an entry reaches DONE.
type FinalizationOutcome string

const (
	OutcomeNone              FinalizationOutcome = "NONE"
	OutcomeTechnicalPendency FinalizationOutcome = "TECHNICAL_PENDENCY"
	OutcomeFinancialPendency FinalizationOutcome = "FINANCIAL_PENDENCY"
)

// Technician is an immutable snapshot of an assigned technician taken at
// entry creation time.
type Technician struct {
	ID   string
	Name string
}

// ScheduleEntry is one planned or executed visit nested under a ticket.
// ScheduledAt is nil only for return entries still awaiting a date.
type ScheduleEntry struct {
	ID             string
	TicketID       string
	ScheduledAt    *time.Time
	Technicians    []Technician
	ActivityTypeID string
	ActivityName   string
	Observations   string
	Status         EntryStatus
	Outcome        FinalizationOutcome
	IsReturnVisit  bool
	OriginEntryID  *string
	PublicToken    string
	CreatedAt      time.Time
	FinalizedAt    *time.Time
}

// IsFinal reports whether the entry can no longer be mutated.
func (e *ScheduleEntry) IsFinal() bool {
	return e.Status == EntryStatusDone || e.Status == EntryStatusCancelled
}

// ActivityType is a tenant-defined catalog entry, created on the fly when a
// new name is supplied.
type ActivityType struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}
