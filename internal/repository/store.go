package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
)

var (
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrEntryNotFound        = errors.New("schedule entry not found")
	ErrPendencyNotFound     = errors.New("pendency not found")
	ErrBudgetNotFound       = errors.New("budget not found")
	ErrActivityTypeNotFound = errors.New("activity type not found")
	ErrVersionConflict      = errors.New("ticket version conflict")
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	TenantID string
	Statuses []domain.TicketStatus
	Kind     *domain.TicketKind
	Urgent   *bool
	Limit    int
	Offset   int
}

// BudgetMirror carries the budget status write that must commit together
// with a ticket transition.
type BudgetMirror struct {
	BudgetID string
	Status   domain.BudgetStatus
}

// TransitionUpdate describes one atomic ticket mutation. The store must
// persist every populated side effect together with the status, version and
// audit append, or nothing at all, and must reject the update with
// ErrVersionConflict when ExpectedVersion is stale.
type TransitionUpdate struct {
	TenantID          string
	TicketID          string
	ExpectedVersion   int64
	Trigger           domain.Trigger
	NewStatus         domain.TicketStatus
	SetKind           *domain.TicketKind
	LinkBudgetID      *string
	NewEntry          *domain.ScheduleEntry
	UpdateEntry       *domain.ScheduleEntry
	NewPendency       *domain.Pendency
	ResolvePendencyID *string
	NewBudget         *domain.Budget
	MirrorBudget      *BudgetMirror
	Audit             domain.AuditEvent
	OccurredAt        time.Time
}

// Store is the persistence boundary for the work-order core: a document-style
// repository keyed by tenant and ticket id, with schedule entries, pendencies
// and audit events nested under the ticket.
type Store interface {
	CreateTicket(ctx context.Context, ticket *domain.Ticket, audit domain.AuditEvent) error
	GetTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ApplyTransition(ctx context.Context, update TransitionUpdate) (*domain.Ticket, error)

	GetOrCreateActivityType(ctx context.Context, tenantID, name string) (*domain.ActivityType, error)
	GetActivityType(ctx context.Context, tenantID, id string) (*domain.ActivityType, error)

	GetBudget(ctx context.Context, tenantID, id string) (*domain.Budget, error)
}
