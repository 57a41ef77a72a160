// Package testutil provides an in-memory implementation of the repository
// Store contract for service and handler tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/repository"
)

// ErrAuditInjected is returned by ApplyTransition when FailAuditAppend is
// set, simulating an audit write failure after the status update was staged.
var ErrAuditInjected = errors.New("injected audit append failure")

// MemStore keeps the full ticket aggregate in memory behind a mutex. It
// honors the same atomicity and version rules as the postgres store: a
// transition either commits every side effect or leaves the ticket untouched.
type MemStore struct {
	mu            sync.Mutex
	tickets       map[string]*domain.Ticket
	activityTypes map[string]*domain.ActivityType
	budgets       map[string]*domain.Budget
	numbers       map[string]int64

	// FailAuditAppend makes the next ApplyTransition fail right before the
	// audit append would commit, without persisting anything.
	FailAuditAppend bool
}

// NewMemStore builds an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		tickets:       make(map[string]*domain.Ticket),
		activityTypes: make(map[string]*domain.ActivityType),
		budgets:       make(map[string]*domain.Budget),
		numbers:       make(map[string]int64),
	}
}

func ticketKey(tenantID, ticketID string) string {
	return tenantID + "/" + ticketID
}

func (s *MemStore) CreateTicket(ctx context.Context, ticket *domain.Ticket, audit domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.numbers[ticket.TenantID]++
	ticket.Number = s.numbers[ticket.TenantID]

	stored := copyTicket(ticket)
	stored.AuditTrail = append(stored.AuditTrail, audit)
	s.tickets[ticketKey(ticket.TenantID, ticket.ID)] = stored
	ticket.AuditTrail = append(ticket.AuditTrail, audit)
	return nil
}

func (s *MemStore) GetTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tickets[ticketKey(tenantID, ticketID)]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return copyTicket(stored), nil
}

func (s *MemStore) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Ticket
	for _, stored := range s.tickets {
		if stored.TenantID != filter.TenantID {
			continue
		}
		if filter.Kind != nil && stored.Kind != *filter.Kind {
			continue
		}
		if filter.Urgent != nil && stored.Urgent != *filter.Urgent {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, stored.Status) {
			continue
		}
		result = append(result, *copyTicket(stored))
	}
	return result, nil
}

func (s *MemStore) ApplyTransition(ctx context.Context, update repository.TransitionUpdate) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tickets[ticketKey(update.TenantID, update.TicketID)]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	if stored.Version != update.ExpectedVersion {
		return nil, repository.ErrVersionConflict
	}

	// Stage the mutation on a copy so a late failure leaves the stored
	// aggregate untouched.
	next := copyTicket(stored)
	next.Status = update.NewStatus
	next.Version++
	next.UpdatedAt = update.OccurredAt
	if update.SetKind != nil {
		next.Kind = *update.SetKind
	}
	if update.LinkBudgetID != nil {
		id := *update.LinkBudgetID
		next.LinkedBudgetID = &id
	}
	if update.NewEntry != nil {
		next.Entries = append(next.Entries, *update.NewEntry)
	}
	if update.UpdateEntry != nil {
		entry := next.FindEntry(update.UpdateEntry.ID)
		if entry == nil {
			return nil, repository.ErrEntryNotFound
		}
		entry.Status = update.UpdateEntry.Status
		entry.Outcome = update.UpdateEntry.Outcome
		entry.FinalizedAt = update.UpdateEntry.FinalizedAt
		entry.ScheduledAt = update.UpdateEntry.ScheduledAt
	}
	if update.NewPendency != nil {
		next.Pendencies = append(next.Pendencies, *update.NewPendency)
	}
	if update.ResolvePendencyID != nil {
		pendency := next.FindPendency(*update.ResolvePendencyID)
		if pendency == nil {
			return nil, repository.ErrPendencyNotFound
		}
		if !pendency.Resolved {
			pendency.Resolved = true
			at := update.OccurredAt
			pendency.ResolvedAt = &at
		}
	}
	var created *domain.Budget
	if update.NewBudget != nil {
		staged := *update.NewBudget
		created = &staged
	}
	var mirrored *domain.Budget
	if update.MirrorBudget != nil {
		budget, ok := s.budgets[update.TenantID+"/"+update.MirrorBudget.BudgetID]
		if !ok {
			return nil, repository.ErrBudgetNotFound
		}
		staged := *budget
		staged.Status = update.MirrorBudget.Status
		staged.StatusSetAt = update.OccurredAt
		mirrored = &staged
	}

	if s.FailAuditAppend {
		s.FailAuditAppend = false
		return nil, ErrAuditInjected
	}
	next.AuditTrail = append(next.AuditTrail, update.Audit)

	if created != nil {
		s.budgets[update.TenantID+"/"+created.ID] = created
	}
	if mirrored != nil {
		s.budgets[update.TenantID+"/"+mirrored.ID] = mirrored
	}
	s.tickets[ticketKey(update.TenantID, update.TicketID)] = next
	return copyTicket(next), nil
}

func (s *MemStore) GetOrCreateActivityType(ctx context.Context, tenantID, name string) (*domain.ActivityType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, activity := range s.activityTypes {
		if activity.TenantID == tenantID && strings.ToLower(activity.Name) == normalized {
			dup := *activity
			return &dup, nil
		}
	}
	activity := &domain.ActivityType{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now(),
	}
	s.activityTypes[activity.ID] = activity
	dup := *activity
	return &dup, nil
}

func (s *MemStore) GetActivityType(ctx context.Context, tenantID, id string) (*domain.ActivityType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, ok := s.activityTypes[id]
	if !ok || activity.TenantID != tenantID {
		return nil, repository.ErrActivityTypeNotFound
	}
	dup := *activity
	return &dup, nil
}

// BudgetCount reports how many budget rows the store holds, across tenants.
func (s *MemStore) BudgetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.budgets)
}

func (s *MemStore) GetBudget(ctx context.Context, tenantID, id string) (*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget, ok := s.budgets[tenantID+"/"+id]
	if !ok {
		return nil, repository.ErrBudgetNotFound
	}
	dup := *budget
	return &dup, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func copyTicket(ticket *domain.Ticket) *domain.Ticket {
	dup := *ticket
	if ticket.LinkedBudgetID != nil {
		id := *ticket.LinkedBudgetID
		dup.LinkedBudgetID = &id
	}
	dup.Entries = append([]domain.ScheduleEntry(nil), ticket.Entries...)
	for i := range dup.Entries {
		dup.Entries[i].Technicians = append([]domain.Technician(nil), ticket.Entries[i].Technicians...)
	}
	dup.Pendencies = append([]domain.Pendency(nil), ticket.Pendencies...)
	for i := range dup.Pendencies {
		if src := ticket.Pendencies[i].Technical; src != nil {
			details := *src
			dup.Pendencies[i].Technical = &details
		}
		if src := ticket.Pendencies[i].Financial; src != nil {
			details := *src
			dup.Pendencies[i].Financial = &details
		}
		if src := ticket.Pendencies[i].Return; src != nil {
			details := *src
			dup.Pendencies[i].Return = &details
		}
	}
	dup.AuditTrail = append([]domain.AuditEvent(nil), ticket.AuditTrail...)
	return &dup
}
