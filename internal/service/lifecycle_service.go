package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/events"
	"github.com/spec-kit/fieldservice/internal/observability"
	"github.com/spec-kit/fieldservice/internal/repository"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// Actor identifies the operator performing an action.
type Actor struct {
	ID   string
	Name string
}

// LifecycleService owns the ticket status field. It is the only component
// that persists status changes; every other service routes its mutations
// through Apply.
type LifecycleService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
}

// NewLifecycleService constructs the service.
func NewLifecycleService(store repository.Store, dispatcher events.Dispatcher, metrics *observability.Metrics) *LifecycleService {
	return &LifecycleService{store: store, dispatcher: dispatcher, metrics: metrics}
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Kind      domain.TicketKind
	Urgent    bool
	ClientRef string
	Summary   string
}

// TransitionRequest bundles one intent against the state machine together
// with every side effect that must commit atomically with it.
type TransitionRequest struct {
	TenantID          string
	TicketID          string
	ExpectedVersion   int64
	Trigger           domain.Trigger
	Actor             Actor
	Detail            string
	SetKind           *domain.TicketKind
	LinkBudgetID      *string
	NewEntry          *domain.ScheduleEntry
	UpdateEntry       *domain.ScheduleEntry
	NewPendency       *domain.Pendency
	ResolvePendencyID *string
	NewBudget         *domain.Budget
	MirrorBudget      *repository.BudgetMirror
}

// CreateTicket registers a new ticket in OPEN with a per-tenant sequential
// number and its first audit event.
func (s *LifecycleService) CreateTicket(ctx context.Context, tenantID string, actor Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if input.Kind != domain.TicketKindTechnical && input.Kind != domain.TicketKindCommercial {
		return nil, util.NewValidationError("kind must be TECHNICAL or COMMERCIAL", nil)
	}
	if strings.TrimSpace(input.Summary) == "" {
		return nil, util.NewValidationError("summary required", nil)
	}

	now := time.Now()
	ticket := &domain.Ticket{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      input.Kind,
		Status:    domain.TicketStatusOpen,
		Urgent:    input.Urgent,
		ClientRef: strings.TrimSpace(input.ClientRef),
		Summary:   strings.TrimSpace(input.Summary),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	audit := domain.AuditEvent{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    domain.AuditTicketCreated,
		Detail:    ticket.Summary,
		CreatedAt: now,
	}
	if err := s.store.CreateTicket(ctx, ticket, audit); err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TenantID: tenantID,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID, Name: actor.Name},
	})
	return ticket, nil
}

// GetTicket fetches the full aggregate.
func (s *LifecycleService) GetTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return ticket, nil
}

// ListTickets returns a shallow listing.
func (s *LifecycleService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.store.ListTickets(ctx, filter)
}

// Apply validates the trigger against the ticket's current status, enforces
// the pendency invariants, and commits the transition with all its side
// effects in one atomic, version-guarded store update.
func (s *LifecycleService) Apply(ctx context.Context, req TransitionRequest) (*domain.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, req.TenantID, req.TicketID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if ticket.Version != req.ExpectedVersion {
		return nil, util.NewConcurrentModification(req.ExpectedVersion, ticket.Version)
	}

	newStatus, ok := domain.TransitionTarget(req.Trigger, ticket.Status)
	if !ok {
		return nil, util.NewInvalidTransition(string(req.Trigger), string(ticket.Status))
	}
	if req.NewPendency != nil {
		if open := ticket.OpenPendency(req.NewPendency.Kind); open != nil {
			// The pendency being resolved in this same transition does not
			// count as open anymore.
			if req.ResolvePendencyID == nil || *req.ResolvePendencyID != open.ID {
				return nil, util.NewPendencyAlreadyOpen(string(req.NewPendency.Kind))
			}
		}
	}

	now := time.Now()
	update := repository.TransitionUpdate{
		TenantID:          req.TenantID,
		TicketID:          req.TicketID,
		ExpectedVersion:   req.ExpectedVersion,
		Trigger:           req.Trigger,
		NewStatus:         newStatus,
		SetKind:           req.SetKind,
		LinkBudgetID:      req.LinkBudgetID,
		NewEntry:          req.NewEntry,
		UpdateEntry:       req.UpdateEntry,
		NewPendency:       req.NewPendency,
		ResolvePendencyID: req.ResolvePendencyID,
		NewBudget:         req.NewBudget,
		MirrorBudget:      req.MirrorBudget,
		Audit: domain.AuditEvent{
			ID:        uuid.NewString(),
			TicketID:  req.TicketID,
			ActorID:   req.Actor.ID,
			ActorName: req.Actor.Name,
			Action:    auditActionFor(req.Trigger),
			Detail:    req.Detail,
			CreatedAt: now,
		},
		OccurredAt: now,
	}

	updated, err := s.store.ApplyTransition(ctx, update)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			actual := req.ExpectedVersion
			if current, readErr := s.store.GetTicket(ctx, req.TenantID, req.TicketID); readErr == nil {
				actual = current.Version
			}
			return nil, util.NewConcurrentModification(req.ExpectedVersion, actual)
		}
		return nil, mapStoreError(err)
	}

	s.metrics.ObserveTransition(string(req.Trigger), string(ticket.Status), string(newStatus))
	if newStatus != ticket.Status {
		s.publish(ctx, events.Event{
			Type:     events.EventStatusChanged,
			TenantID: req.TenantID,
			TicketID: req.TicketID,
			Actor:    events.Actor{ID: req.Actor.ID, Name: req.Actor.Name},
			Payload: events.StatusChangedPayload{
				Trigger:   req.Trigger,
				OldStatus: ticket.Status,
				NewStatus: newStatus,
			},
		})
	}
	return updated, nil
}

// Complete handles the manual completion trigger. From FINANCIAL_PENDING it
// is legal only for invoice pendencies, which it resolves in the same update.
func (s *LifecycleService) Complete(ctx context.Context, tenantID, ticketID string, expectedVersion int64, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	req := TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: expectedVersion,
		Trigger:         domain.TriggerComplete,
		Actor:           actor,
	}
	if ticket.Status == domain.TicketStatusFinancialPending {
		open := ticket.OpenPendency(domain.PendencyKindFinancial)
		if open == nil || open.Financial == nil || open.Financial.Type != domain.FinancialTypeInvoice {
			return nil, util.NewInvalidTransition(string(domain.TriggerComplete), string(ticket.Status))
		}
		req.ResolvePendencyID = &open.ID
		req.Detail = "invoice pendency settled"
	}
	return s.Apply(ctx, req)
}

// Cancel cancels the ticket from any non-terminal status.
func (s *LifecycleService) Cancel(ctx context.Context, tenantID, ticketID string, expectedVersion int64, actor Actor, reason string) (*domain.Ticket, error) {
	return s.Apply(ctx, TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: expectedVersion,
		Trigger:         domain.TriggerCancel,
		Actor:           actor,
		Detail:          reason,
	})
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func auditActionFor(trigger domain.Trigger) domain.AuditAction {
	switch trigger {
	case domain.TriggerEntryScheduled, domain.TriggerEntryAdded,
		domain.TriggerExecutionScheduled, domain.TriggerReturnScheduled:
		return domain.AuditEntryScheduled
	case domain.TriggerEntryStarted:
		return domain.AuditEntryStarted
	case domain.TriggerEntryCancelled:
		return domain.AuditEntryCancelled
	case domain.TriggerEntryFinalizedClean, domain.TriggerTechnicalPendency, domain.TriggerFinancialPendency:
		return domain.AuditEntryFinalized
	case domain.TriggerBudgetDrafted:
		return domain.AuditBudgetDrafted
	case domain.TriggerBudgetSent:
		return domain.AuditBudgetSent
	case domain.TriggerBudgetApproved:
		return domain.AuditBudgetApproved
	case domain.TriggerBudgetRejected, domain.TriggerBudgetRejectedReturn:
		return domain.AuditBudgetRejected
	case domain.TriggerPendencyResolved:
		return domain.AuditPendencyResolved
	case domain.TriggerComplete:
		return domain.AuditTicketCompleted
	case domain.TriggerCancel:
		return domain.AuditTicketCancelled
	}
	return domain.AuditAction(strings.ToUpper(string(trigger)))
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrTicketNotFound):
		return util.NewNotFound("ticket", nil)
	case errors.Is(err, repository.ErrEntryNotFound):
		return util.NewNotFound("schedule entry", nil)
	case errors.Is(err, repository.ErrPendencyNotFound):
		return util.NewNotFound("pendency", nil)
	case errors.Is(err, repository.ErrBudgetNotFound):
		return util.NewNotFound("budget", nil)
	case errors.Is(err, repository.ErrActivityTypeNotFound):
		return util.NewNotFound("activity type", nil)
	}
	return err
}
