package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/events"
	"github.com/spec-kit/fieldservice/internal/repository"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// ApprovalService manages budget creation, approval, rejection and the
// equipment-return branch. Budget line items stay on the budgeting side; only
// the status field is mirrored here, atomically with the ticket transition.
type ApprovalService struct {
	store      repository.Store
	lifecycle  *LifecycleService
	dispatcher events.Dispatcher
}

// NewApprovalService constructs the service.
func NewApprovalService(store repository.Store, lifecycle *LifecycleService, dispatcher events.Dispatcher) *ApprovalService {
	return &ApprovalService{store: store, lifecycle: lifecycle, dispatcher: dispatcher}
}

// CreateBudgetInput describes draft creation.
type CreateBudgetInput struct {
	ExpectedVersion int64
	PendencyID      string
	Title           string
	ValidUntil      time.Time
}

// RejectInput describes a rejection decision.
type RejectInput struct {
	ExpectedVersion    int64
	Reason             string
	EquipmentToReturn  bool
	ReturnInstructions string
}

// CreateBudget creates a draft budget against an open quote-type financial
// pendency and moves the ticket to QUOTE_DRAFTING.
func (s *ApprovalService) CreateBudget(ctx context.Context, tenantID, ticketID string, actor Actor, input CreateBudgetInput) (*domain.Budget, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusFinancialPending {
		return nil, util.NewInvalidTransition(string(domain.TriggerBudgetDrafted), string(ticket.Status))
	}
	pendency := ticket.FindPendency(input.PendencyID)
	if pendency == nil {
		return nil, util.NewNotFound("pendency", map[string]any{"pendency_id": input.PendencyID})
	}
	if pendency.Kind != domain.PendencyKindFinancial || pendency.Financial == nil ||
		pendency.Financial.Type != domain.FinancialTypeQuote {
		return nil, util.NewValidationError("budget requires a quote-type financial pendency", nil)
	}
	if pendency.Resolved {
		return nil, util.NewValidationError("financial pendency already resolved", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, util.NewValidationError("budget title required", nil)
	}

	now := time.Now()
	budget := &domain.Budget{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TicketID:    ticketID,
		PendencyID:  pendency.ID,
		Title:       strings.TrimSpace(input.Title),
		ValidUntil:  input.ValidUntil,
		Status:      domain.BudgetStatusDraft,
		CreatedAt:   now,
		StatusSetAt: now,
	}
	// The draft row rides inside the transition so a rejected transition
	// leaves no orphaned budget behind.
	if _, err := s.lifecycle.Apply(ctx, TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: input.ExpectedVersion,
		Trigger:         domain.TriggerBudgetDrafted,
		Actor:           actor,
		NewBudget:       budget,
		LinkBudgetID:    &budget.ID,
		Detail:          budget.Title,
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, ticketID, actor, events.EventBudgetDrafted,
		events.BudgetDecidedPayload{BudgetID: budget.ID, Status: domain.BudgetStatusDraft})
	return budget, nil
}

// MarkSent mirrors the external "budget sent to client" action.
func (s *ApprovalService) MarkSent(ctx context.Context, tenantID, ticketID string, expectedVersion int64, actor Actor) (*domain.Ticket, error) {
	budgetID, err := s.linkedBudgetID(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Apply(ctx, TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: expectedVersion,
		Trigger:         domain.TriggerBudgetSent,
		Actor:           actor,
		MirrorBudget:    &repository.BudgetMirror{BudgetID: budgetID, Status: domain.BudgetStatusSent},
	})
}

// Approve accepts the sent budget: the linked budget is marked APPROVED, the
// originating financial pendency resolved, and the ticket moves to
// QUOTE_APPROVED, all in one update.
func (s *ApprovalService) Approve(ctx context.Context, tenantID, ticketID string, expectedVersion int64, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusQuoteSent {
		return nil, util.NewInvalidTransition(string(domain.TriggerBudgetApproved), string(ticket.Status))
	}
	budgetID, err := s.linkedBudgetID(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}

	req := TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: expectedVersion,
		Trigger:         domain.TriggerBudgetApproved,
		Actor:           actor,
		MirrorBudget:    &repository.BudgetMirror{BudgetID: budgetID, Status: domain.BudgetStatusApproved},
	}
	if open := ticket.OpenPendency(domain.PendencyKindFinancial); open != nil {
		req.ResolvePendencyID = &open.ID
	}
	updated, err := s.lifecycle.Apply(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, ticketID, actor, events.EventBudgetDecided,
		events.BudgetDecidedPayload{BudgetID: budgetID, Status: domain.BudgetStatusApproved})
	return updated, nil
}

// Reject declines the sent budget. Without equipment to return the ticket
// ends in QUOTE_REJECTED; with it, a return pendency is opened, the ticket is
// reclassified as technical and parked in AWAITING_RETURN, atomically.
func (s *ApprovalService) Reject(ctx context.Context, tenantID, ticketID string, actor Actor, input RejectInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, util.NewValidationError("rejection reason required", nil)
	}
	if input.EquipmentToReturn && strings.TrimSpace(input.ReturnInstructions) == "" {
		return nil, util.NewValidationError("return instructions required when equipment must be returned", nil)
	}

	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusQuoteSent {
		return nil, util.NewInvalidTransition(string(domain.TriggerBudgetRejected), string(ticket.Status))
	}
	budgetID, err := s.linkedBudgetID(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}

	req := TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: input.ExpectedVersion,
		Actor:           actor,
		Detail:          strings.TrimSpace(input.Reason),
		MirrorBudget:    &repository.BudgetMirror{BudgetID: budgetID, Status: domain.BudgetStatusRejected},
	}
	// The quote question is answered either way; the financial pendency
	// closes with the rejection.
	origin := ticket.OpenPendency(domain.PendencyKindFinancial)
	if origin != nil {
		req.ResolvePendencyID = &origin.ID
	}

	if input.EquipmentToReturn {
		pendency := domain.NewReturnPendency(ticketID, origin,
			strings.TrimSpace(input.Reason), strings.TrimSpace(input.ReturnInstructions), time.Now())
		pendency.ID = uuid.NewString()
		kind := domain.TicketKindTechnical
		req.Trigger = domain.TriggerBudgetRejectedReturn
		req.NewPendency = &pendency
		req.SetKind = &kind
	} else {
		req.Trigger = domain.TriggerBudgetRejected
	}

	updated, err := s.lifecycle.Apply(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, ticketID, actor, events.EventBudgetDecided,
		events.BudgetDecidedPayload{BudgetID: budgetID, Status: domain.BudgetStatusRejected, Reason: input.Reason})
	if input.EquipmentToReturn {
		s.publish(ctx, tenantID, ticketID, actor, events.EventReturnRequested,
			events.BudgetDecidedPayload{BudgetID: budgetID, Status: domain.BudgetStatusRejected, Reason: input.Reason})
	}
	return updated, nil
}

// GetBudget returns the budget slice the core tracks.
func (s *ApprovalService) GetBudget(ctx context.Context, tenantID, budgetID string) (*domain.Budget, error) {
	budget, err := s.store.GetBudget(ctx, tenantID, budgetID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return budget, nil
}

func (s *ApprovalService) linkedBudgetID(ctx context.Context, tenantID, ticketID string) (string, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return "", err
	}
	if ticket.LinkedBudgetID == nil {
		return "", util.NewValidationError("ticket has no linked budget", nil)
	}
	return *ticket.LinkedBudgetID, nil
}

func (s *ApprovalService) publish(ctx context.Context, tenantID, ticketID string, actor Actor, eventType events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		TicketID:  ticketID,
		Actor:     events.Actor{ID: actor.ID, Name: actor.Name},
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
