package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/events"
	"github.com/spec-kit/fieldservice/internal/publiclink"
	"github.com/spec-kit/fieldservice/internal/repository"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// LinkIssuer is the token/link collaborator for the public visit form. Peek
// verifies and decodes a token without consuming it; Redeem burns it.
type LinkIssuer interface {
	Issue(ctx context.Context, tenantID, ticketID, entryID string) (string, error)
	Peek(ctx context.Context, token string) (publiclink.Link, error)
	Redeem(ctx context.Context, token string) (publiclink.Link, error)
}

// ScheduleService manages schedule entries (visits) nested under a ticket.
// It never writes ticket status itself; every mutation goes through the
// lifecycle Apply.
type ScheduleService struct {
	store      repository.Store
	lifecycle  *LifecycleService
	links      LinkIssuer
	dispatcher events.Dispatcher
}

// NewScheduleService constructs the service. links may be nil when no public
// form integration is configured.
func NewScheduleService(store repository.Store, lifecycle *LifecycleService, links LinkIssuer, dispatcher events.Dispatcher) *ScheduleService {
	return &ScheduleService{store: store, lifecycle: lifecycle, links: links, dispatcher: dispatcher}
}

// CreateEntryInput describes entry creation. Exactly one of ActivityTypeID
// or NewActivityName must be supplied.
type CreateEntryInput struct {
	ExpectedVersion int64
	ScheduledAt     *time.Time
	Technicians     []domain.Technician
	ActivityTypeID  string
	NewActivityName string
	Observations    string
}

// FinalizeInput carries the terminal outcome of a visit plus the pendency
// payload matching it.
type FinalizeInput struct {
	ExpectedVersion int64
	Outcome         domain.FinalizationOutcome
	Technical       *domain.TechnicalDetails
	Financial       *domain.FinancialDetails
}

// CreateEntry creates a visit under the ticket and fires the transition the
// ticket's current status calls for: the first entry moves OPEN to
// IN_PROGRESS, an entry after approval reopens execution, and an entry on an
// AWAITING_RETURN ticket becomes the return visit. Notification and link
// issuance failures are reported as warnings, never as errors.
func (s *ScheduleService) CreateEntry(ctx context.Context, tenantID, ticketID string, actor Actor, input CreateEntryInput) (*domain.ScheduleEntry, []string, error) {
	if len(input.Technicians) == 0 {
		return nil, nil, util.NewValidationError("at least one technician required", nil)
	}
	if input.ActivityTypeID == "" && strings.TrimSpace(input.NewActivityName) == "" {
		return nil, nil, util.NewValidationError("activity_type_id or new activity name required", nil)
	}

	activity, err := s.resolveActivityType(ctx, tenantID, input)
	if err != nil {
		return nil, nil, err
	}

	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, nil, err
	}

	req := TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: input.ExpectedVersion,
		Actor:           actor,
	}
	entry := domain.ScheduleEntry{
		ID:             uuid.NewString(),
		TicketID:       ticketID,
		ScheduledAt:    input.ScheduledAt,
		Technicians:    input.Technicians,
		ActivityTypeID: activity.ID,
		ActivityName:   activity.Name,
		Observations:   strings.TrimSpace(input.Observations),
		Status:         domain.EntryStatusScheduled,
		Outcome:        domain.OutcomeNone,
		CreatedAt:      time.Now(),
	}

	switch ticket.Status {
	case domain.TicketStatusOpen:
		req.Trigger = domain.TriggerEntryScheduled
	case domain.TicketStatusQuoteApproved:
		req.Trigger = domain.TriggerExecutionScheduled
	case domain.TicketStatusAwaitingReturn:
		req.Trigger = domain.TriggerReturnScheduled
		entry.IsReturnVisit = true
		kind := domain.TicketKindTechnical
		req.SetKind = &kind
		if open := ticket.OpenPendency(domain.PendencyKindReturn); open != nil {
			entry.OriginEntryID = open.OriginEntryID
			req.ResolvePendencyID = &open.ID
		}
	default:
		req.Trigger = domain.TriggerEntryAdded
	}

	// Only a return visit may be created without a date.
	if input.ScheduledAt == nil && !entry.IsReturnVisit {
		return nil, nil, util.NewValidationError("scheduled_at required", nil)
	}

	var warnings []string
	if s.links != nil {
		token, err := s.links.Issue(ctx, tenantID, ticketID, entry.ID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("public link issuance failed: %v", err))
		} else {
			entry.PublicToken = token
		}
	}

	req.NewEntry = &entry
	req.Detail = fmt.Sprintf("visit scheduled, activity %s", activity.Name)
	updated, err := s.lifecycle.Apply(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventEntryScheduled,
			TenantID:  tenantID,
			TicketID:  ticketID,
			Actor:     events.Actor{ID: actor.ID, Name: actor.Name},
			Timestamp: time.Now(),
			Payload: events.EntryScheduledPayload{
				EntryID:      entry.ID,
				ScheduledAt:  entry.ScheduledAt,
				Recipients:   entry.Technicians,
				ActivityName: entry.ActivityName,
				Summary:      ticket.Summary,
				ReturnVisit:  entry.IsReturnVisit,
			},
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			warnings = append(warnings, fmt.Sprintf("notification dispatch failed: %v", err))
		}
	}

	created := updated.FindEntry(entry.ID)
	if created == nil {
		created = &entry
	}
	return created, warnings, nil
}

// StartEntry moves a SCHEDULED entry to IN_PROGRESS.
func (s *ScheduleService) StartEntry(ctx context.Context, tenantID, ticketID, entryID string, expectedVersion int64, actor Actor) (*domain.ScheduleEntry, error) {
	return s.updateEntryStatus(ctx, tenantID, ticketID, entryID, expectedVersion, actor,
		domain.TriggerEntryStarted, domain.EntryStatusInProgress)
}

// CancelEntry cancels a not-yet-final entry.
func (s *ScheduleService) CancelEntry(ctx context.Context, tenantID, ticketID, entryID string, expectedVersion int64, actor Actor) (*domain.ScheduleEntry, error) {
	return s.updateEntryStatus(ctx, tenantID, ticketID, entryID, expectedVersion, actor,
		domain.TriggerEntryCancelled, domain.EntryStatusCancelled)
}

func (s *ScheduleService) updateEntryStatus(ctx context.Context, tenantID, ticketID, entryID string, expectedVersion int64, actor Actor, trigger domain.Trigger, status domain.EntryStatus) (*domain.ScheduleEntry, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	entry := ticket.FindEntry(entryID)
	if entry == nil {
		return nil, util.NewNotFound("schedule entry", map[string]any{"entry_id": entryID})
	}
	if entry.IsFinal() {
		return nil, util.NewValidationError("entry already finalized", map[string]any{"entry_id": entryID})
	}
	if trigger == domain.TriggerEntryStarted && entry.Status != domain.EntryStatusScheduled {
		return nil, util.NewValidationError("entry not in scheduled state", map[string]any{"entry_id": entryID})
	}

	staged := *entry
	staged.Status = status
	if status == domain.EntryStatusCancelled {
		now := time.Now()
		staged.FinalizedAt = &now
	}
	updated, err := s.lifecycle.Apply(ctx, TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: expectedVersion,
		Trigger:         trigger,
		Actor:           actor,
		UpdateEntry:     &staged,
	})
	if err != nil {
		return nil, err
	}
	return updated.FindEntry(entryID), nil
}

// Finalize closes an entry with its terminal outcome and opens the matching
// pendency, transitioning the ticket in the same atomic update. With outcome
// NONE the ticket status is left unchanged.
func (s *ScheduleService) Finalize(ctx context.Context, tenantID, ticketID, entryID string, actor Actor, input FinalizeInput) (*domain.ScheduleEntry, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	entry := ticket.FindEntry(entryID)
	if entry == nil {
		return nil, util.NewNotFound("schedule entry", map[string]any{"entry_id": entryID})
	}
	if entry.IsFinal() {
		return nil, util.NewValidationError("entry already finalized", map[string]any{"entry_id": entryID})
	}
	if err := validateFinalizeInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	staged := *entry
	staged.Status = domain.EntryStatusDone
	staged.Outcome = input.Outcome
	staged.FinalizedAt = &now

	req := TransitionRequest{
		TenantID:        tenantID,
		TicketID:        ticketID,
		ExpectedVersion: input.ExpectedVersion,
		Actor:           actor,
		UpdateEntry:     &staged,
		Detail:          fmt.Sprintf("visit finalized with outcome %s", input.Outcome),
	}
	switch input.Outcome {
	case domain.OutcomeNone:
		req.Trigger = domain.TriggerEntryFinalizedClean
	case domain.OutcomeTechnicalPendency:
		pendency := domain.NewTechnicalPendency(ticketID, entryID, strings.TrimSpace(input.Technical.Description), now)
		pendency.ID = uuid.NewString()
		req.Trigger = domain.TriggerTechnicalPendency
		req.NewPendency = &pendency
	case domain.OutcomeFinancialPendency:
		pendency := domain.NewFinancialPendency(ticketID, entryID, *input.Financial, now)
		pendency.ID = uuid.NewString()
		req.Trigger = domain.TriggerFinancialPendency
		req.NewPendency = &pendency
	}

	updated, err := s.lifecycle.Apply(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventEntryFinalized,
			TenantID:  tenantID,
			TicketID:  ticketID,
			Actor:     events.Actor{ID: actor.ID, Name: actor.Name},
			Timestamp: time.Now(),
			Payload:   events.EntryFinalizedPayload{EntryID: entryID, Outcome: input.Outcome},
		})
	}
	return updated.FindEntry(entryID), nil
}

// SubmitPublicForm finalizes an entry through its single-use public link.
// The token carries the correlation key; the ticket's current version is
// used since the public form has no notion of it.
func (s *ScheduleService) SubmitPublicForm(ctx context.Context, token string, actor Actor, input FinalizeInput) (*domain.ScheduleEntry, error) {
	if s.links == nil {
		return nil, util.NewValidationError("public form not configured", nil)
	}
	link, err := s.links.Peek(ctx, token)
	if err != nil {
		return nil, util.NewValidationError("invalid or used public link", map[string]any{"cause": err.Error()})
	}
	ticket, err := s.lifecycle.GetTicket(ctx, link.TenantID, link.TicketID)
	if err != nil {
		return nil, err
	}
	entry := ticket.FindEntry(link.EntryID)
	if entry == nil {
		return nil, util.NewNotFound("schedule entry", map[string]any{"entry_id": link.EntryID})
	}
	if entry.IsFinal() {
		return nil, util.NewValidationError("entry already finalized", map[string]any{"entry_id": link.EntryID})
	}
	// The token burns only once the payload is known to be good, so a
	// rejected submission can be corrected and resent.
	if err := validateFinalizeInput(input); err != nil {
		return nil, err
	}
	if _, err := s.links.Redeem(ctx, token); err != nil {
		return nil, util.NewValidationError("invalid or used public link", map[string]any{"cause": err.Error()})
	}
	input.ExpectedVersion = ticket.Version
	return s.Finalize(ctx, link.TenantID, link.TicketID, link.EntryID, actor, input)
}

func validateFinalizeInput(input FinalizeInput) error {
	switch input.Outcome {
	case domain.OutcomeNone:
	case domain.OutcomeTechnicalPendency:
		if input.Technical == nil || strings.TrimSpace(input.Technical.Description) == "" {
			return util.NewValidationError("technical pendency description required", nil)
		}
	case domain.OutcomeFinancialPendency:
		if input.Financial == nil {
			return util.NewValidationError("financial pendency payload required", nil)
		}
		if input.Financial.Type != domain.FinancialTypeInvoice && input.Financial.Type != domain.FinancialTypeQuote {
			return util.NewValidationError("financial pendency type must be INVOICE or QUOTE", nil)
		}
	default:
		return util.NewValidationError("unknown finalization outcome", map[string]any{"outcome": input.Outcome})
	}
	return nil
}

func (s *ScheduleService) resolveActivityType(ctx context.Context, tenantID string, input CreateEntryInput) (*domain.ActivityType, error) {
	if input.ActivityTypeID != "" {
		activity, err := s.store.GetActivityType(ctx, tenantID, input.ActivityTypeID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		return activity, nil
	}
	return s.store.GetOrCreateActivityType(ctx, tenantID, input.NewActivityName)
}
