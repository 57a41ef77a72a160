package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/events"
	"github.com/spec-kit/fieldservice/internal/testutil"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

type fixture struct {
	store      *testutil.MemStore
	dispatcher events.Dispatcher
	lifecycle  *LifecycleService
	schedule   *ScheduleService
	pendencies *PendencyService
	approvals  *ApprovalService
}

func newFixture() *fixture {
	store := testutil.NewMemStore()
	dispatcher := events.NewInMemoryDispatcher()
	lifecycle := NewLifecycleService(store, dispatcher, nil)
	return &fixture{
		store:      store,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		schedule:   NewScheduleService(store, lifecycle, nil, dispatcher),
		pendencies: NewPendencyService(lifecycle),
		approvals:  NewApprovalService(store, lifecycle, dispatcher),
	}
}

var testActor = Actor{ID: "op-1", Name: "Dana"}

func mustCreateTicket(t *testing.T, fx *fixture, kind domain.TicketKind) *domain.Ticket {
	t.Helper()
	ticket, err := fx.lifecycle.CreateTicket(context.Background(), "tenant-a", testActor, CreateTicketInput{
		Kind:      kind,
		Summary:   "compressor overheating",
		ClientRef: "client-42",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

func mustScheduleVisit(t *testing.T, fx *fixture, ticket *domain.Ticket) *domain.ScheduleEntry {
	t.Helper()
	at := time.Now().Add(24 * time.Hour)
	entry, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: currentVersion(t, fx, ticket),
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Diagnostics",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return entry
}

func mustFinalizeWithQuote(t *testing.T, fx *fixture, ticket *domain.Ticket, entryID string) {
	t.Helper()
	amount := 450.00
	_, err := fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entryID, testActor, FinalizeInput{
		ExpectedVersion: currentVersion(t, fx, ticket),
		Outcome:         domain.OutcomeFinancialPendency,
		Financial: &domain.FinancialDetails{
			Type:            domain.FinancialTypeQuote,
			Description:     "replacement compressor valve",
			EstimatedAmount: &amount,
			PartsRemoved:    true,
			PartsLocation:   "workshop shelf B3",
		},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func currentVersion(t *testing.T, fx *fixture, ticket *domain.Ticket) int64 {
	t.Helper()
	current, err := fx.lifecycle.GetTicket(context.Background(), ticket.TenantID, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	return current.Version
}

func refreshTicket(t *testing.T, fx *fixture, ticket *domain.Ticket) *domain.Ticket {
	t.Helper()
	current, err := fx.lifecycle.GetTicket(context.Background(), ticket.TenantID, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	return current
}

func TestCreateTicket(t *testing.T) {
	fx := newFixture()

	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("expected OPEN, got %s", ticket.Status)
	}
	if ticket.Version != 1 {
		t.Fatalf("expected version 1, got %d", ticket.Version)
	}
	if ticket.Number != 1 {
		t.Fatalf("expected number 1, got %d", ticket.Number)
	}

	second := mustCreateTicket(t, fx, domain.TicketKindCommercial)
	if second.Number != 2 {
		t.Fatalf("expected sequential number 2, got %d", second.Number)
	}

	other, err := fx.lifecycle.CreateTicket(context.Background(), "tenant-b", testActor, CreateTicketInput{
		Kind:    domain.TicketKindTechnical,
		Summary: "elevator inspection",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if other.Number != 1 {
		t.Fatalf("numbers must be per tenant, got %d", other.Number)
	}

	stored := refreshTicket(t, fx, ticket)
	if len(stored.AuditTrail) != 1 || stored.AuditTrail[0].Action != domain.AuditTicketCreated {
		t.Fatalf("expected a single creation audit event, got %+v", stored.AuditTrail)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	fx := newFixture()

	_, err := fx.lifecycle.CreateTicket(context.Background(), "tenant-a", testActor, CreateTicketInput{
		Kind:    domain.TicketKind("OTHER"),
		Summary: "something",
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error for kind, got %v", err)
	}

	_, err = fx.lifecycle.CreateTicket(context.Background(), "tenant-a", testActor, CreateTicketInput{
		Kind:    domain.TicketKindTechnical,
		Summary: "   ",
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error for summary, got %v", err)
	}
}

func TestVisitFlowToFinancialPending(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)

	entry := mustScheduleVisit(t, fx, ticket)
	current := refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS after first visit, got %s", current.Status)
	}
	if current.Version != 2 {
		t.Fatalf("expected version 2, got %d", current.Version)
	}

	mustFinalizeWithQuote(t, fx, ticket, entry.ID)
	current = refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusFinancialPending {
		t.Fatalf("expected FINANCIAL_PENDING, got %s", current.Status)
	}
	open := current.OpenPendency(domain.PendencyKindFinancial)
	if open == nil || open.Financial == nil {
		t.Fatal("expected an open financial pendency")
	}
	if open.Financial.Type != domain.FinancialTypeQuote {
		t.Fatalf("expected QUOTE pendency, got %s", open.Financial.Type)
	}
	if open.OriginEntryID == nil || *open.OriginEntryID != entry.ID {
		t.Fatal("pendency must reference the originating entry")
	}
	finalized := current.FindEntry(entry.ID)
	if finalized.Status != domain.EntryStatusDone || finalized.FinalizedAt == nil {
		t.Fatalf("expected entry finalized, got %+v", finalized)
	}
}

func TestApplyRejectsUndeclaredTransition(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)

	_, err := fx.lifecycle.Apply(context.Background(), TransitionRequest{
		TenantID:        ticket.TenantID,
		TicketID:        ticket.ID,
		ExpectedVersion: 1,
		Trigger:         domain.TriggerBudgetDrafted,
		Actor:           testActor,
	})
	if !util.HasCode(err, util.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
	if refreshTicket(t, fx, ticket).Version != 1 {
		t.Fatal("rejected transition must not bump the version")
	}
}

func TestApplyStaleVersion(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	mustScheduleVisit(t, fx, ticket)

	// Version 1 is stale after the visit bumped it to 2.
	_, err := fx.lifecycle.Cancel(context.Background(), ticket.TenantID, ticket.ID, 1, testActor, "client withdrew")
	if !util.HasCode(err, util.CodeConcurrentModification) {
		t.Fatalf("expected CONCURRENT_MODIFICATION, got %v", err)
	}

	current := refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusInProgress {
		t.Fatalf("stale write must not change status, got %s", current.Status)
	}

	// Re-read and retry with the fresh version.
	if _, err := fx.lifecycle.Cancel(context.Background(), ticket.TenantID, ticket.ID, current.Version, testActor, "client withdrew"); err != nil {
		t.Fatalf("retry with fresh version: %v", err)
	}
	if refreshTicket(t, fx, ticket).Status != domain.TicketStatusCancelled {
		t.Fatal("expected CANCELLED after retry")
	}
}

func TestApplyConcurrentWriters(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.lifecycle.Cancel(context.Background(), ticket.TenantID, ticket.ID, 1, testActor, "duplicate request")
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case util.HasCode(err, util.CodeConcurrentModification):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner, got %d winners and %d conflicts", won, lost)
	}
	if refreshTicket(t, fx, ticket).Version != 2 {
		t.Fatal("expected a single version bump")
	}
}

func TestApplyAtomicityOnStoreFailure(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)

	fx.store.FailAuditAppend = true
	_, err := fx.lifecycle.Cancel(context.Background(), ticket.TenantID, ticket.ID, 1, testActor, "should not stick")
	if err == nil {
		t.Fatal("expected injected failure")
	}

	current := refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusOpen || current.Version != 1 {
		t.Fatalf("failed transition must leave the ticket untouched, got %s v%d", current.Status, current.Version)
	}
	if len(current.AuditTrail) != 1 {
		t.Fatalf("expected only the creation audit event, got %d", len(current.AuditTrail))
	}
}

func TestApplyPendencyExclusivity(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	mustScheduleVisit(t, fx, ticket)

	first := domain.NewTechnicalPendency(ticket.ID, "entry-x", "missing part", time.Now())
	first.ID = "pend-1"
	if _, err := fx.lifecycle.Apply(context.Background(), TransitionRequest{
		TenantID:        ticket.TenantID,
		TicketID:        ticket.ID,
		ExpectedVersion: 2,
		Trigger:         domain.TriggerEntryAdded,
		Actor:           testActor,
		NewPendency:     &first,
	}); err != nil {
		t.Fatalf("first pendency: %v", err)
	}

	second := domain.NewTechnicalPendency(ticket.ID, "entry-y", "another missing part", time.Now())
	second.ID = "pend-2"
	_, err := fx.lifecycle.Apply(context.Background(), TransitionRequest{
		TenantID:        ticket.TenantID,
		TicketID:        ticket.ID,
		ExpectedVersion: 3,
		Trigger:         domain.TriggerEntryAdded,
		Actor:           testActor,
		NewPendency:     &second,
	})
	if !util.HasCode(err, util.CodePendencyAlreadyOpen) {
		t.Fatalf("expected PENDENCY_ALREADY_OPEN, got %v", err)
	}

	// Replacing the open pendency in the same transition is allowed.
	resolveID := "pend-1"
	if _, err := fx.lifecycle.Apply(context.Background(), TransitionRequest{
		TenantID:          ticket.TenantID,
		TicketID:          ticket.ID,
		ExpectedVersion:   3,
		Trigger:           domain.TriggerEntryAdded,
		Actor:             testActor,
		NewPendency:       &second,
		ResolvePendencyID: &resolveID,
	}); err != nil {
		t.Fatalf("replace open pendency: %v", err)
	}

	current := refreshTicket(t, fx, ticket)
	if current.FindPendency("pend-1") == nil || !current.FindPendency("pend-1").Resolved {
		t.Fatal("expected pend-1 resolved")
	}
	if open := current.OpenPendency(domain.PendencyKindTechnical); open == nil || open.ID != "pend-2" {
		t.Fatal("expected pend-2 open")
	}
}

func TestCompleteFromFinancialPending(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)

	// Invoice pendency: completion settles it.
	if _, err := fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entry.ID, testActor, FinalizeInput{
		ExpectedVersion: 2,
		Outcome:         domain.OutcomeFinancialPendency,
		Financial: &domain.FinancialDetails{
			Type:        domain.FinancialTypeInvoice,
			Description: "labor only",
		},
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	updated, err := fx.lifecycle.Complete(context.Background(), ticket.TenantID, ticket.ID, 3, testActor)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated.Status != domain.TicketStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", updated.Status)
	}
	if updated.OpenPendency(domain.PendencyKindFinancial) != nil {
		t.Fatal("invoice pendency must be resolved on completion")
	}
}

func TestCompleteAfterCleanVisit(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)

	// A clean finalization leaves the ticket IN_PROGRESS; the operator
	// closes it manually.
	if _, err := fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entry.ID, testActor, FinalizeInput{
		ExpectedVersion: 2,
		Outcome:         domain.OutcomeNone,
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if refreshTicket(t, fx, ticket).Status != domain.TicketStatusInProgress {
		t.Fatal("clean finalization must keep the ticket IN_PROGRESS")
	}

	updated, err := fx.lifecycle.Complete(context.Background(), ticket.TenantID, ticket.ID, 3, testActor)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if updated.Status != domain.TicketStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", updated.Status)
	}
}

func TestApplyResolveMissingPendency(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	mustScheduleVisit(t, fx, ticket)

	missing := "pend-missing"
	_, err := fx.lifecycle.Apply(context.Background(), TransitionRequest{
		TenantID:          ticket.TenantID,
		TicketID:          ticket.ID,
		ExpectedVersion:   2,
		Trigger:           domain.TriggerEntryAdded,
		Actor:             testActor,
		ResolvePendencyID: &missing,
	})
	if !util.HasCode(err, util.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown pendency, got %v", err)
	}
	if refreshTicket(t, fx, ticket).Version != 2 {
		t.Fatal("failed resolve must not bump the version")
	}
}

func TestCompleteRejectedForQuotePendency(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)
	mustFinalizeWithQuote(t, fx, ticket, entry.ID)

	_, err := fx.lifecycle.Complete(context.Background(), ticket.TenantID, ticket.ID, 3, testActor)
	if !util.HasCode(err, util.CodeInvalidTransition) {
		t.Fatalf("quote pendency must block completion, got %v", err)
	}
}

func TestCancelTerminalTicket(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	if _, err := fx.lifecycle.Cancel(context.Background(), ticket.TenantID, ticket.ID, 1, testActor, "first"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err := fx.lifecycle.Cancel(context.Background(), ticket.TenantID, ticket.ID, 2, testActor, "second")
	if !util.HasCode(err, util.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION from CANCELLED, got %v", err)
	}
}

func TestStatusChangedEventPublished(t *testing.T) {
	fx := newFixture()
	var got []events.Event
	fx.dispatcher.Subscribe(events.EventStatusChanged, func(ctx context.Context, event events.Event) error {
		got = append(got, event)
		return nil
	})

	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	mustScheduleVisit(t, fx, ticket)

	if len(got) != 1 {
		t.Fatalf("expected one status change event, got %d", len(got))
	}
	payload, ok := got[0].Payload.(events.StatusChangedPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", got[0].Payload)
	}
	if payload.OldStatus != domain.TicketStatusOpen || payload.NewStatus != domain.TicketStatusInProgress {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
