package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/events"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// quoteSentTicket walks a fresh ticket to QUOTE_SENT and returns it together
// with the linked budget id.
func quoteSentTicket(t *testing.T, fx *fixture) (*domain.Ticket, string) {
	t.Helper()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)
	mustFinalizeWithQuote(t, fx, ticket, entry.ID)

	current := refreshTicket(t, fx, ticket)
	pendency := current.OpenPendency(domain.PendencyKindFinancial)
	budget, err := fx.approvals.CreateBudget(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateBudgetInput{
		ExpectedVersion: current.Version,
		PendencyID:      pendency.ID,
		Title:           "compressor valve replacement",
		ValidUntil:      time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	if _, err := fx.approvals.MarkSent(context.Background(), ticket.TenantID, ticket.ID, currentVersion(t, fx, ticket), testActor); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	return refreshTicket(t, fx, ticket), budget.ID
}

func TestBudgetDraftAndSend(t *testing.T) {
	fx := newFixture()
	ticket, budgetID := quoteSentTicket(t, fx)

	if ticket.Status != domain.TicketStatusQuoteSent {
		t.Fatalf("expected QUOTE_SENT, got %s", ticket.Status)
	}
	if ticket.LinkedBudgetID == nil || *ticket.LinkedBudgetID != budgetID {
		t.Fatal("ticket must link the drafted budget")
	}

	budget, err := fx.approvals.GetBudget(context.Background(), ticket.TenantID, budgetID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if budget.Status != domain.BudgetStatusSent {
		t.Fatalf("expected budget SENT, got %s", budget.Status)
	}
}

func TestBudgetApprove(t *testing.T) {
	fx := newFixture()
	ticket, budgetID := quoteSentTicket(t, fx)

	updated, err := fx.approvals.Approve(context.Background(), ticket.TenantID, ticket.ID, ticket.Version, testActor)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if updated.Status != domain.TicketStatusQuoteApproved {
		t.Fatalf("expected QUOTE_APPROVED, got %s", updated.Status)
	}
	if updated.OpenPendency(domain.PendencyKindFinancial) != nil {
		t.Fatal("approval must resolve the financial pendency")
	}

	budget, err := fx.approvals.GetBudget(context.Background(), ticket.TenantID, budgetID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if budget.Status != domain.BudgetStatusApproved {
		t.Fatalf("expected budget APPROVED, got %s", budget.Status)
	}
}

func TestBudgetRejectWithoutReturn(t *testing.T) {
	fx := newFixture()
	ticket, budgetID := quoteSentTicket(t, fx)

	updated, err := fx.approvals.Reject(context.Background(), ticket.TenantID, ticket.ID, testActor, RejectInput{
		ExpectedVersion: ticket.Version,
		Reason:          "price too high",
	})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if updated.Status != domain.TicketStatusQuoteRejected {
		t.Fatalf("expected QUOTE_REJECTED, got %s", updated.Status)
	}
	if updated.OpenPendency(domain.PendencyKindFinancial) != nil {
		t.Fatal("rejection must resolve the financial pendency")
	}
	if updated.OpenPendency(domain.PendencyKindReturn) != nil {
		t.Fatal("no return pendency expected without equipment to return")
	}

	budget, err := fx.approvals.GetBudget(context.Background(), ticket.TenantID, budgetID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if budget.Status != domain.BudgetStatusRejected {
		t.Fatalf("expected budget REJECTED, got %s", budget.Status)
	}
}

func TestBudgetRejectWithReturn(t *testing.T) {
	fx := newFixture()
	var returnEvents int
	fx.dispatcher.Subscribe(events.EventReturnRequested, func(ctx context.Context, event events.Event) error {
		returnEvents++
		return nil
	})
	ticket, _ := quoteSentTicket(t, fx)

	updated, err := fx.approvals.Reject(context.Background(), ticket.TenantID, ticket.ID, testActor, RejectInput{
		ExpectedVersion:    ticket.Version,
		Reason:             "price too high",
		EquipmentToReturn:  true,
		ReturnInstructions: "bring back controller unit",
	})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if updated.Status != domain.TicketStatusAwaitingReturn {
		t.Fatalf("expected AWAITING_RETURN, got %s", updated.Status)
	}
	if updated.Kind != domain.TicketKindTechnical {
		t.Fatalf("expected ticket reclassified TECHNICAL, got %s", updated.Kind)
	}
	if updated.OpenPendency(domain.PendencyKindFinancial) != nil {
		t.Fatal("rejection must resolve the financial pendency")
	}

	open := updated.OpenPendency(domain.PendencyKindReturn)
	if open == nil || open.Return == nil {
		t.Fatal("expected an open return pendency")
	}
	if open.Return.RejectionReason != "price too high" {
		t.Fatalf("unexpected rejection reason %q", open.Return.RejectionReason)
	}
	if open.Return.ReturnInstructions != "bring back controller unit" {
		t.Fatalf("unexpected instructions %q", open.Return.ReturnInstructions)
	}
	// Parts location travels from the financial pendency to the return one.
	if open.Return.PartsLocation != "workshop shelf B3" {
		t.Fatalf("expected parts location carried over, got %q", open.Return.PartsLocation)
	}
	if returnEvents != 1 {
		t.Fatalf("expected one return_requested event, got %d", returnEvents)
	}
}

func TestBudgetRejectValidation(t *testing.T) {
	fx := newFixture()
	ticket, _ := quoteSentTicket(t, fx)

	_, err := fx.approvals.Reject(context.Background(), ticket.TenantID, ticket.ID, testActor, RejectInput{
		ExpectedVersion: ticket.Version,
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error for missing reason, got %v", err)
	}

	_, err = fx.approvals.Reject(context.Background(), ticket.TenantID, ticket.ID, testActor, RejectInput{
		ExpectedVersion:   ticket.Version,
		Reason:            "too expensive",
		EquipmentToReturn: true,
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error for missing instructions, got %v", err)
	}
}

func TestCreateBudgetRequiresFinancialPending(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	mustScheduleVisit(t, fx, ticket)

	_, err := fx.approvals.CreateBudget(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateBudgetInput{
		ExpectedVersion: 2,
		PendencyID:      "whatever",
		Title:           "premature quote",
	})
	if !util.HasCode(err, util.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}

	current := refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusInProgress || current.Version != 2 {
		t.Fatalf("failed draft must leave the ticket unchanged, got %s v%d", current.Status, current.Version)
	}
	if fx.store.BudgetCount() != 0 {
		t.Fatal("rejected draft must not persist a budget")
	}
}

func TestCreateBudgetStaleVersionLeavesNoDraft(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)
	mustFinalizeWithQuote(t, fx, ticket, entry.ID)

	current := refreshTicket(t, fx, ticket)
	pendency := current.OpenPendency(domain.PendencyKindFinancial)
	_, err := fx.approvals.CreateBudget(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateBudgetInput{
		ExpectedVersion: current.Version - 1,
		PendencyID:      pendency.ID,
		Title:           "compressor valve replacement",
	})
	if !util.HasCode(err, util.CodeConcurrentModification) {
		t.Fatalf("expected CONCURRENT_MODIFICATION, got %v", err)
	}

	// The draft commits with the transition or not at all.
	if fx.store.BudgetCount() != 0 {
		t.Fatal("stale draft must not persist a budget")
	}
	after := refreshTicket(t, fx, ticket)
	if after.Status != domain.TicketStatusFinancialPending || after.Version != current.Version {
		t.Fatalf("stale draft must leave the ticket unchanged, got %s v%d", after.Status, after.Version)
	}
	if after.LinkedBudgetID != nil {
		t.Fatal("stale draft must not link a budget")
	}
}

func TestCreateBudgetRequiresQuotePendency(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)

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

	current := refreshTicket(t, fx, ticket)
	pendency := current.OpenPendency(domain.PendencyKindFinancial)
	_, err := fx.approvals.CreateBudget(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateBudgetInput{
		ExpectedVersion: current.Version,
		PendencyID:      pendency.ID,
		Title:           "quote against an invoice",
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error for invoice pendency, got %v", err)
	}
}

func TestReturnVisitAfterRejection(t *testing.T) {
	fx := newFixture()
	ticket, _ := quoteSentTicket(t, fx)

	if _, err := fx.approvals.Reject(context.Background(), ticket.TenantID, ticket.ID, testActor, RejectInput{
		ExpectedVersion:    ticket.Version,
		Reason:             "price too high",
		EquipmentToReturn:  true,
		ReturnInstructions: "bring back controller unit",
	}); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	// The return visit may be created without a date and resolves the
	// return pendency while reopening execution.
	entry, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: currentVersion(t, fx, ticket),
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Equipment return",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if !entry.IsReturnVisit {
		t.Fatal("expected a return visit")
	}
	if entry.OriginEntryID == nil {
		t.Fatal("return visit must reference the originating entry")
	}

	current := refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS after return visit, got %s", current.Status)
	}
	if current.OpenPendency(domain.PendencyKindReturn) != nil {
		t.Fatal("scheduling the return visit must resolve the return pendency")
	}
}
