package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/events"
	"github.com/spec-kit/fieldservice/internal/publiclink"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// stubLinks is a LinkIssuer with deterministic tokens and single-use
// redemption.
type stubLinks struct {
	issueErr error
	links    map[string]publiclink.Link
	used     map[string]bool
	counter  int
}

func newStubLinks() *stubLinks {
	return &stubLinks{links: make(map[string]publiclink.Link), used: make(map[string]bool)}
}

func (s *stubLinks) Issue(ctx context.Context, tenantID, ticketID, entryID string) (string, error) {
	if s.issueErr != nil {
		return "", s.issueErr
	}
	s.counter++
	token := fmt.Sprintf("token-%d", s.counter)
	s.links[token] = publiclink.Link{TenantID: tenantID, TicketID: ticketID, EntryID: entryID}
	return token, nil
}

func (s *stubLinks) Peek(ctx context.Context, token string) (publiclink.Link, error) {
	link, ok := s.links[token]
	if !ok {
		return publiclink.Link{}, publiclink.ErrTokenInvalid
	}
	return link, nil
}

func (s *stubLinks) Redeem(ctx context.Context, token string) (publiclink.Link, error) {
	link, ok := s.links[token]
	if !ok {
		return publiclink.Link{}, publiclink.ErrTokenInvalid
	}
	if s.used[token] {
		return publiclink.Link{}, publiclink.ErrTokenUsed
	}
	s.used[token] = true
	return link, nil
}

func TestCreateEntryValidation(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	at := time.Now().Add(time.Hour)

	cases := []struct {
		name  string
		input CreateEntryInput
	}{
		{"no technicians", CreateEntryInput{
			ExpectedVersion: 1,
			ScheduledAt:     &at,
			NewActivityName: "Diagnostics",
		}},
		{"no activity", CreateEntryInput{
			ExpectedVersion: 1,
			ScheduledAt:     &at,
			Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		}},
		{"no date outside return flow", CreateEntryInput{
			ExpectedVersion: 1,
			Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
			NewActivityName: "Diagnostics",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, tc.input)
			if !util.HasCode(err, util.CodeValidationFailed) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestActivityTypeReusedByName(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	at := time.Now().Add(time.Hour)

	first, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 1,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Repair",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	// Same name with different casing resolves to the same activity type.
	second, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 2,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-2", Name: "Ana"}},
		NewActivityName: "repair",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if first.ActivityTypeID != second.ActivityTypeID {
		t.Fatalf("expected shared activity type, got %s and %s", first.ActivityTypeID, second.ActivityTypeID)
	}
	if second.ActivityName != "Repair" {
		t.Fatalf("expected original casing kept, got %q", second.ActivityName)
	}

	// Surrounding whitespace does not create a duplicate either.
	third, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 3,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-3", Name: "Ines"}},
		NewActivityName: "  Repair ",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if third.ActivityTypeID != first.ActivityTypeID {
		t.Fatalf("expected padded name to reuse activity type, got %s and %s", first.ActivityTypeID, third.ActivityTypeID)
	}
}

func TestCreateEntryLinkFailureIsWarning(t *testing.T) {
	fx := newFixture()
	links := newStubLinks()
	links.issueErr = errors.New("redis down")
	fx.schedule = NewScheduleService(fx.store, fx.lifecycle, links, fx.dispatcher)

	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	at := time.Now().Add(time.Hour)
	entry, warnings, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 1,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Diagnostics",
	})
	if err != nil {
		t.Fatalf("CreateEntry must not fail on link issuance, got %v", err)
	}
	if entry.PublicToken != "" {
		t.Fatal("no token expected when issuance failed")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "public link issuance failed") {
		t.Fatalf("expected issuance warning, got %v", warnings)
	}
	if refreshTicket(t, fx, ticket).Status != domain.TicketStatusInProgress {
		t.Fatal("entry must still be scheduled")
	}
}

func TestCreateEntryNotificationFailureIsWarning(t *testing.T) {
	fx := newFixture()
	fx.dispatcher.Subscribe(events.EventEntryScheduled, func(ctx context.Context, event events.Event) error {
		return errors.New("smtp unreachable")
	})

	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	at := time.Now().Add(time.Hour)
	_, warnings, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 1,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Diagnostics",
	})
	if err != nil {
		t.Fatalf("CreateEntry must not fail on notification, got %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "notification dispatch failed") {
		t.Fatalf("expected dispatch warning, got %v", warnings)
	}
	if refreshTicket(t, fx, ticket).Status != domain.TicketStatusInProgress {
		t.Fatal("ticket must still move to IN_PROGRESS")
	}
}

func TestStartAndCancelEntry(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)

	started, err := fx.schedule.StartEntry(context.Background(), ticket.TenantID, ticket.ID, entry.ID, 2, testActor)
	if err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	if started.Status != domain.EntryStatusInProgress {
		t.Fatalf("expected entry IN_PROGRESS, got %s", started.Status)
	}

	// Starting again is rejected, the entry is no longer SCHEDULED.
	if _, err := fx.schedule.StartEntry(context.Background(), ticket.TenantID, ticket.ID, entry.ID, 3, testActor); !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error on double start, got %v", err)
	}

	cancelled, err := fx.schedule.CancelEntry(context.Background(), ticket.TenantID, ticket.ID, entry.ID, 3, testActor)
	if err != nil {
		t.Fatalf("CancelEntry: %v", err)
	}
	if cancelled.Status != domain.EntryStatusCancelled || cancelled.FinalizedAt == nil {
		t.Fatalf("expected cancelled entry with timestamp, got %+v", cancelled)
	}

	// The ticket status is untouched by entry-level changes.
	if refreshTicket(t, fx, ticket).Status != domain.TicketStatusInProgress {
		t.Fatal("entry cancellation must not change ticket status")
	}
}

func TestFinalizeGuards(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)

	_, err := fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entry.ID, testActor, FinalizeInput{
		ExpectedVersion: 2,
		Outcome:         domain.OutcomeTechnicalPendency,
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error without description, got %v", err)
	}

	if _, err := fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entry.ID, testActor, FinalizeInput{
		ExpectedVersion: 2,
		Outcome:         domain.OutcomeNone,
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	_, err = fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entry.ID, testActor, FinalizeInput{
		ExpectedVersion: 3,
		Outcome:         domain.OutcomeNone,
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error on double finalize, got %v", err)
	}
}

func TestFinalizeTechnicalPendency(t *testing.T) {
	fx := newFixture()
	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	entry := mustScheduleVisit(t, fx, ticket)

	if _, err := fx.schedule.Finalize(context.Background(), ticket.TenantID, ticket.ID, entry.ID, testActor, FinalizeInput{
		ExpectedVersion: 2,
		Outcome:         domain.OutcomeTechnicalPendency,
		Technical:       &domain.TechnicalDetails{Description: "awaiting replacement board"},
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	current := refreshTicket(t, fx, ticket)
	if current.Status != domain.TicketStatusTechnicalPending {
		t.Fatalf("expected TECHNICAL_PENDING, got %s", current.Status)
	}
	open := current.OpenPendency(domain.PendencyKindTechnical)
	if open == nil || open.Technical == nil || open.Technical.Description != "awaiting replacement board" {
		t.Fatalf("expected technical pendency, got %+v", open)
	}
}

func TestPublicFormSubmission(t *testing.T) {
	fx := newFixture()
	links := newStubLinks()
	fx.schedule = NewScheduleService(fx.store, fx.lifecycle, links, fx.dispatcher)

	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	at := time.Now().Add(time.Hour)
	entry, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 1,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Diagnostics",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if entry.PublicToken == "" {
		t.Fatal("expected a public token on the new entry")
	}

	submitted, err := fx.schedule.SubmitPublicForm(context.Background(), entry.PublicToken, Actor{ID: "public-form", Name: "Public form"}, FinalizeInput{
		Outcome: domain.OutcomeNone,
	})
	if err != nil {
		t.Fatalf("SubmitPublicForm: %v", err)
	}
	if submitted.Status != domain.EntryStatusDone {
		t.Fatalf("expected entry DONE, got %s", submitted.Status)
	}

	// The link is single use.
	_, err = fx.schedule.SubmitPublicForm(context.Background(), entry.PublicToken, Actor{ID: "public-form", Name: "Public form"}, FinalizeInput{
		Outcome: domain.OutcomeNone,
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected rejection of a reused link, got %v", err)
	}
}

func TestPublicFormRejectedSubmissionKeepsToken(t *testing.T) {
	fx := newFixture()
	links := newStubLinks()
	fx.schedule = NewScheduleService(fx.store, fx.lifecycle, links, fx.dispatcher)

	ticket := mustCreateTicket(t, fx, domain.TicketKindTechnical)
	at := time.Now().Add(time.Hour)
	entry, _, err := fx.schedule.CreateEntry(context.Background(), ticket.TenantID, ticket.ID, testActor, CreateEntryInput{
		ExpectedVersion: 1,
		ScheduledAt:     &at,
		Technicians:     []domain.Technician{{ID: "tech-1", Name: "Rui"}},
		NewActivityName: "Diagnostics",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	actor := Actor{ID: "public-form", Name: "Public form"}
	_, err = fx.schedule.SubmitPublicForm(context.Background(), entry.PublicToken, actor, FinalizeInput{
		Outcome: domain.OutcomeTechnicalPendency,
	})
	if !util.HasCode(err, util.CodeValidationFailed) {
		t.Fatalf("expected validation error without description, got %v", err)
	}

	// A rejected submission must not burn the token; the corrected payload
	// goes through.
	submitted, err := fx.schedule.SubmitPublicForm(context.Background(), entry.PublicToken, actor, FinalizeInput{
		Outcome:   domain.OutcomeTechnicalPendency,
		Technical: &domain.TechnicalDetails{Description: "missing gasket, part ordered"},
	})
	if err != nil {
		t.Fatalf("corrected resubmission failed: %v", err)
	}
	if submitted.Status != domain.EntryStatusDone {
		t.Fatalf("expected entry DONE, got %s", submitted.Status)
	}
	if refreshTicket(t, fx, ticket).Status != domain.TicketStatusTechnicalPending {
		t.Fatal("expected TECHNICAL_PENDING after resubmission")
	}
}
