package service

import (
	"context"

	"github.com/spec-kit/fieldservice/internal/domain"
	util "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// PendencyService resolves pendencies. Creation happens only as a side
// effect of entry finalization or budget rejection, never here.
type PendencyService struct {
	lifecycle *LifecycleService
}

// NewPendencyService constructs the service.
func NewPendencyService(lifecycle *LifecycleService) *PendencyService {
	return &PendencyService{lifecycle: lifecycle}
}

// Resolve marks a pendency resolved and stamps its resolution time. It does
// not change the ticket status. Resolving an already-resolved pendency is a
// no-op returning the stored record.
func (s *PendencyService) Resolve(ctx context.Context, tenantID, ticketID, pendencyID string, expectedVersion int64, actor Actor) (*domain.Pendency, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	pendency := ticket.FindPendency(pendencyID)
	if pendency == nil {
		return nil, util.NewNotFound("pendency", map[string]any{"pendency_id": pendencyID})
	}
	if pendency.Resolved {
		return pendency, nil
	}

	updated, err := s.lifecycle.Apply(ctx, TransitionRequest{
		TenantID:          tenantID,
		TicketID:          ticketID,
		ExpectedVersion:   expectedVersion,
		Trigger:           domain.TriggerPendencyResolved,
		Actor:             actor,
		ResolvePendencyID: &pendencyID,
		Detail:            string(pendency.Kind),
	})
	if err != nil {
		return nil, err
	}
	return updated.FindPendency(pendencyID), nil
}
