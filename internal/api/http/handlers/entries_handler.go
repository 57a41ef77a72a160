package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/fieldservice/internal/api/dto"
	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/service"
	apperrors "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// EntriesHandler manages schedule entry endpoints, including the public
// form submission.
type EntriesHandler struct {
	schedule *service.ScheduleService
}

// NewEntriesHandler constructs handler.
func NewEntriesHandler(schedule *service.ScheduleService) *EntriesHandler {
	return &EntriesHandler{schedule: schedule}
}

// Create POST /tickets/:id/entries.
func (h *EntriesHandler) Create(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.CreateEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	technicians := make([]domain.Technician, 0, len(req.Technicians))
	for _, tech := range req.Technicians {
		technicians = append(technicians, domain.Technician{ID: tech.ID, Name: tech.Name})
	}
	entry, warnings, err := h.schedule.CreateEntry(c.UserContext(), tenantID, c.Params("id"), actorFromRequest(c), service.CreateEntryInput{
		ExpectedVersion: req.Version,
		ScheduledAt:     req.ScheduledAt,
		Technicians:     technicians,
		ActivityTypeID:  req.ActivityTypeID,
		NewActivityName: req.NewActivityName,
		Observations:    req.Observations,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.EntryResult{
		Entry:    dto.NewEntryResponse(entry),
		Warnings: warnings,
	}})
}

// Start POST /tickets/:id/entries/:entryId/start.
func (h *EntriesHandler) Start(c *fiber.Ctx) error {
	return h.updateEntry(c, h.schedule.StartEntry)
}

// Cancel POST /tickets/:id/entries/:entryId/cancel.
func (h *EntriesHandler) Cancel(c *fiber.Ctx) error {
	return h.updateEntry(c, h.schedule.CancelEntry)
}

func (h *EntriesHandler) updateEntry(c *fiber.Ctx, op func(ctx context.Context, tenantID, ticketID, entryID string, expectedVersion int64, actor service.Actor) (*domain.ScheduleEntry, error)) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.VersionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := op(c.UserContext(), tenantID, c.Params("id"), c.Params("entryId"), req.Version, actorFromRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEntryResponse(entry)})
}

// Finalize POST /tickets/:id/entries/:entryId/finalize.
func (h *EntriesHandler) Finalize(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.FinalizeEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.schedule.Finalize(c.UserContext(), tenantID, c.Params("id"), c.Params("entryId"), actorFromRequest(c),
		finalizeInput(req.Version, req.Outcome, req.Technical, req.Financial))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEntryResponse(entry)})
}

// PublicSubmit POST /public/entries/submit. The single-use token in the body
// is the correlation key; no tenant or actor headers exist on this route.
func (h *EntriesHandler) PublicSubmit(c *fiber.Ctx) error {
	var req dto.PublicSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Token == "" {
		return apperrors.NewValidationError("token required", nil)
	}
	actor := service.Actor{ID: "public-form", Name: "Public form"}
	entry, err := h.schedule.SubmitPublicForm(c.UserContext(), req.Token, actor,
		finalizeInput(0, req.Outcome, req.Technical, req.Financial))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEntryResponse(entry)})
}

func finalizeInput(version int64, outcome domain.FinalizationOutcome, technical *dto.TechnicalPayload, financial *dto.FinancialPayload) service.FinalizeInput {
	input := service.FinalizeInput{
		ExpectedVersion: version,
		Outcome:         outcome,
	}
	if technical != nil {
		input.Technical = &domain.TechnicalDetails{Description: technical.Description}
	}
	if financial != nil {
		input.Financial = &domain.FinancialDetails{
			Type:            financial.Type,
			Description:     financial.Description,
			EstimatedAmount: financial.EstimatedAmount,
			PartsRemoved:    financial.PartsRemoved,
			PartsLocation:   financial.PartsLocation,
		}
	}
	return input
}
