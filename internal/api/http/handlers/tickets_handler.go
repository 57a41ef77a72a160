package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/fieldservice/internal/api/dto"
	"github.com/spec-kit/fieldservice/internal/domain"
	"github.com/spec-kit/fieldservice/internal/repository"
	"github.com/spec-kit/fieldservice/internal/service"
	apperrors "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.CreateTicket(c.UserContext(), tenantID, actorFromRequest(c), service.CreateTicketInput{
		Kind:      req.Kind,
		Urgent:    req.Urgent,
		ClientRef: req.ClientRef,
		Summary:   req.Summary,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	filter := repository.TicketFilter{
		TenantID: tenantID,
		Limit:    c.QueryInt("limit", 20),
		Offset:   c.QueryInt("offset", 0),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind := domain.TicketKind(strings.ToUpper(raw))
		filter.Kind = &kind
	}
	if raw := strings.TrimSpace(c.Query("urgent")); raw != "" {
		urgent, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid urgent filter", nil)
		}
		filter.Urgent = &urgent
	}

	tickets, err := h.lifecycle.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), tenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Complete POST /tickets/:id/complete.
func (h *TicketsHandler) Complete(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.VersionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Complete(c.UserContext(), tenantID, c.Params("id"), req.Version, actorFromRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// Cancel POST /tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.CancelTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Cancel(c.UserContext(), tenantID, c.Params("id"), req.Version, actorFromRequest(c), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}
