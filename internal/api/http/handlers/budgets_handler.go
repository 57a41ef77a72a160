package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/fieldservice/internal/api/dto"
	"github.com/spec-kit/fieldservice/internal/service"
	apperrors "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// BudgetsHandler manages the budget approval workflow endpoints.
type BudgetsHandler struct {
	approvals *service.ApprovalService
}

// NewBudgetsHandler constructs handler.
func NewBudgetsHandler(approvals *service.ApprovalService) *BudgetsHandler {
	return &BudgetsHandler{approvals: approvals}
}

// Create POST /tickets/:id/budget.
func (h *BudgetsHandler) Create(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.CreateBudgetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	budget, err := h.approvals.CreateBudget(c.UserContext(), tenantID, c.Params("id"), actorFromRequest(c), service.CreateBudgetInput{
		ExpectedVersion: req.Version,
		PendencyID:      req.PendencyID,
		Title:           req.Title,
		ValidUntil:      req.ValidUntil,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewBudgetResponse(budget)})
}

// MarkSent POST /tickets/:id/budget/send.
func (h *BudgetsHandler) MarkSent(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.VersionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.approvals.MarkSent(c.UserContext(), tenantID, c.Params("id"), req.Version, actorFromRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Approve POST /tickets/:id/budget/approve.
func (h *BudgetsHandler) Approve(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.VersionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.approvals.Approve(c.UserContext(), tenantID, c.Params("id"), req.Version, actorFromRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Reject POST /tickets/:id/budget/reject.
func (h *BudgetsHandler) Reject(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.RejectBudgetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.approvals.Reject(c.UserContext(), tenantID, c.Params("id"), actorFromRequest(c), service.RejectInput{
		ExpectedVersion:    req.Version,
		Reason:             req.Reason,
		EquipmentToReturn:  req.EquipmentToReturn,
		ReturnInstructions: req.ReturnInstructions,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Get GET /budgets/:budgetId.
func (h *BudgetsHandler) Get(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	budget, err := h.approvals.GetBudget(c.UserContext(), tenantID, c.Params("budgetId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBudgetResponse(budget)})
}
