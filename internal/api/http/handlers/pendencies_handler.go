package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/fieldservice/internal/api/dto"
	"github.com/spec-kit/fieldservice/internal/service"
	apperrors "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// PendenciesHandler exposes pendency resolution.
type PendenciesHandler struct {
	pendencies *service.PendencyService
}

// NewPendenciesHandler constructs handler.
func NewPendenciesHandler(pendencies *service.PendencyService) *PendenciesHandler {
	return &PendenciesHandler{pendencies: pendencies}
}

// Resolve POST /tickets/:id/pendencies/:pendencyId/resolve.
func (h *PendenciesHandler) Resolve(c *fiber.Ctx) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return err
	}
	var req dto.VersionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	pendency, err := h.pendencies.Resolve(c.UserContext(), tenantID, c.Params("id"), c.Params("pendencyId"), req.Version, actorFromRequest(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPendencyResponse(pendency)})
}
