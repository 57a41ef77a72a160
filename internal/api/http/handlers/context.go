package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/fieldservice/internal/service"
	apperrors "github.com/spec-kit/fieldservice/pkg/util/errorutil"
)

// Identity headers. Authentication and permission checks happen upstream;
// the core only needs to know who acted and for which tenant.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
)

func tenantFromRequest(c *fiber.Ctx) (string, error) {
	tenant := strings.TrimSpace(c.Get(HeaderTenantID))
	if tenant == "" {
		return "", apperrors.NewValidationError("X-Tenant-ID header required", nil)
	}
	return tenant, nil
}

func actorFromRequest(c *fiber.Ctx) service.Actor {
	return service.Actor{
		ID:   strings.TrimSpace(c.Get(HeaderActorID)),
		Name: strings.TrimSpace(c.Get(HeaderActorName)),
	}
}
