package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/domain"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// Staff roles allowed to triage and move tickets.
var (
	TriageRoles   = []domain.Role{domain.RoleAdministrator, domain.RoleSupervisor}
	WorkRoles     = []domain.Role{domain.RoleAdministrator, domain.RoleSupervisor, domain.RoleTechnician}
	OperatorRoles = []domain.Role{domain.RoleAdministrator, domain.RoleSupervisor}
)

// RequireRoles ensures the principal has one of the allowed roles. No roles means any
// authenticated user.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role()]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
