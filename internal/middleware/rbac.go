package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exercise-api/internal/utils"
)

// RequireRole ensures the authenticated caller holds one of the allowed token roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		identity := IdentityFromCtx(c)
		if identity.ProfileID == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if _, ok := allowed[identity.Role]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

// RequireAuthenticated rejects anonymous callers on routes mounted behind JWTOptional.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if IdentityFromCtx(c).ProfileID == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return c.Next()
	}
}
