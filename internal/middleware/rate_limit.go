package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-exercise-api/internal/utils"
)

// RateLimit limits how often one profile (or one address, for anonymous callers)
// may hit the routes behind it.
func RateLimit(scope string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if identity := IdentityFromCtx(c); identity.ProfileID != 0 {
				return fmt.Sprintf("%s:profile:%d", scope, identity.ProfileID)
			}
			return fmt.Sprintf("%s:ip:%s", scope, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many submissions, try again later", nil)
		},
	})
}
