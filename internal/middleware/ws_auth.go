package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campuscare-go-api/internal/utils"
)

// WSProtected authenticates the websocket handshake before the upgrade is
// accepted. The token may arrive in the `token` query parameter (the
// connection-time auth field) or an Authorization bearer header. The check
// runs exactly once per connection; tokens are not re-verified mid-session,
// so an expiry during an open socket does not drop it.
func WSProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := strings.TrimSpace(c.Query("token"))
		if tokenString == "" {
			tokenString = TokenFromHeader(c.Get("Authorization"))
		}

		identity, err := IdentityFromToken(tokenString, secret)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", identity.UserID)
		c.Locals("user_role", string(identity.Actor))

		return c.Next()
	}
}
