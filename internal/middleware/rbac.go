package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/utils"
)

// RequireActor ensures the authenticated user is one of the allowed actor kinds.
func RequireActor(kinds ...models.ActorKind) fiber.Handler {
	allowed := make(map[models.ActorKind]struct{}, len(kinds))
	for _, kind := range kinds {
		allowed[kind] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		kind, ok := ActorFromLocals(c)
		if !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		if _, ok := allowed[kind]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// ActorFromLocals decodes the actor kind stored by the auth middleware.
func ActorFromLocals(c *fiber.Ctx) (models.ActorKind, bool) {
	role, _ := c.Locals("user_role").(string)
	return models.ParseActorKind(role)
}

// UserIDFromLocals returns the authenticated user id, or empty when absent.
func UserIDFromLocals(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
