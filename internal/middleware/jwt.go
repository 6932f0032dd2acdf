package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/campuscare-go-api/internal/models"
	"github.com/noah-isme/campuscare-go-api/internal/utils"
)

// Identity is the authenticated principal decoded from a bearer token.
type Identity struct {
	UserID string
	Actor  models.ActorKind
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := IdentityFromToken(TokenFromHeader(c.Get("Authorization")), secret)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", identity.UserID)
		c.Locals("user_role", string(identity.Actor))

		return c.Next()
	}
}

// TokenFromHeader extracts the token from an Authorization bearer header.
func TokenFromHeader(authorization string) string {
	const bearer = "Bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(authorization[len(bearer):])
}

// IdentityFromToken verifies the token signature and expiry against the
// shared secret and decodes the {id, role} claims.
func IdentityFromToken(tokenString, secret string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.New("token not provided")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		if err != nil && errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.New("token expired")
		}
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}

	userID := extractUserIDFromClaims(claims)
	if userID == "" {
		return Identity{}, errors.New("invalid token payload")
	}

	actor, ok := models.ParseActorKind(extractUserRoleFromClaims(claims))
	if !ok {
		return Identity{}, errors.New("invalid token payload")
	}

	return Identity{UserID: userID, Actor: actor}, nil
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	keys := []string{"id", "sub", "user_id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			switch v := value.(type) {
			case string:
				if trimmed := strings.TrimSpace(v); trimmed != "" {
					return trimmed
				}
			case float64:
				return fmt.Sprintf("%d", int64(v))
			}
		}
	}
	return ""
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			switch v := value.(type) {
			case string:
				return v
			case []interface{}:
				for _, item := range v {
					if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
						return str
					}
				}
			}
		}
	}
	return ""
}
