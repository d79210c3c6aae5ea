package middleware

import (
	"fmt"
	"strings"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin is the "role" claim value that grants operator endpoints.
const RoleAdmin = "admin"

// Identity is the caller as asserted by the authentication service's token.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// JwtProtected validates HS256 bearer tokens and stores the parsed token
// under the "user" local.
func JwtProtected(cfg *config.Jwt) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{Key: []byte(cfg.Secret)},
		ContextKey:   "user",
		ErrorHandler: jwtError,
	})
}

// AdminOnly must run after JwtProtected.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := CurrentIdentity(c)
		if err != nil {
			return problem(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}
		if id.Role != RoleAdmin {
			return problem(c, fiber.StatusForbidden, "Forbidden", "admin role required")
		}
		return c.Next()
	}
}

// CurrentIdentity reads the caller from the validated token. The subject
// claim carries the user id; "user_id" is accepted for older tokens.
func CurrentIdentity(c *fiber.Ctx) (*Identity, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return nil, fmt.Errorf("%w: missing user context", domain.ErrUnauthorized)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims", domain.ErrUnauthorized)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", domain.ErrUnauthorized)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &Identity{UserID: userID, Email: email, Role: role}, nil
}

func jwtError(c *fiber.Ctx, err error) error {
	if strings.EqualFold(err.Error(), "missing or malformed JWT") {
		return problem(c, fiber.StatusBadRequest, "Bad Request", err.Error())
	}
	return problem(c, fiber.StatusUnauthorized, "Unauthorized", "Invalid or expired JWT")
}

// problem writes a minimal RFC 9457 body.
func problem(c *fiber.Ctx, status int, title, detail string) error {
	return c.Status(status).JSON(fiber.Map{
		"type":     "about:blank",
		"title":    title,
		"status":   status,
		"detail":   detail,
		"instance": c.OriginalURL(),
	}, "application/problem+json")
}
