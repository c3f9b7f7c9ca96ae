package wiregateway

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"

	"nexus/internal/config"
)

// bearerAuth validates a single trusted exchange's bearer token against a
// shared HS256 secret. Unlike the multi-tenant JWKS setups a consumer-facing
// API needs, nexus's Wire Gateway sits behind exactly one exchange (§5), so
// there is no issuer discovery or per-user provisioning here: a valid,
// unexpired token signed with config.Auth.JWTSecret is enough.
type bearerAuth struct {
	cfg config.AuthConfig
}

func newBearerAuth(cfg config.AuthConfig) *bearerAuth {
	return &bearerAuth{cfg: cfg}
}

func (a *bearerAuth) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing Authorization header"})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "malformed Authorization header"})
		}

		claims := &jwt.RegisteredClaims{}
		parsed, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !parsed.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		return c.Next()
	}
}
