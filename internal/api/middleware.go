package api

import (
	"strings"

	"github.com/YardLink/YardLink/internal/common/auth"
	"github.com/YardLink/YardLink/internal/common/config"
	"github.com/YardLink/YardLink/internal/common/middleware"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/gofiber/fiber/v2"
)

const (
	CtxDriverIDKey = "driver_id"
	CtxRolesKey    = "roles"
)

// JWTMiddleware 校验 Bearer token 并把身份放进请求上下文。
func JWTMiddleware(cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization header required")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization must be 'Bearer <token>'")
		}

		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxDriverIDKey, claims.Subject)
		c.Locals(CtxRolesKey, claims.Roles)
		return c.Next()
	}
}

// RequireRole 角色门禁。owner 视为具备 coordinator 的全部能力。
func RequireRole(allowed ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(CtxRolesKey).([]string)
		for _, want := range allowed {
			for _, have := range roles {
				if have == want {
					return c.Next()
				}
				if want == driver.RoleCoordinator && have == driver.RoleOwner {
					return c.Next()
				}
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient role")
	}
}

// RateLimit 全局令牌桶限流。
func RateLimit(limiter middleware.RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !limiter.Allow(c.UserContext()) {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}

func actorID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxDriverIDKey).(string)
	return id
}
