package api

import (
	"time"

	"github.com/YardLink/YardLink/internal/common/auth"
	"github.com/YardLink/YardLink/internal/common/config"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DriverID  string    `json:"driver_id"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
}

// AuthHandler 登录入口。
type AuthHandler struct {
	drivers *driver.Repo
	cfg     config.AuthConfig
}

func NewAuthHandler(drivers *driver.Repo, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{drivers: drivers, cfg: cfg}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "username and password required")
	}

	d, err := h.drivers.FindByUsername(c.UserContext(), req.Username)
	if err != nil || !d.Active {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if !driver.VerifyPassword(req.Password, d.PasswordSalt, d.PasswordHash) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	ttl := time.Duration(h.cfg.ExpireMinutes) * time.Minute
	token, exp, err := auth.GenerateAccessToken(h.cfg, d.ID, d.RolesSlice(), ttl)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to issue token")
	}

	return c.JSON(loginResponse{
		Token:     token,
		ExpiresAt: exp,
		DriverID:  d.ID,
		Name:      d.Name,
		Roles:     d.RolesSlice(),
	})
}
