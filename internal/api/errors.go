package api

import (
	"errors"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"github.com/gofiber/fiber/v2"
)

// writeError 把业务错误映射为 HTTP 响应：
//
//	validation       -> 400
//	conflict         -> 409
//	arithmetic_guard -> 409（需要确认后重试）
//	state            -> 422
//	storage          -> 500（不向外暴露内部原因）
func writeError(c *fiber.Ctx, err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"code": "internal", "message": "internal error"},
		})
	}

	status := fiber.StatusInternalServerError
	switch e.Kind {
	case apperr.KindValidation:
		status = fiber.StatusBadRequest
	case apperr.KindConflict, apperr.KindArithmeticGuard:
		status = fiber.StatusConflict
	case apperr.KindState:
		status = fiber.StatusUnprocessableEntity
	case apperr.KindStorage:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"code": "storage_error", "message": "storage operation failed"},
		})
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"code": e.Code, "kind": string(e.Kind), "message": e.Message},
	})
}
