package api

import (
	"github.com/YardLink/YardLink/internal/common/config"
	"github.com/YardLink/YardLink/internal/common/middleware"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/gofiber/fiber/v2"
)

// Handlers 汇集全部 HTTP 入口。
type Handlers struct {
	Auth     *AuthHandler
	Portal   *PortalHandler
	Dispatch *DispatchHandler
	Payment  *PaymentHandler
	Admin    *AdminHandler
}

// RegisterRoutes 挂载路由。
// /portal 下登录即可；/dispatch /payments /admin 需要 coordinator。
func RegisterRoutes(app *fiber.App, h *Handlers, authCfg config.AuthConfig) {
	app.Use(RateLimit(middleware.NewTokenBucket(200, 100)))

	app.Post("/login", h.Auth.Login)

	authed := app.Group("", JWTMiddleware(authCfg))

	portal := authed.Group("/portal")
	portal.Get("/offers", h.Portal.ListOffers)
	portal.Post("/reservations", h.Portal.Reserve)
	portal.Post("/reservations/confirm", h.Portal.Confirm)
	portal.Post("/reservations/release", h.Portal.Release)
	portal.Get("/moves", h.Portal.MyMoves)
	portal.Post("/moves/:id/advance", h.Portal.Advance)
	portal.Get("/moves/:id/history", h.Portal.MoveHistory)

	coordinator := authed.Group("", RequireRole(driver.RoleCoordinator, driver.RoleOwner))

	dispatch := coordinator.Group("/dispatch")
	dispatch.Post("/moves", h.Dispatch.Create)
	dispatch.Get("/moves", h.Dispatch.List)
	dispatch.Get("/moves/:id", h.Dispatch.Get)
	dispatch.Get("/moves/:id/history", h.Dispatch.History)
	dispatch.Post("/moves/:id/assign", h.Dispatch.Assign)
	dispatch.Post("/moves/:id/cancel", h.Dispatch.Cancel)

	payments := coordinator.Group("/payments")
	payments.Get("/pending", h.Payment.PendingMoves)
	payments.Post("/preview", h.Payment.Preview)
	payments.Post("/commit", h.Payment.Commit)
	payments.Get("/batches/:id", h.Payment.Batch)
	payments.Get("/drivers/:id/records", h.Payment.DriverRecords)

	admin := coordinator.Group("/admin")
	admin.Post("/drivers", h.Admin.CreateDriver)
	admin.Get("/drivers", h.Admin.ListDrivers)
	admin.Patch("/drivers/:id", h.Admin.UpdateDriver)
	admin.Post("/locations", h.Admin.UpsertLocation)
	admin.Post("/trailers", h.Admin.UpsertTrailer)
	admin.Post("/reservations/sweep", h.Admin.SweepReservations)
	admin.Post("/rates", h.Admin.UpsertRate)
	admin.Get("/rates", h.Admin.ListRates)
}
