package api

import (
	"time"

	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/YardLink/YardLink/internal/move"
	"github.com/gofiber/fiber/v2"
)

// DispatchHandler 协调员调度端：建单、指派、取消、全量查询。
type DispatchHandler struct {
	moves          *move.Service
	moveRepo       *move.Repo
	history        *ledger.Repo
	reservationTTL time.Duration
	confirmHold    time.Duration
}

func NewDispatchHandler(moves *move.Service, moveRepo *move.Repo, history *ledger.Repo, reservationTTL, confirmHold time.Duration) *DispatchHandler {
	return &DispatchHandler{moves: moves, moveRepo: moveRepo, history: history, reservationTTL: reservationTTL, confirmHold: confirmHold}
}

type createMoveRequest struct {
	NewTrailerID          string  `json:"new_trailer_id"`
	OldTrailerID          string  `json:"old_trailer_id"`
	OriginLocationID      string  `json:"origin_location_id"`
	DestinationLocationID string  `json:"destination_location_id"`
	EstimatedMiles        float64 `json:"estimated_miles"`
	GrossAmount           float64 `json:"gross_amount"`
}

// Create POST /dispatch/moves
func (h *DispatchHandler) Create(c *fiber.Ctx) error {
	var req createMoveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.moves.Create(c.UserContext(), move.CreateInput{
		NewTrailerID:          req.NewTrailerID,
		OldTrailerID:          req.OldTrailerID,
		OriginLocationID:      req.OriginLocationID,
		DestinationLocationID: req.DestinationLocationID,
		EstimatedMiles:        req.EstimatedMiles,
		GrossAmount:           req.GrossAmount,
	}, actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

// Assign POST /dispatch/moves/:id/assign
func (h *DispatchHandler) Assign(c *fiber.Ctx) error {
	var req assignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.moves.AssignDriver(c.UserContext(), c.Params("id"), req.DriverID, actorID(c), h.reservationTTL, h.confirmHold)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel POST /dispatch/moves/:id/cancel
func (h *DispatchHandler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.moves.Cancel(c.UserContext(), c.Params("id"), actorID(c), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// List GET /dispatch/moves
func (h *DispatchHandler) List(c *fiber.Ctx) error {
	moves, total, err := h.moveRepo.List(c.UserContext(), move.ListFilter{
		DriverID:      c.Query("driver_id"),
		Status:        move.Status(c.Query("status")),
		PaymentStatus: move.PaymentStatus(c.Query("payment_status")),
		Offset:        c.QueryInt("offset"),
		Limit:         c.QueryInt("limit"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"moves": moves, "total": total})
}

// Get GET /dispatch/moves/:id
func (h *DispatchHandler) Get(c *fiber.Ctx) error {
	m, err := h.moveRepo.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// History GET /dispatch/moves/:id/history
func (h *DispatchHandler) History(c *fiber.Ctx) error {
	rows, err := h.history.ListByMove(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"history": rows})
}
