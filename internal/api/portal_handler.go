package api

import (
	"time"

	"github.com/YardLink/YardLink/internal/assignment"
	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/YardLink/YardLink/internal/move"
	"github.com/gofiber/fiber/v2"
)

// PortalHandler 司机自助端：看单、抢单、确认、放弃、推进状态。
type PortalHandler struct {
	allocator *assignment.Allocator
	moves     *move.Service
	moveRepo  *move.Repo
	history   *ledger.Repo
}

func NewPortalHandler(allocator *assignment.Allocator, moves *move.Service, moveRepo *move.Repo, history *ledger.Repo) *PortalHandler {
	return &PortalHandler{allocator: allocator, moves: moves, moveRepo: moveRepo, history: history}
}

// ListOffers GET /portal/offers
func (h *PortalHandler) ListOffers(c *fiber.Ctx) error {
	offers, err := h.allocator.ListAvailable(c.UserContext(), actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"offers": offers})
}

type reserveRequest struct {
	PairID string `json:"pair_id"`
}

// Reserve POST /portal/reservations
func (h *PortalHandler) Reserve(c *fiber.Ctx) error {
	var req reserveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	handle, err := h.allocator.Reserve(c.UserContext(), actorID(c), req.PairID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(handle)
}

type handleRequest struct {
	NewTrailerID string    `json:"new_trailer_id"`
	OldTrailerID string    `json:"old_trailer_id"`
	ReservedAt   time.Time `json:"reserved_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Reason       string    `json:"reason"`
}

func (r handleRequest) toHandle(driverID string) *assignment.ReservationHandle {
	return &assignment.ReservationHandle{
		DriverID:     driverID,
		NewTrailerID: r.NewTrailerID,
		OldTrailerID: r.OldTrailerID,
		ReservedAt:   r.ReservedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

// Confirm POST /portal/reservations/confirm
func (h *PortalHandler) Confirm(c *fiber.Ctx) error {
	var req handleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	moveID, err := h.allocator.Confirm(c.UserContext(), req.toHandle(actorID(c)))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"move_id": moveID})
}

// Release POST /portal/reservations/release
func (h *PortalHandler) Release(c *fiber.Ctx) error {
	var req handleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.allocator.Release(c.UserContext(), req.toHandle(actorID(c)), req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MyMoves GET /portal/moves
func (h *PortalHandler) MyMoves(c *fiber.Ctx) error {
	moves, total, err := h.moveRepo.List(c.UserContext(), move.ListFilter{
		DriverID: actorID(c),
		Status:   move.Status(c.Query("status")),
		Offset:   c.QueryInt("offset"),
		Limit:    c.QueryInt("limit"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"moves": moves, "total": total})
}

type advanceRequest struct {
	ToState      string   `json:"to_state"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// Advance POST /portal/moves/:id/advance
// 司机推进自己的 move；协调员走同一入口时按覆盖记审计。
func (h *PortalHandler) Advance(c *fiber.Ctx) error {
	var req advanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	m, err := h.moves.Advance(c.UserContext(), c.Params("id"), move.Status(req.ToState), actorID(c), req.EvidenceRefs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// MoveHistory GET /portal/moves/:id/history
func (h *PortalHandler) MoveHistory(c *fiber.Ctx) error {
	rows, err := h.history.ListByMove(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"history": rows})
}
