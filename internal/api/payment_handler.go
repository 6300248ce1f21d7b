package api

import (
	"time"

	"github.com/YardLink/YardLink/internal/move"
	"github.com/YardLink/YardLink/internal/payment"
	"github.com/gofiber/fiber/v2"
)

// PaymentHandler 结算端：预览分摊、提交入账、查司机到账。
type PaymentHandler struct {
	service     *payment.Service
	paymentRepo *payment.Repo
	moveRepo    *move.Repo
}

func NewPaymentHandler(service *payment.Service, paymentRepo *payment.Repo, moveRepo *move.Repo) *PaymentHandler {
	return &PaymentHandler{service: service, paymentRepo: paymentRepo, moveRepo: moveRepo}
}

// PendingMoves GET /payments/pending
// 已完成未结算的 move，结算批次的备选集合。
func (h *PaymentHandler) PendingMoves(c *fiber.Ctx) error {
	moves, err := h.moveRepo.ListPendingPayment(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"moves": moves})
}

// Preview POST /payments/preview
// 纯计算，不落库：同样的输入总是返回逐位相同的 breakdown。
func (h *PaymentHandler) Preview(c *fiber.Ctx) error {
	var in payment.BatchInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	bd, err := payment.Calculate(in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(bd)
}

type commitRequest struct {
	Input       payment.BatchInput `json:"input"`
	Breakdown   *payment.Breakdown `json:"breakdown"`
	PaymentDate string             `json:"payment_date"` // "2025-08-15"
}

// Commit POST /payments/commit
func (h *PaymentHandler) Commit(c *fiber.Ctx) error {
	var req commitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	paymentDate := time.Now()
	if req.PaymentDate != "" {
		d, err := time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "payment_date must be YYYY-MM-DD")
		}
		paymentDate = d
	}

	batchID, err := h.service.CommitBatch(c.UserContext(), req.Input, req.Breakdown, paymentDate, actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"batch_id": batchID})
}

// Batch GET /payments/batches/:id
func (h *PaymentHandler) Batch(c *fiber.Ctx) error {
	b, err := h.paymentRepo.GetBatch(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

// DriverRecords GET /payments/drivers/:id/records
func (h *PaymentHandler) DriverRecords(c *fiber.Ctx) error {
	recs, total, err := h.paymentRepo.ListRecordsByDriver(c.UserContext(), c.Params("id"), c.QueryInt("offset"), c.QueryInt("limit"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"records": recs, "total": total})
}
