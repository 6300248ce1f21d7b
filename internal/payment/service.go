package payment

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/YardLink/YardLink/internal/move"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
)

var (
	// ErrToleranceUnconfirmed 偏差告警未经人工确认不允许入账。
	ErrToleranceUnconfirmed = apperr.New(apperr.KindArithmeticGuard, "tolerance_unconfirmed",
		"expected gross differs from client payment beyond tolerance; staff confirmation required")

	// ErrBreakdownMismatch 提交的 breakdown 与入参对不上（通常是重算过期）。
	ErrBreakdownMismatch = apperr.New(apperr.KindValidation, "breakdown_mismatch",
		"breakdown does not match batch input")

	// ErrMoveNotPayable 批次里出现未完成或已结算的 move。
	ErrMoveNotPayable = apperr.New(apperr.KindState, "move_not_payable",
		"move must be completed and unpaid to enter a payment batch")
)

// BatchStore 批次持久化入口。
type BatchStore interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, b *PaymentBatch) error
	CreateRecord(ctx context.Context, tx *gorm.DB, r *PaymentRecord) error
}

// MoveStore 结算需要的 move 入口。
type MoveStore interface {
	GetForUpdate(tx *gorm.DB, id string) (*move.Move, error)
	Save(ctx context.Context, tx *gorm.DB, m *move.Move) error
}

// HistoryWriter 审计流水。
type HistoryWriter interface {
	Record(ctx context.Context, tx *gorm.DB, moveID, driverID, action, actionType, reason string) error
}

// ActorResolver 操作人解析。
type ActorResolver interface {
	FindByID(ctx context.Context, id string) (*driver.Driver, error)
}

// Service 结算服务：Calculate 是纯函数，这里负责把结果持久化。
type Service struct {
	batches BatchStore
	moves   MoveStore
	history HistoryWriter
	actors  ActorResolver
	runTx   move.TxRunner
	clock   func() time.Time
}

func NewService(batches BatchStore, moves MoveStore, history HistoryWriter, actors ActorResolver, runTx move.TxRunner) *Service {
	return &Service{
		batches: batches,
		moves:   moves,
		history: history,
		actors:  actors,
		runTx:   runTx,
		clock:   time.Now,
	}
}

// WithClock 替换时钟（测试用）。
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// CommitBatch 把一份 breakdown 落库：批次行 + 每司机到账记录 +
// 每条 move 的金额字段与 completed→paid 流转 + 每条 move 一条流水，
// 全部在同一事务内，要么全部成立要么全部回滚。
func (s *Service) CommitBatch(ctx context.Context, in BatchInput, bd *Breakdown, paymentDate time.Time, actorID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "payment.CommitBatch")
	defer span.Finish()

	if bd == nil {
		return "", apperr.Wrap(ErrBreakdownMismatch, "breakdown is nil")
	}
	// Calculate 是幂等纯函数：重算一遍防止提交过期/被改动的结果
	fresh, err := Calculate(in)
	if err != nil {
		return "", err
	}
	if !breakdownEqual(bd, fresh) {
		return "", ErrBreakdownMismatch
	}
	if fresh.ToleranceExceeded && !in.ToleranceConfirmed {
		return "", apperr.Wrap(ErrToleranceUnconfirmed,
			"expected gross %.2f vs client payment %.2f; confirm before committing",
			fresh.TotalGross, fresh.ClientPayment)
	}

	actor, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return "", apperr.Wrap(move.ErrActorNotAllowed, "actor %s not found", actorID)
	}
	if !actor.CanOverride() {
		return "", apperr.Wrap(move.ErrActorNotAllowed, "coordinator role required to commit payment batches")
	}

	now := s.clock()
	batch := &PaymentBatch{
		ID:            uuid.NewString(),
		BatchID:       NewBatchID(now),
		ClientPayment: fresh.ClientPayment,
		FactoringFee:  fresh.FactoringFee,
		ServiceFee:    fresh.ServiceFee,
		NumDrivers:    fresh.NumDrivers,
		MoveIDs:       joinMoveIDs(in.Moves),
		PaymentDate:   paymentDate,
		Processed:     true,
	}

	err = s.runTx(ctx, func(tx *gorm.DB) error {
		if err := s.batches.CreateBatch(ctx, tx, batch); err != nil {
			return err
		}
		for _, d := range fresh.Drivers {
			rec := &PaymentRecord{
				ID:          uuid.NewString(),
				BatchID:     batch.ID,
				DriverID:    d.DriverID,
				Amount:      d.NetPayment,
				ServiceFee:  d.ServiceFeeShare,
				Status:      "processed",
				Notes:       batch.BatchID + ": " + strconv.Itoa(len(d.MoveIDs)) + " moves",
				PaymentDate: paymentDate,
			}
			if err := s.batches.CreateRecord(ctx, tx, rec); err != nil {
				return err
			}
			for _, share := range d.Moves {
				if err := s.settleMove(ctx, tx, d.DriverID, share, batch, paymentDate, actorID, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return batch.ID, nil
}

// settleMove 把单条 move 标记为已结算并写入金额分摊。
func (s *Service) settleMove(ctx context.Context, tx *gorm.DB, driverID string, share MoveShare, batch *PaymentBatch, paymentDate time.Time, actorID string, now time.Time) error {
	m, err := s.moves.GetForUpdate(tx, share.MoveID)
	if err != nil {
		return err
	}
	if m.Status != move.StatusCompleted || m.PaymentStatus == move.PaymentPaid {
		return apperr.Wrap(ErrMoveNotPayable, "move %s is %s / payment %s", m.ID, m.Status, m.PaymentStatus)
	}
	if m.DriverID != driverID {
		return apperr.Wrap(ErrBreakdownMismatch, "move %s belongs to driver %s, breakdown says %s", m.ID, m.DriverID, driverID)
	}

	net := share.Net
	factoring := share.FactoringShare
	serviceFee := share.ServiceFeeShare
	m.NetPayment = &net
	m.FactoringFeeShare = &factoring
	m.ServiceFeeShare = &serviceFee
	m.PaymentStatus = move.PaymentPaid
	m.PaymentBatchID = batch.ID
	m.PaymentDate = &paymentDate

	if err := move.ApplyTransition(m, move.StatusPaid, now); err != nil {
		return err
	}
	if err := s.moves.Save(ctx, tx, m); err != nil {
		return err
	}
	return s.history.Record(ctx, tx, m.ID, actorID, string(move.StatusPaid), ledger.ActionTypeCoordinator, "batch "+batch.BatchID)
}

// breakdownEqual 比较关键金额是否一致（1 分钱容差，浮点比较用）。
func breakdownEqual(a, b *Breakdown) bool {
	const eps = 0.01
	if a.NumDrivers != b.NumDrivers || len(a.Drivers) != len(b.Drivers) {
		return false
	}
	if math.Abs(a.ClientPayment-b.ClientPayment) > eps ||
		math.Abs(a.ServiceFee-b.ServiceFee) > eps ||
		math.Abs(a.FactoringFee-b.FactoringFee) > eps {
		return false
	}
	for i := range a.Drivers {
		if a.Drivers[i].DriverID != b.Drivers[i].DriverID {
			return false
		}
		if math.Abs(a.Drivers[i].NetPayment-b.Drivers[i].NetPayment) > eps {
			return false
		}
	}
	return true
}

func joinMoveIDs(moves []MoveGross) string {
	ids := make([]string, 0, len(moves))
	for _, m := range moves {
		ids = append(ids, m.MoveID)
	}
	return strings.Join(ids, ",")
}
