package assignment

import (
	"context"
	"sort"
	"time"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/YardLink/YardLink/internal/move"
	"github.com/YardLink/YardLink/internal/registry"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
)

// 预订窗口默认值。
const (
	// DefaultReservationTTL 自助预订的独占窗口：司机必须在窗口内确认。
	DefaultReservationTTL = 30 * time.Minute
	// DefaultConfirmHold 确认后挂车继续保留给司机的时长（到出发为止）。
	DefaultConfirmHold = 7 * 24 * time.Hour
)

var (
	ErrAlreadyReserved    = apperr.New(apperr.KindConflict, "already_reserved", "trailer pair is held by another driver")
	ErrDriverAtCapacity   = apperr.New(apperr.KindConflict, "driver_at_capacity", "driver has reached max concurrent moves")
	ErrReservationExpired = apperr.New(apperr.KindConflict, "reservation_expired", "reservation window has elapsed")
	ErrDriverNotEligible  = apperr.New(apperr.KindValidation, "driver_not_eligible", "driver must have COI and W9 on file")
	ErrPairNotFound       = apperr.New(apperr.KindValidation, "pair_not_found", "trailer pair not found")
)

// TrailerStore 挂车注册表入口（registry.Repo 为生产实现）。
type TrailerStore interface {
	ListAvailablePairs(ctx context.Context, now time.Time) ([][2]*registry.Trailer, error)
	FindTrailerByID(ctx context.Context, id string, now time.Time) (*registry.Trailer, error)
	FindLocationByID(ctx context.Context, id string) (*registry.Location, error)
	ReservePair(ctx context.Context, driverID, newTrailerID, oldTrailerID string, now, until time.Time) error
	ReleasePair(ctx context.Context, tx *gorm.DB, driverID string, trailerIDs ...string) error
	ExtendHold(tx *gorm.DB, driverID string, until time.Time, trailerIDs ...string) error
}

// MoveStore move 写入口。
type MoveStore interface {
	CountActiveByDriver(ctx context.Context, driverID string) (int64, error)
	Create(ctx context.Context, tx *gorm.DB, m *move.Move) error
}

// DriverStore 司机档案入口。
type DriverStore interface {
	FindByID(ctx context.Context, id string) (*driver.Driver, error)
}

// HistoryWriter 审计流水。
type HistoryWriter interface {
	Record(ctx context.Context, tx *gorm.DB, moveID, driverID, action, actionType, reason string) error
}

// Pricer 线路报价（rate.Table 为生产实现）。
type Pricer interface {
	Estimate(origin, destination string, miles float64) (amount, estMiles float64)
}

// MoveOffer 一条可自助认领的挂车对报价。
type MoveOffer struct {
	PairID           string  `json:"pair_id"` // 约定取新挂车 id
	NewTrailerNumber string  `json:"new_trailer_number"`
	OldTrailerNumber string  `json:"old_trailer_number"`
	OriginTitle      string  `json:"origin"`
	DestinationTitle string  `json:"destination"`
	EstimatedMiles   float64 `json:"estimated_miles"`
	Payout           float64 `json:"payout"`        // 标准线路价（毛额）
	EstimatedNet     float64 `json:"estimated_net"` // 扣除约 3% 保理费后的估算
}

// ReservationHandle 一次成功预订的凭据。
// 不落独立的表：预订状态存在两台挂车行上，handle 携带校验所需的键。
type ReservationHandle struct {
	ID           string    `json:"id"`
	DriverID     string    `json:"driver_id"`
	NewTrailerID string    `json:"new_trailer_id"`
	OldTrailerID string    `json:"old_trailer_id"`
	ReservedAt   time.Time `json:"reserved_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Allocator 自助接单分配器。
type Allocator struct {
	trailers TrailerStore
	moves    MoveStore
	drivers  DriverStore
	history  HistoryWriter
	pricer   Pricer
	runTx    move.TxRunner
	clock    func() time.Time

	ReservationTTL time.Duration
	ConfirmHold    time.Duration
}

func NewAllocator(trailers TrailerStore, moves MoveStore, drivers DriverStore, history HistoryWriter, pricer Pricer, runTx move.TxRunner) *Allocator {
	return &Allocator{
		trailers:       trailers,
		moves:          moves,
		drivers:        drivers,
		history:        history,
		pricer:         pricer,
		runTx:          runTx,
		clock:          time.Now,
		ReservationTTL: DefaultReservationTTL,
		ConfirmHold:    DefaultConfirmHold,
	}
}

// WithClock 替换时钟（测试用）。
func (a *Allocator) WithClock(clock func() time.Time) *Allocator {
	if clock != nil {
		a.clock = clock
	}
	return a
}

// ListAvailable 返回当前可认领的挂车对报价，按报酬降序、里程升序排列。
// 纯读取；过期预订在注册表的惰性守卫里按可用处理。
func (a *Allocator) ListAvailable(ctx context.Context, driverID string) ([]MoveOffer, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "assignment.ListAvailable")
	defer span.Finish()

	now := a.clock()
	pairs, err := a.trailers.ListAvailablePairs(ctx, now)
	if err != nil {
		return nil, err
	}

	offers := make([]MoveOffer, 0, len(pairs))
	for _, p := range pairs {
		nt, ot := p[0], p[1]
		offer, err := a.priceOffer(ctx, nt, ot)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}

	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].Payout != offers[j].Payout {
			return offers[i].Payout > offers[j].Payout
		}
		return offers[i].EstimatedMiles < offers[j].EstimatedMiles
	})
	return offers, nil
}

// priceOffer 新挂车送往旧挂车所在地：起点是新挂车当前位置，
// 终点是旧挂车当前位置。
func (a *Allocator) priceOffer(ctx context.Context, nt, ot *registry.Trailer) (MoveOffer, error) {
	origin, err := a.trailers.FindLocationByID(ctx, nt.CurrentLocationID)
	if err != nil {
		return MoveOffer{}, err
	}
	dest, err := a.trailers.FindLocationByID(ctx, ot.CurrentLocationID)
	if err != nil {
		return MoveOffer{}, err
	}
	amount, miles := a.pricer.Estimate(origin.Title, dest.Title, 0)
	return MoveOffer{
		PairID:           nt.ID,
		NewTrailerNumber: nt.Number,
		OldTrailerNumber: ot.Number,
		OriginTitle:      origin.Title,
		DestinationTitle: dest.Title,
		EstimatedMiles:   miles,
		Payout:           amount,
		EstimatedNet:     amount * (1 - FactoringEstimate),
	}, nil
}

// FactoringEstimate 报价展示用的保理费估算比例，与结算常量一致。
const FactoringEstimate = 0.03

// Reserve 司机独占认领一对挂车。
// 核心约束：抢占必须是单条条件更新，并发请求同一对挂车时恰好一个成功。
func (a *Allocator) Reserve(ctx context.Context, driverID, pairID string) (*ReservationHandle, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "assignment.Reserve")
	defer span.Finish()

	d, err := a.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, apperr.Wrap(ErrDriverNotEligible, "driver %s not found", driverID)
	}
	if !d.CanSelfAssign() {
		return nil, ErrDriverNotEligible
	}

	active, err := a.moves.CountActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if active >= int64(d.MaxConcurrentMoves) {
		return nil, apperr.Wrap(ErrDriverAtCapacity, "driver %s already has %d active moves (max %d)", driverID, active, d.MaxConcurrentMoves)
	}

	now := a.clock()
	nt, err := a.trailers.FindTrailerByID(ctx, pairID, now)
	if err != nil {
		return nil, apperr.Wrap(ErrPairNotFound, "trailer %s not found", pairID)
	}
	if !nt.IsNew || nt.PairedTrailerID == "" {
		return nil, apperr.Wrap(ErrPairNotFound, "trailer %s is not the head of a swap pair", pairID)
	}

	// 同一司机重复点击：返回现有预订而不是报冲突
	if nt.Status == registry.TrailerReserved && nt.ReservedByDriver == driverID && nt.ReservedUntil != nil {
		return &ReservationHandle{
			ID:           uuid.NewString(),
			DriverID:     driverID,
			NewTrailerID: nt.ID,
			OldTrailerID: nt.PairedTrailerID,
			ReservedAt:   now,
			ExpiresAt:    *nt.ReservedUntil,
		}, nil
	}

	until := now.Add(a.ReservationTTL)
	if err := a.trailers.ReservePair(ctx, driverID, nt.ID, nt.PairedTrailerID, now, until); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil, apperr.Wrap(ErrAlreadyReserved, "pair %s is held by another driver", pairID)
		}
		return nil, err
	}

	return &ReservationHandle{
		ID:           uuid.NewString(),
		DriverID:     driverID,
		NewTrailerID: nt.ID,
		OldTrailerID: nt.PairedTrailerID,
		ReservedAt:   now,
		ExpiresAt:    until,
	}, nil
}

// Confirm 在预订窗口内确认：创建 assigned 状态的 move（assignment_type=self），
// 并把挂车保留期延长到出发窗口。窗口已过则返回 ReservationExpired。
func (a *Allocator) Confirm(ctx context.Context, h *ReservationHandle) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "assignment.Confirm")
	defer span.Finish()

	if h == nil {
		return "", apperr.New(apperr.KindValidation, "handle_required", "reservation handle is nil")
	}
	now := a.clock()
	if !h.ExpiresAt.After(now) {
		return "", apperr.Wrap(ErrReservationExpired, "reservation for pair %s expired at %s", h.NewTrailerID, h.ExpiresAt.Format(time.RFC3339))
	}

	// 惰性守卫读取：窗口其实已过时这里会看到挂车被清回 available
	nt, err := a.trailers.FindTrailerByID(ctx, h.NewTrailerID, now)
	if err != nil {
		return "", apperr.Wrap(ErrPairNotFound, "trailer %s not found", h.NewTrailerID)
	}
	ot, err := a.trailers.FindTrailerByID(ctx, h.OldTrailerID, now)
	if err != nil {
		return "", apperr.Wrap(ErrPairNotFound, "trailer %s not found", h.OldTrailerID)
	}
	if nt.Status != registry.TrailerReserved || nt.ReservedByDriver != h.DriverID ||
		ot.Status != registry.TrailerReserved || ot.ReservedByDriver != h.DriverID {
		return "", apperr.Wrap(ErrReservationExpired, "reservation for pair %s is no longer held", h.NewTrailerID)
	}

	offer, err := a.priceOffer(ctx, nt, ot)
	if err != nil {
		return "", err
	}

	m := &move.Move{
		ID:                    uuid.NewString(),
		SystemID:              move.NewSystemID(now, uuid.NewString()[:6]),
		NewTrailerID:          nt.ID,
		OldTrailerID:          ot.ID,
		OriginLocationID:      nt.CurrentLocationID,
		DestinationLocationID: ot.CurrentLocationID,
		DriverID:              h.DriverID,
		Status:                move.StatusAssigned,
		AssignmentType:        move.AssignSelf,
		EstimatedMiles:        offer.EstimatedMiles,
		GrossAmount:           offer.Payout,
		PaymentStatus:         move.PaymentPending,
		AssignedAt:            &now,
	}

	err = a.runTx(ctx, func(tx *gorm.DB) error {
		if err := a.moves.Create(ctx, tx, m); err != nil {
			return err
		}
		// 确认后的保留不再是 30 分钟的抢占窗口，而是到出发为止的持有
		hold := now.Add(a.ConfirmHold)
		if err := a.trailers.ExtendHold(tx, h.DriverID, hold, h.NewTrailerID, h.OldTrailerID); err != nil {
			return err
		}
		return a.history.Record(ctx, tx, m.ID, h.DriverID, string(move.StatusAssigned), ledger.ActionTypeSelf, "self-assigned")
	})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// Release 确认前的主动放弃：释放两台挂车并记一条流水，同一事务提交。
// 此时还没有 move，流水的 move_id 为空，对端挂车写进 reason 便于追溯。
func (a *Allocator) Release(ctx context.Context, h *ReservationHandle, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "assignment.Release")
	defer span.Finish()

	if h == nil {
		return apperr.New(apperr.KindValidation, "handle_required", "reservation handle is nil")
	}
	return a.runTx(ctx, func(tx *gorm.DB) error {
		if err := a.trailers.ReleasePair(ctx, tx, h.DriverID, h.NewTrailerID, h.OldTrailerID); err != nil {
			return err
		}
		note := "pair " + h.NewTrailerID + "/" + h.OldTrailerID
		if reason != "" {
			note = reason + " (" + note + ")"
		}
		return a.history.Record(ctx, tx, "", h.DriverID, "released", ledger.ActionTypeSelf, note)
	})
}
