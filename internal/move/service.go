package move

import (
	"context"
	"strings"
	"time"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
)

var (
	// ErrActorNotAllowed 只有被指派的司机本人，或具备覆盖能力的
	// 协调员/老板可以推进一个 move；覆盖必须留下审计流水。
	ErrActorNotAllowed = apperr.New(apperr.KindValidation, "actor_not_allowed", "actor may not operate on this move")

	// ErrMoveTerminal 终态 move 不可再操作。
	ErrMoveTerminal = apperr.New(apperr.KindState, "move_terminal", "move is in a terminal state")
)

// Store move 持久化入口（*Repo 为生产实现，测试用内存 mock）。
type Store interface {
	GetByID(ctx context.Context, id string) (*Move, error)
	GetForUpdate(tx *gorm.DB, id string) (*Move, error)
	Create(ctx context.Context, tx *gorm.DB, m *Move) error
	Save(ctx context.Context, tx *gorm.DB, m *Move) error
}

// TrailerOps 生命周期推进需要的挂车联动（registry.Repo 为生产实现）。
type TrailerOps interface {
	ReservePair(ctx context.Context, driverID, newTrailerID, oldTrailerID string, now, until time.Time) error
	ReleasePair(ctx context.Context, tx *gorm.DB, driverID string, trailerIDs ...string) error
	MarkInTransit(tx *gorm.DB, driverID string, trailerIDs ...string) error
	MarkDelivered(tx *gorm.DB, trailerID, locationID string) error
	ReturnToBase(tx *gorm.DB, trailerID, baseLocationID string) error
	ReleaseTrailers(tx *gorm.DB, trailerIDs ...string) error
	ExtendHold(tx *gorm.DB, driverID string, until time.Time, trailerIDs ...string) error
	BaseLocationID(ctx context.Context) (string, error)
}

// HistoryWriter 审计流水（ledger.Repo 为生产实现）。
type HistoryWriter interface {
	Record(ctx context.Context, tx *gorm.DB, moveID, driverID, action, actionType, reason string) error
}

// ActorResolver 操作人解析（driver.Repo 为生产实现）。
type ActorResolver interface {
	FindByID(ctx context.Context, id string) (*driver.Driver, error)
}

// TxRunner 把 fn 放进一个提交/回滚完整的事务里执行。
// 生产环境包一层 gorm 的 Transaction，测试里直接 fn(nil)。
type TxRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// GormTxRunner 标准实现。
func GormTxRunner(db *gorm.DB) TxRunner {
	return func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return db.WithContext(ctx).Transaction(fn)
	}
}

// Service move 生命周期引擎。
// 每次流转 = 状态机校验 + move 落库 + 挂车联动 + 恰好一条流水，同一事务。
type Service struct {
	moves    Store
	trailers TrailerOps
	history  HistoryWriter
	actors   ActorResolver
	runTx    TxRunner
	clock    func() time.Time
}

func NewService(moves Store, trailers TrailerOps, history HistoryWriter, actors ActorResolver, runTx TxRunner) *Service {
	return &Service{
		moves:    moves,
		trailers: trailers,
		history:  history,
		actors:   actors,
		runTx:    runTx,
		clock:    time.Now,
	}
}

// WithClock 替换时钟（测试用）。
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// authorize 校验操作人资格，返回写入流水的 action_type。
func (s *Service) authorize(m *Move, actor *driver.Driver) (string, error) {
	if actor == nil {
		return "", apperr.Wrap(ErrActorNotAllowed, "actor not found")
	}
	if m.DriverID != "" && m.DriverID == actor.ID {
		return ledger.ActionTypeSelf, nil
	}
	if actor.CanOverride() {
		return ledger.ActionTypeOverride, nil
	}
	return "", apperr.Wrap(ErrActorNotAllowed, "driver %s may not operate on move %s", actor.ID, m.ID)
}

// Advance 把 move 推进到 toState（必须是当前状态的唯一后继，不允许跳跃）。
// pickup_complete / completed 必须携带凭证（POD）。
func (s *Service) Advance(ctx context.Context, moveID string, toState Status, actorID string, evidenceRefs []string) (*Move, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "move.Advance")
	defer span.Finish()

	if toState == StatusCancelled {
		return nil, apperr.Wrap(ErrInvalidTransition, "cancellation goes through Cancel, not Advance")
	}
	if toState == StatusPaid {
		// paid 只能由支付批次提交流程写入，那里同时落金额字段
		return nil, apperr.Wrap(ErrInvalidTransition, "paid is applied by the payment batch commit")
	}
	if RequiresEvidence(toState) && len(evidenceRefs) == 0 {
		return nil, apperr.Wrap(ErrMissingEvidence, "transition to %s requires at least one evidence ref", toState)
	}

	actor, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return nil, apperr.Wrap(ErrActorNotAllowed, "actor %s not found", actorID)
	}

	// completed 需要基地位置，提前解析避免事务内多余读
	baseLocationID := ""
	if toState == StatusCompleted {
		baseLocationID, err = s.trailers.BaseLocationID(ctx)
		if err != nil {
			return nil, apperr.Storage(err)
		}
	}

	now := s.clock()
	var out *Move
	err = s.runTx(ctx, func(tx *gorm.DB) error {
		m, err := s.moves.GetForUpdate(tx, moveID)
		if err != nil {
			return err
		}
		actionType, err := s.authorize(m, actor)
		if err != nil {
			return err
		}
		if err := ApplyTransition(m, toState, now); err != nil {
			return err
		}
		if len(evidenceRefs) > 0 {
			m.EvidenceRefs = appendEvidence(m.EvidenceRefs, evidenceRefs)
		}

		// 挂车联动
		switch toState {
		case StatusInTransit:
			if err := s.trailers.MarkInTransit(tx, m.DriverID, m.NewTrailerID, m.OldTrailerID); err != nil {
				return err
			}
		case StatusCompleted:
			if err := s.trailers.MarkDelivered(tx, m.NewTrailerID, m.DestinationLocationID); err != nil {
				return err
			}
			if err := s.trailers.ReturnToBase(tx, m.OldTrailerID, baseLocationID); err != nil {
				return err
			}
		}

		if err := s.moves.Save(ctx, tx, m); err != nil {
			return err
		}
		if err := s.history.Record(ctx, tx, m.ID, actorID, string(toState), actionType, strings.Join(evidenceRefs, ",")); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel 从任何非终态取消 move：释放挂车持有，记录 unassigned_reason。
func (s *Service) Cancel(ctx context.Context, moveID, actorID, reason string) (*Move, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "move.Cancel")
	defer span.Finish()

	actor, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return nil, apperr.Wrap(ErrActorNotAllowed, "actor %s not found", actorID)
	}

	now := s.clock()
	var out *Move
	err = s.runTx(ctx, func(tx *gorm.DB) error {
		m, err := s.moves.GetForUpdate(tx, moveID)
		if err != nil {
			return err
		}
		if IsTerminal(m.Status) {
			return apperr.Wrap(ErrMoveTerminal, "move %s is already %s", m.ID, m.Status)
		}
		actionType, err := s.authorize(m, actor)
		if err != nil {
			return err
		}
		if err := ApplyTransition(m, StatusCancelled, now); err != nil {
			return err
		}
		m.UnassignedReason = reason

		if err := s.trailers.ReleaseTrailers(tx, m.NewTrailerID, m.OldTrailerID); err != nil {
			return err
		}
		if err := s.moves.Save(ctx, tx, m); err != nil {
			return err
		}
		if err := s.history.Record(ctx, tx, m.ID, actorID, string(StatusCancelled), actionType, reason); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignDriver 协调员指派：pending 的 move 抢占挂车对后直接走到 assigned。
// 两次流转各记一条流水（pending->reserved、reserved->assigned）。
// 抢占先用 reservationTTL 的短窗口占位；事务内走到 assigned 后
// 保留期延长到 confirmHold，与自助确认后的持有一致，
// 否则惰性过期守卫会在 move 仍为 assigned 时释放挂车。
func (s *Service) AssignDriver(ctx context.Context, moveID, driverID, actorID string, reservationTTL, confirmHold time.Duration) (*Move, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "move.AssignDriver")
	defer span.Finish()

	actor, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return nil, apperr.Wrap(ErrActorNotAllowed, "actor %s not found", actorID)
	}
	if !actor.CanOverride() {
		return nil, apperr.Wrap(ErrActorNotAllowed, "coordinator role required to assign drivers")
	}
	assignee, err := s.actors.FindByID(ctx, driverID)
	if err != nil {
		return nil, apperr.Wrap(ErrActorNotAllowed, "driver %s not found", driverID)
	}

	now := s.clock()

	// 先用条件更新原子抢占挂车对（ReservePair 自带事务）。
	// 后续 move 事务失败时显式回滚抢占；即使回滚遗漏，
	// 预订也会在 TTL 之后被惰性过期守卫清掉。
	pre, err := s.moves.GetByID(ctx, moveID)
	if err != nil {
		return nil, err
	}
	if pre.Status != StatusPending {
		return nil, apperr.Wrap(ErrInvalidTransition, "move %s is %s, only pending moves can be assigned", pre.ID, pre.Status)
	}
	if err := s.trailers.ReservePair(ctx, assignee.ID, pre.NewTrailerID, pre.OldTrailerID, now, now.Add(reservationTTL)); err != nil {
		return nil, err
	}

	var out *Move
	err = s.runTx(ctx, func(tx *gorm.DB) error {
		m, err := s.moves.GetForUpdate(tx, moveID)
		if err != nil {
			return err
		}
		if m.Status != StatusPending {
			return apperr.Wrap(ErrInvalidTransition, "move %s is %s, only pending moves can be assigned", m.ID, m.Status)
		}
		if err := ApplyTransition(m, StatusReserved, now); err != nil {
			return err
		}
		if err := s.history.Record(ctx, tx, m.ID, actorID, string(StatusReserved), ledger.ActionTypeCoordinator, "assigned to "+assignee.Name); err != nil {
			return err
		}
		m.DriverID = assignee.ID
		m.AssignmentType = AssignCoordinator
		if err := ApplyTransition(m, StatusAssigned, now); err != nil {
			return err
		}
		if err := s.trailers.ExtendHold(tx, assignee.ID, now.Add(confirmHold), m.NewTrailerID, m.OldTrailerID); err != nil {
			return err
		}
		if err := s.moves.Save(ctx, tx, m); err != nil {
			return err
		}
		if err := s.history.Record(ctx, tx, m.ID, actorID, string(StatusAssigned), ledger.ActionTypeCoordinator, "assigned to "+assignee.Name); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		// 回滚抢占；失败也无妨，TTL 过期后守卫会清理
		_ = s.trailers.ReleasePair(ctx, nil, assignee.ID, pre.NewTrailerID, pre.OldTrailerID)
		return nil, err
	}
	return out, nil
}

// CreateInput 创建 pending move 的入参（定价由调用方用线路价表完成）。
type CreateInput struct {
	NewTrailerID          string
	OldTrailerID          string
	OriginLocationID      string
	DestinationLocationID string
	EstimatedMiles        float64
	GrossAmount           float64
}

// Create 协调员创建一个 pending 的 move。挂车对与两端位置必须已存在；
// 此时尚不抢占挂车，抢占发生在指派/自助预订时。
func (s *Service) Create(ctx context.Context, in CreateInput, actorID string) (*Move, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "move.Create")
	defer span.Finish()

	actor, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return nil, apperr.Wrap(ErrActorNotAllowed, "actor %s not found", actorID)
	}
	if !actor.CanOverride() {
		return nil, apperr.Wrap(ErrActorNotAllowed, "coordinator role required to create moves")
	}
	if in.NewTrailerID == "" || in.OldTrailerID == "" {
		return nil, apperr.New(apperr.KindValidation, "trailer_pair_required", "new and old trailer ids are required")
	}
	if in.OriginLocationID == "" || in.DestinationLocationID == "" {
		return nil, apperr.New(apperr.KindValidation, "locations_required", "origin and destination location ids are required")
	}

	now := s.clock()
	m := &Move{
		ID:                    uuid.NewString(),
		SystemID:              NewSystemID(now, uuid.NewString()[:6]),
		NewTrailerID:          in.NewTrailerID,
		OldTrailerID:          in.OldTrailerID,
		OriginLocationID:      in.OriginLocationID,
		DestinationLocationID: in.DestinationLocationID,
		Status:                StatusPending,
		AssignmentType:        AssignSystem,
		EstimatedMiles:        in.EstimatedMiles,
		GrossAmount:           in.GrossAmount,
		PaymentStatus:         PaymentPending,
	}
	err = s.runTx(ctx, func(tx *gorm.DB) error {
		if err := s.moves.Create(ctx, tx, m); err != nil {
			return err
		}
		return s.history.Record(ctx, tx, m.ID, actorID, "created", ledger.ActionTypeCoordinator, "")
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func appendEvidence(existing string, refs []string) string {
	joined := strings.Join(refs, ",")
	if existing == "" {
		return joined
	}
	return existing + "," + joined
}
