package move

import (
	"context"
	"fmt"
	"time"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activeStatuses 占用司机并发额度的状态集合。
var activeStatuses = []Status{StatusReserved, StatusAssigned, StatusInTransit, StatusPickupComplete}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, tx *gorm.DB, m *Move) error {
	db := tx
	if db == nil {
		db = r.withCtx(ctx)
	}
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if err := db.Create(m).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *Repo) Save(ctx context.Context, tx *gorm.DB, m *Move) error {
	db := tx
	if db == nil {
		db = r.withCtx(ctx)
	}
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if err := db.Save(m).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Move, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m Move
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetBySystemID(ctx context.Context, systemID string) (*Move, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m Move
	if err := db.Where("system_id = ?", systemID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetForUpdate 在事务内按行锁读取 move。
// move 行是状态流转的互斥单元：锁持续到事务结束。
func (r *Repo) GetForUpdate(tx *gorm.DB, id string) (*Move, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx is nil")
	}
	var m Move
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountActiveByDriver 统计司机当前占用并发额度的 move 数。
func (r *Repo) CountActiveByDriver(ctx context.Context, driverID string) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Move{}).
		Where("driver_id = ? AND status IN ?", driverID, activeStatuses).
		Count(&n).Error
	if err != nil {
		return 0, apperr.Storage(err)
	}
	return n, nil
}

// ListFilter 查询条件。
type ListFilter struct {
	DriverID      string
	Status        Status
	PaymentStatus PaymentStatus
	Offset        int
	Limit         int
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Move, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Move{})
	if f.DriverID != "" {
		q = q.Where("driver_id = ?", f.DriverID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage(err)
	}
	var moves []Move
	if err := q.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&moves).Error; err != nil {
		return nil, 0, apperr.Storage(err)
	}
	return moves, total, nil
}

// ListPendingPayment 结算入口：已完成但尚未支付的 move。
func (r *Repo) ListPendingPayment(ctx context.Context) ([]Move, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var moves []Move
	err := db.Where("status = ? AND payment_status <> ?", StatusCompleted, PaymentPaid).
		Order("completed_at ASC").
		Find(&moves).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return moves, nil
}

// NewSystemID 生成业务编号，形如 MOVE-20250815-1a2b3c。
func NewSystemID(now time.Time, suffix string) string {
	return fmt.Sprintf("MOVE-%s-%s", now.Format("20060102"), suffix)
}
