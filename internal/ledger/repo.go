package ledger

import (
	"context"
	"fmt"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Record 追加一条流水。tx 非 nil 时加入调用方的事务——
// 每次状态流转必须与流水写入在同一个事务里提交。
func (r *Repo) Record(ctx context.Context, tx *gorm.DB, moveID, driverID, action, actionType, reason string) error {
	db := tx
	if db == nil {
		if r == nil || r.db == nil {
			return fmt.Errorf("repo db is nil")
		}
		db = r.db.WithContext(ctx)
	}
	row := &AssignmentHistory{
		ID:         uuid.NewString(),
		MoveID:     moveID,
		DriverID:   driverID,
		Action:     action,
		ActionType: actionType,
		Reason:     reason,
	}
	if err := db.Create(row).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// ListByMove 按时间顺序返回一个 move 的全部流水。
func (r *Repo) ListByMove(ctx context.Context, moveID string) ([]AssignmentHistory, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rows []AssignmentHistory
	err := r.db.WithContext(ctx).
		Where("move_id = ?", moveID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return rows, nil
}

// LastAction 返回 move 的最后一条流水（即其当前状态的来源）。
func (r *Repo) LastAction(ctx context.Context, moveID string) (*AssignmentHistory, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var row AssignmentHistory
	err := r.db.WithContext(ctx).
		Where("move_id = ?", moveID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
