package payment

import (
	"context"
	"fmt"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateBatch(ctx context.Context, tx *gorm.DB, b *PaymentBatch) error {
	db := tx
	if db == nil {
		if r == nil || r.db == nil {
			return fmt.Errorf("repo db is nil")
		}
		db = r.db.WithContext(ctx)
	}
	if err := db.Create(b).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *Repo) CreateRecord(ctx context.Context, tx *gorm.DB, rec *PaymentRecord) error {
	db := tx
	if db == nil {
		if r == nil || r.db == nil {
			return fmt.Errorf("repo db is nil")
		}
		db = r.db.WithContext(ctx)
	}
	if err := db.Create(rec).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *Repo) GetBatch(ctx context.Context, id string) (*PaymentBatch, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var b PaymentBatch
	if err := r.db.WithContext(ctx).Where("id = ? OR batch_id = ?", id, id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListRecordsByDriver 司机的到账历史。
func (r *Repo) ListRecordsByDriver(ctx context.Context, driverID string, offset, limit int) ([]PaymentRecord, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := r.db.WithContext(ctx).Model(&PaymentRecord{}).Where("driver_id = ?", driverID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage(err)
	}
	var recs []PaymentRecord
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&recs).Error; err != nil {
		return nil, 0, apperr.Storage(err)
	}
	return recs, total, nil
}
