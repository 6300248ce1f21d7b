package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/YardLink/YardLink/internal/common/apperr"
	"gorm.io/gorm"
)

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

func (r *Repo) UpsertLocation(ctx context.Context, l *Location) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if err := db.Save(l).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (r *Repo) FindLocationByID(ctx context.Context, id string) (*Location, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var l Location
	if err := db.Where("id = ?", id).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) FindLocationByTitle(ctx context.Context, title string) (*Location, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var l Location
	if err := db.Where("title = ?", title).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// FindBaseLocation 返回唯一的基地位置。
func (r *Repo) FindBaseLocation(ctx context.Context) (*Location, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var l Location
	if err := db.Where("is_base = ?", true).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) UpsertTrailer(ctx context.Context, t *Trailer) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if err := db.Save(t).Error; err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// FindTrailerByID 读取挂车并应用惰性过期守卫；过期的预订在这次读取里
// 顺手清掉并写回。
func (r *Repo) FindTrailerByID(ctx context.Context, id string, now time.Time) (*Trailer, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t Trailer
	if err := db.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	if NormalizeReservation(&t, now) {
		if err := r.clearExpiredReservation(db, t.ID, now); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (r *Repo) FindTrailerByNumber(ctx context.Context, number string, now time.Time) (*Trailer, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t Trailer
	if err := db.Where("number = ?", number).First(&t).Error; err != nil {
		return nil, err
	}
	if NormalizeReservation(&t, now) {
		if err := r.clearExpiredReservation(db, t.ID, now); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// clearExpiredReservation 条件更新：只在预订确实过期时清除，
// 避免覆盖掉并发下刚刚成立的新预订。
func (r *Repo) clearExpiredReservation(db *gorm.DB, id string, now time.Time) error {
	err := db.Model(&Trailer{}).
		Where("id = ? AND status = ? AND (reserved_until IS NULL OR reserved_until <= ?)", id, TrailerReserved, now).
		Updates(map[string]interface{}{
			"status":             TrailerAvailable,
			"reserved_by_driver": "",
			"reserved_until":     nil,
		}).Error
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// ListAvailablePairs 返回可预订的挂车对（新挂车 + 其对端旧挂车）。
// 预订已过期的挂车按可用处理。
func (r *Repo) ListAvailablePairs(ctx context.Context, now time.Time) ([][2]*Trailer, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var newTrailers []Trailer
	err := db.
		Where("is_new = ? AND paired_trailer_id <> ''", true).
		Where("status = ? OR (status = ? AND (reserved_until IS NULL OR reserved_until <= ?))",
			TrailerAvailable, TrailerReserved, now).
		Order("number ASC").
		Find(&newTrailers).Error
	if err != nil {
		return nil, apperr.Storage(err)
	}

	pairs := make([][2]*Trailer, 0, len(newTrailers))
	for i := range newTrailers {
		nt := newTrailers[i]
		if NormalizeReservation(&nt, now) {
			if err := r.clearExpiredReservation(db, nt.ID, now); err != nil {
				return nil, err
			}
		}
		ot, err := r.FindTrailerByID(ctx, nt.PairedTrailerID, now)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return nil, err
		}
		if ot.Status != TrailerAvailable {
			continue
		}
		pairs = append(pairs, [2]*Trailer{&nt, ot})
	}
	return pairs, nil
}

// ReservePair 原子抢占一对挂车。
// 单条条件 UPDATE：只抢 “available 或预订已过期” 的行；
// 两行没有全部命中则整体回滚。并发下同一对挂车恰好一个调用成功。
func (r *Repo) ReservePair(ctx context.Context, driverID, newTrailerID, oldTrailerID string, now, until time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Trailer{}).
			Where("id IN ?", []string{newTrailerID, oldTrailerID}).
			Where("status = ? OR (status = ? AND (reserved_until IS NULL OR reserved_until <= ?))",
				TrailerAvailable, TrailerReserved, now).
			Updates(map[string]interface{}{
				"status":             TrailerReserved,
				"reserved_by_driver": driverID,
				"reserved_until":     until,
			})
		if res.Error != nil {
			return apperr.Storage(res.Error)
		}
		if res.RowsAffected != 2 {
			return ErrPairUnavailable
		}
		return nil
	})
}

// ErrPairUnavailable 条件更新未能同时命中两行：挂车对已被他人持有。
var ErrPairUnavailable = apperr.New(apperr.KindConflict, "already_reserved", "trailer pair is held by another driver")

// ReleasePair 释放一对挂车的预订（仅释放指定司机自己的预订）。
// 可以在外部事务 tx 中执行；tx 为 nil 时使用自身连接。
func (r *Repo) ReleasePair(ctx context.Context, tx *gorm.DB, driverID string, trailerIDs ...string) error {
	db := tx
	if db == nil {
		db = r.withCtx(ctx)
	}
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	err := db.Model(&Trailer{}).
		Where("id IN ? AND status = ? AND reserved_by_driver = ?", trailerIDs, TrailerReserved, driverID).
		Updates(map[string]interface{}{
			"status":             TrailerAvailable,
			"reserved_by_driver": "",
			"reserved_until":     nil,
		}).Error
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// MarkInTransit 进入运输状态：两台挂车一起翻转，保留持有人，清掉截止时间。
func (r *Repo) MarkInTransit(tx *gorm.DB, driverID string, trailerIDs ...string) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	err := tx.Model(&Trailer{}).
		Where("id IN ?", trailerIDs).
		Updates(map[string]interface{}{
			"status":             TrailerInTransit,
			"reserved_by_driver": driverID,
			"reserved_until":     nil,
		}).Error
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// MarkDelivered 新挂车落位到目的地。
func (r *Repo) MarkDelivered(tx *gorm.DB, trailerID, locationID string) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	err := tx.Model(&Trailer{}).
		Where("id = ?", trailerID).
		Updates(map[string]interface{}{
			"status":              TrailerDelivered,
			"current_location_id": locationID,
			"reserved_by_driver":  "",
			"reserved_until":      nil,
		}).Error
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// ReturnToBase 旧挂车回收：回到基地并重新可用。
func (r *Repo) ReturnToBase(tx *gorm.DB, trailerID, baseLocationID string) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	err := tx.Model(&Trailer{}).
		Where("id = ?", trailerID).
		Updates(map[string]interface{}{
			"status":              TrailerAvailable,
			"current_location_id": baseLocationID,
			"reserved_by_driver":  "",
			"reserved_until":      nil,
		}).Error
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// ReleaseTrailers 无条件把挂车恢复为 available 并清空预订字段。
// 仅供取消流程在事务内使用；常规释放走 ReleasePair 的条件版本。
func (r *Repo) ReleaseTrailers(tx *gorm.DB, trailerIDs ...string) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	err := tx.Model(&Trailer{}).
		Where("id IN ?", trailerIDs).
		Updates(map[string]interface{}{
			"status":             TrailerAvailable,
			"reserved_by_driver": "",
			"reserved_until":     nil,
		}).Error
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// ExtendHold 把仍由该司机持有的预订延长到 until。
// 确认/指派之后预订不再是抢占窗口，而是到出发为止的长保留；
// 不延长的话惰性过期守卫会在任务仍然有效时释放挂车。
func (r *Repo) ExtendHold(tx *gorm.DB, driverID string, until time.Time, trailerIDs ...string) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	res := tx.Model(&Trailer{}).
		Where("id IN ? AND status = ? AND reserved_by_driver = ?", trailerIDs, TrailerReserved, driverID).
		Update("reserved_until", until)
	if res.Error != nil {
		return apperr.Storage(res.Error)
	}
	if res.RowsAffected != int64(len(trailerIDs)) {
		return apperr.Wrap(ErrPairUnavailable, "hold extension hit %d of %d trailers", res.RowsAffected, len(trailerIDs))
	}
	return nil
}

// BaseLocationID 基地位置 id 的便捷读取。
func (r *Repo) BaseLocationID(ctx context.Context) (string, error) {
	l, err := r.FindBaseLocation(ctx)
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

// SweepExpiredReservations 可选的周期清扫（单 worker 调用）。
// 正确性不依赖它：读路径的惰性守卫已经保证过期预订不会被信任。
func (r *Repo) SweepExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Trailer{}).
		Where("status = ? AND (reserved_until IS NULL OR reserved_until <= ?)", TrailerReserved, now).
		Updates(map[string]interface{}{
			"status":             TrailerAvailable,
			"reserved_by_driver": "",
			"reserved_until":     nil,
		})
	if res.Error != nil {
		return 0, apperr.Storage(res.Error)
	}
	return res.RowsAffected, nil
}
