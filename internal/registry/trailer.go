package registry

import "time"

// TrailerStatus 挂车状态枚举（持久化为字符串）。
type TrailerStatus string

const (
	TrailerAvailable TrailerStatus = "available"  // 可用，可被预订
	TrailerReserved  TrailerStatus = "reserved"   // 已被司机预订（带截止时间）
	TrailerInTransit TrailerStatus = "in_transit" // 运输途中
	TrailerDelivered TrailerStatus = "delivered"  // 已送达目的地
)

// Trailer 是 trailers 表的 GORM 模型。
// 不变量：status=reserved 时 reserved_until 必须非空且在未来；
// 预订过期后两者一并清除（见 NormalizeReservation）。
type Trailer struct {
	ID                string        `gorm:"primaryKey;size:36"`
	Number            string        `gorm:"uniqueIndex;size:32;not null"`
	IsNew             bool          `gorm:"index;not null;default:false"`
	CurrentLocationID string        `gorm:"index;size:36"`
	Status            TrailerStatus `gorm:"type:varchar(16);index;not null"`
	PairedTrailerID   string        `gorm:"index;size:36"` // 交换对端挂车（弱引用）
	ReservedByDriver  string        `gorm:"index;size:36"`
	ReservedUntil     *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// ReservationExpired 判断预订是否已过期。未预订视为未过期。
func (t *Trailer) ReservationExpired(now time.Time) bool {
	if t.Status != TrailerReserved {
		return false
	}
	// reserved 但没有截止时间属于脏数据，同样按过期处理
	if t.ReservedUntil == nil {
		return true
	}
	return !t.ReservedUntil.After(now)
}

// NormalizeReservation 惰性过期守卫：所有读取 Trailer.status 的路径
// 必须先经过这里。预订已过期则在内存中恢复为 available 并清空预订字段，
// 返回 true 表示调用方需要把变更写回存储。
func NormalizeReservation(t *Trailer, now time.Time) bool {
	if t == nil || !t.ReservationExpired(now) {
		return false
	}
	t.Status = TrailerAvailable
	t.ReservedByDriver = ""
	t.ReservedUntil = nil
	return true
}

// AvailableFor 判断挂车对 driverID 而言是否可预订：
// 自由可用、预订已过期、或者本来就被该司机持有。
func (t *Trailer) AvailableFor(driverID string, now time.Time) bool {
	if t.Status == TrailerAvailable {
		return true
	}
	if t.ReservationExpired(now) {
		return true
	}
	return t.Status == TrailerReserved && t.ReservedByDriver == driverID
}
