package registry

import "time"

// Location 是 locations 表的 GORM 模型。
// is_base 标记车队基地：新挂车的唯一起点，旧挂车完成后的回收点。
type Location struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Title     string    `gorm:"uniqueIndex;size:128;not null"`
	Address   string    `gorm:"size:255"`
	City      string    `gorm:"size:64"`
	State     string    `gorm:"size:32"`
	Zip       string    `gorm:"size:16"`
	IsBase    bool      `gorm:"index;not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
