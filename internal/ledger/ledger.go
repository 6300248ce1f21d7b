package ledger

import "time"

// 流水动作类型。action 描述发生了什么，action_type 描述由谁触发。
const (
	ActionTypeSelf        = "self"        // 司机自助操作
	ActionTypeCoordinator = "coordinator" // 协调员操作
	ActionTypeSystem      = "system"      // 系统自动（过期清理、批量支付等）
	ActionTypeOverride    = "override"    // 协调员/老板对他人 move 的显式覆盖
)

// AssignmentHistory 是 assignment_history 表的 GORM 模型。
// 只追加：任何代码路径都不得 UPDATE / DELETE 这张表。
// 一个 move 的当前状态总能由其最后一条流水还原。
type AssignmentHistory struct {
	ID         string    `gorm:"primaryKey;size:36"`
	MoveID     string    `gorm:"index;size:36;not null"`
	DriverID   string    `gorm:"index;size:36"`
	Action     string    `gorm:"size:32;not null"` // reserved / assigned / in_transit / ... / released / cancelled / paid
	ActionType string    `gorm:"size:16;not null"` // self / coordinator / system / override
	Reason     string    `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}
