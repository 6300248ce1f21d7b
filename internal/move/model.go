package move

import "time"

// Status move 状态枚举（持久化为字符串）。
type Status string

const (
	StatusPending        Status = "pending"         // 已创建，等待认领
	StatusReserved       Status = "reserved"        // 挂车对已被预订，move 待确认
	StatusAssigned       Status = "assigned"        // 已确认分配给司机
	StatusInTransit      Status = "in_transit"      // 司机已出发
	StatusPickupComplete Status = "pickup_complete" // 旧挂车已取回（需凭证）
	StatusCompleted      Status = "completed"       // 交付完成（需 POD），等待结算
	StatusPaid           Status = "paid"            // 已结算（终态）
	StatusCancelled      Status = "cancelled"       // 已取消（终态）
)

// PaymentStatus move 的结算状态。
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"   // 未提交结算
	PaymentSubmitted PaymentStatus = "submitted" // 已提交给保理公司
	PaymentPaid      PaymentStatus = "paid"      // 已到账并分摊完毕
)

// AssignmentType 分配方式。
type AssignmentType string

const (
	AssignSelf        AssignmentType = "self"        // 司机自助接单
	AssignCoordinator AssignmentType = "coordinator" // 协调员指派
	AssignSystem      AssignmentType = "system"      // 系统自动
)

// Move 是 moves 表的 GORM 模型：一次挂车交换任务
// （送一台新挂车过去，取一台旧挂车回来）。
// 不变量：status >= assigned 后 driver_id 非空；
// payment_status=paid 之前 net_payment 为空。
type Move struct {
	ID       string `gorm:"primaryKey;size:36"`
	SystemID string `gorm:"uniqueIndex;size:32;not null"` // 业务编号，形如 MOVE-20250815-xxxx

	NewTrailerID          string `gorm:"index;size:36;not null"`
	OldTrailerID          string `gorm:"index;size:36;not null"`
	OriginLocationID      string `gorm:"index;size:36;not null"`
	DestinationLocationID string `gorm:"index;size:36;not null"`

	DriverID       string         `gorm:"index;size:36"` // assigned 之前允许为空
	Status         Status         `gorm:"type:varchar(16);index;not null"`
	AssignmentType AssignmentType `gorm:"type:varchar(16);not null;default:'system'"`

	EstimatedMiles float64 `gorm:"not null;default:0"`

	// 金额信息（美元小数金额）
	GrossAmount       float64       `gorm:"not null;default:0"` // 标准线路价
	ServiceFeeShare   *float64      // 结算时写入
	FactoringFeeShare *float64      // 结算时写入
	NetPayment        *float64      // payment_status=paid 之前保持 NULL
	PaymentStatus     PaymentStatus `gorm:"type:varchar(16);index;not null;default:'pending'"`
	PaymentBatchID    string        `gorm:"index;size:36"`
	PaymentDate       *time.Time

	// 凭证与取消原因
	EvidenceRefs     string `gorm:"size:512"` // POD 等凭证引用，逗号分隔
	UnassignedReason string `gorm:"size:255"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	AssignedAt  *time.Time
	StartedAt   *time.Time
	PickedUpAt  *time.Time
	CompletedAt *time.Time
	PaidAt      *time.Time
	CancelledAt *time.Time
}
