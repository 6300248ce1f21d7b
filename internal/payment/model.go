package payment

import (
	"fmt"
	"time"
)

// PaymentBatch 是 payment_batches 表的 GORM 模型：一笔客户回款。
// 提交入账（processed=true）后整行不可变。
type PaymentBatch struct {
	ID            string  `gorm:"primaryKey;size:36"`
	BatchID       string  `gorm:"uniqueIndex;size:32;not null"` // 业务编号，形如 BATCH-20250815143000
	ClientPayment float64 `gorm:"not null"`
	FactoringFee  float64 `gorm:"not null"` // 派生值（3%），绝不人工录入
	ServiceFee    float64 `gorm:"not null"` // 保理公司账单上的实际值，人工录入
	NumDrivers    int     `gorm:"not null"`
	MoveIDs       string  `gorm:"type:text"` // 逗号分隔，保持入参顺序
	PaymentDate   time.Time
	Processed     bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// PaymentRecord 是 payment_records 表的 GORM 模型：
// 批次内单个司机的到账记录。
type PaymentRecord struct {
	ID          string  `gorm:"primaryKey;size:36"`
	BatchID     string  `gorm:"index;size:36;not null"`
	DriverID    string  `gorm:"index;size:36;not null"`
	Amount      float64 `gorm:"not null"` // 司机净额
	ServiceFee  float64 `gorm:"not null"` // 该司机分摊的 service fee
	Status      string  `gorm:"size:16;not null;default:'processed'"`
	Notes       string  `gorm:"size:255"`
	PaymentDate time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// NewBatchID 生成批次业务编号（BATCH-时间戳）。
func NewBatchID(now time.Time) string {
	return fmt.Sprintf("BATCH-%s", now.Format("20060102150405"))
}
