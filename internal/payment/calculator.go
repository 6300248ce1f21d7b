package payment

import (
	"sort"

	"github.com/YardLink/YardLink/internal/common/apperr"
)

// FactoringRate 保理公司的固定扣率（3%）。业务约定写死在代码里，
// 不进配置：任何批次都不允许单独调整。
const FactoringRate = 0.03

// GrossTolerance 预期总额与客户实付的允许偏差（美元）。
// 超出后计算仍然完成，但 breakdown 会带上告警标记，
// 提交入账前需要人工确认。
const GrossTolerance = 100.00

var (
	ErrEmptyBatch    = apperr.New(apperr.KindValidation, "empty_batch", "payment batch contains no moves")
	ErrInvalidAmount = apperr.New(apperr.KindValidation, "invalid_amount", "client payment and move gross amounts must be positive")
)

// MoveGross 批次里一条 move 的毛额（标准线路价）。
type MoveGross struct {
	MoveID   string  `json:"move_id"`
	DriverID string  `json:"driver_id"`
	Gross    float64 `json:"gross"`
}

// BatchInput 结算批次入参。
// ToleranceConfirmed：当偏差超出 GrossTolerance 时，员工确认过
// “按客户实付金额等比分摊” 才允许提交入账。
type BatchInput struct {
	ClientPayment      float64     `json:"client_payment"`
	ServiceFee         float64     `json:"service_fee"`
	Moves              []MoveGross `json:"moves"`
	ToleranceConfirmed bool        `json:"tolerance_confirmed"`
}

// MoveShare 一条 move 在批次里的最终分摊。
// 各字段对 moveGross/driverGross 线性，因此
// Net == 司机净额 × (moveGross / driverGross)。
type MoveShare struct {
	MoveID          string  `json:"move_id"`
	Gross           float64 `json:"gross"`
	AdjustedGross   float64 `json:"adjusted_gross"`
	FactoringShare  float64 `json:"factoring_share"`
	ServiceFeeShare float64 `json:"service_fee_share"`
	Net             float64 `json:"net"`
}

// DriverBreakdown 单个司机的分摊结果。
type DriverBreakdown struct {
	DriverID        string      `json:"driver_id"`
	Gross           float64     `json:"gross"`
	AdjustedGross   float64     `json:"adjusted_gross"`
	FactoringShare  float64     `json:"factoring_share"`
	ServiceFeeShare float64     `json:"service_fee_share"`
	NetPayment      float64     `json:"net_payment"`
	MoveIDs         []string    `json:"move_ids"`
	Moves           []MoveShare `json:"moves"`
}

// Breakdown 整个批次的分摊结果。
// Drivers 按 DriverID 升序排列：同样的输入总是得到逐位相同的输出。
type Breakdown struct {
	ClientPayment       float64           `json:"client_payment"`
	FactoringFee        float64           `json:"factoring_fee"`
	ServiceFee          float64           `json:"service_fee"`
	TotalGross          float64           `json:"total_gross"`
	AdjustmentFactor    float64           `json:"adjustment_factor"`
	NumDrivers          int               `json:"num_drivers"`
	ServiceFeePerDriver float64           `json:"service_fee_per_driver"`
	Drivers             []DriverBreakdown `json:"drivers"`

	// 诊断标记
	ZeroGrossFallback bool `json:"zero_gross_fallback"` // 毛额合计为零，按人头均分兜底
	ToleranceExceeded bool `json:"tolerance_exceeded"`  // 预期与实付偏差超阈值，提交前需确认
}

// Calculate 把一笔客户回款精确分摊到每个司机、每条 move。纯函数，无 I/O。
//
// 算法：
//  1. factoringFee = clientPayment × 3%
//  2. 按司机聚合毛额
//  3. 恒等比缩放 adjustmentFactor = clientPayment / totalGross
//     （两者相等时因子为 1；估算线路价与实付对不齐时按比例调和）
//  4. service fee 按司机人数均分——明确的业务规则，不按毛额占比
//  5. 司机净额 = 调整后毛额 − 其保理分摊 − service fee 分摊
//  6. move 净额按该 move 原始毛额在司机内的占比分摊
func Calculate(in BatchInput) (*Breakdown, error) {
	if len(in.Moves) == 0 {
		return nil, ErrEmptyBatch
	}
	if in.ClientPayment <= 0 {
		return nil, apperr.Wrap(ErrInvalidAmount, "client payment must be > 0, got %.2f", in.ClientPayment)
	}
	if in.ServiceFee < 0 {
		return nil, apperr.Wrap(ErrInvalidAmount, "service fee must be >= 0, got %.2f", in.ServiceFee)
	}
	for _, m := range in.Moves {
		if m.Gross < 0 {
			return nil, apperr.Wrap(ErrInvalidAmount, "move %s gross must be >= 0, got %.2f", m.MoveID, m.Gross)
		}
	}

	// 按司机聚合，司机内保持输入顺序
	grouped := make(map[string][]MoveGross)
	order := make([]string, 0)
	totalGross := 0.0
	for _, m := range in.Moves {
		if _, seen := grouped[m.DriverID]; !seen {
			order = append(order, m.DriverID)
		}
		grouped[m.DriverID] = append(grouped[m.DriverID], m)
		totalGross += m.Gross
	}
	sort.Strings(order)

	numDrivers := len(order)
	out := &Breakdown{
		ClientPayment:       in.ClientPayment,
		FactoringFee:        in.ClientPayment * FactoringRate,
		ServiceFee:          in.ServiceFee,
		TotalGross:          totalGross,
		NumDrivers:          numDrivers,
		ServiceFeePerDriver: in.ServiceFee / float64(numDrivers),
		Drivers:             make([]DriverBreakdown, 0, numDrivers),
	}

	if totalGross == 0 {
		// 除零守卫：毛额全为零时退化为按人头均分，并打诊断标记
		out.ZeroGrossFallback = true
		out.AdjustmentFactor = 1
	} else {
		out.AdjustmentFactor = in.ClientPayment / totalGross
		if diff := totalGross - in.ClientPayment; diff > GrossTolerance || diff < -GrossTolerance {
			out.ToleranceExceeded = true
		}
	}

	equalShare := in.ClientPayment / float64(numDrivers)

	for _, driverID := range order {
		moves := grouped[driverID]
		db := DriverBreakdown{DriverID: driverID}
		for _, m := range moves {
			db.Gross += m.Gross
			db.MoveIDs = append(db.MoveIDs, m.MoveID)
		}

		if out.ZeroGrossFallback {
			db.AdjustedGross = equalShare
		} else {
			db.AdjustedGross = db.Gross * out.AdjustmentFactor
		}
		db.FactoringShare = db.AdjustedGross * FactoringRate
		db.ServiceFeeShare = out.ServiceFeePerDriver
		db.NetPayment = db.AdjustedGross - db.FactoringShare - db.ServiceFeeShare

		// move 级分摊：占比对所有费用项一致，净额严格等于
		// NetPayment × proportion
		for _, m := range moves {
			var proportion float64
			if out.ZeroGrossFallback || db.Gross == 0 {
				proportion = 1 / float64(len(moves))
			} else {
				proportion = m.Gross / db.Gross
			}
			share := MoveShare{
				MoveID:          m.MoveID,
				Gross:           m.Gross,
				AdjustedGross:   db.AdjustedGross * proportion,
				FactoringShare:  db.FactoringShare * proportion,
				ServiceFeeShare: db.ServiceFeeShare * proportion,
				Net:             db.NetPayment * proportion,
			}
			db.Moves = append(db.Moves, share)
		}
		out.Drivers = append(out.Drivers, db)
	}
	return out, nil
}

// TotalNet 所有司机净额之和（校验用：净额 + 保理分摊 + service fee ≈ 客户实付）。
func (b *Breakdown) TotalNet() float64 {
	sum := 0.0
	for _, d := range b.Drivers {
		sum += d.NetPayment
	}
	return sum
}
