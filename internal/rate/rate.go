package rate

import "time"

// BaseRatePerMile 没有标准线路价时按里程估算的兜底费率（美元/英里）。
const BaseRatePerMile = 2.10

// RouteRate 是 route_rates 表的 GORM 模型：一条 (起点, 终点) 线路的标准报价。
// 查询时方向不敏感：找不到 (A,B) 会回退查 (B,A)。
type RouteRate struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Origin      string    `gorm:"size:128;not null;uniqueIndex:uk_route,priority:1"`
	Destination string    `gorm:"size:128;not null;uniqueIndex:uk_route,priority:2"`
	Amount      float64   `gorm:"not null"` // 标准报价（美元）
	Miles       float64   `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Table 内存中的线路价表，按 (origin, destination) 索引。
// repo 从数据库加载后构造；纯查询，便于单测。
type Table struct {
	rates map[[2]string]RouteRate
}

func NewTable(rates []RouteRate) *Table {
	m := make(map[[2]string]RouteRate, len(rates))
	for _, r := range rates {
		m[[2]string{r.Origin, r.Destination}] = r
	}
	return &Table{rates: m}
}

// Lookup 先查正向，再查反向。找不到返回 ok=false。
func (t *Table) Lookup(origin, destination string) (RouteRate, bool) {
	if t == nil || t.rates == nil {
		return RouteRate{}, false
	}
	if r, ok := t.rates[[2]string{origin, destination}]; ok {
		return r, true
	}
	if r, ok := t.rates[[2]string{destination, origin}]; ok {
		return r, true
	}
	return RouteRate{}, false
}

// Estimate 给出一条线路的报价与里程。
// 有标准线路价用线路价；否则按 miles * BaseRatePerMile 估算。
func (t *Table) Estimate(origin, destination string, miles float64) (amount, estMiles float64) {
	if r, ok := t.Lookup(origin, destination); ok {
		m := r.Miles
		if m == 0 {
			m = miles
		}
		return r.Amount, m
	}
	return miles * BaseRatePerMile, miles
}
