package driver

import (
	"strings"
	"time"
)

// 角色常量。owner 同时具备 coordinator 的全部能力。
const (
	RoleDriver      = "driver"
	RoleCoordinator = "coordinator"
	RoleOwner       = "owner"
)

// Driver 是 drivers 表的 GORM 模型。
// 司机既是登录账号也是业务主体（承运人）。
type Driver struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:128;not null"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	PasswordSalt string `gorm:"size:64;not null"`
	CompanyName  string `gorm:"size:128"`
	Phone        string `gorm:"size:32"`
	Email        string `gorm:"size:128"`
	Roles        string `gorm:"size:256;not null"` // 逗号分隔，例如 "driver,coordinator"

	// 自助接单资格与限额
	MaxConcurrentMoves int  `gorm:"not null;default:1"` // 同时进行的 move 上限
	COIOnFile          bool `gorm:"not null;default:false"`
	W9OnFile           bool `gorm:"not null;default:false"`

	// 1099 承包商标记（仅作标记，不做任何税务计算）
	Contractor1099 bool `gorm:"not null;default:true"`

	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (d Driver) RolesSlice() []string {
	if strings.TrimSpace(d.Roles) == "" {
		return nil
	}
	parts := strings.Split(d.Roles, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// HasRole 判断是否具备某个角色。
func (d Driver) HasRole(role string) bool {
	for _, r := range d.RolesSlice() {
		if r == role {
			return true
		}
	}
	return false
}

// CanOverride 判断是否具备协调员/老板的覆盖能力。
// 覆盖不是静默旁路：调用方必须把覆盖行为写进审计流水。
func (d Driver) CanOverride() bool {
	return d.HasRole(RoleCoordinator) || d.HasRole(RoleOwner)
}

// CanSelfAssign 自助接单资格：必须有有效的 COI 与 W9 文件。
func (d Driver) CanSelfAssign() bool {
	return d.Active && d.COIOnFile && d.W9OnFile
}

func RolesJoin(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return strings.Join(out, ",")
}
