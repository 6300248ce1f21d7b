package move

import (
	"time"

	"github.com/YardLink/YardLink/internal/common/apperr"
)

// 状态机错误。
var (
	ErrInvalidTransition = apperr.New(apperr.KindState, "invalid_transition", "move status transition not allowed")
	ErrMissingEvidence   = apperr.New(apperr.KindState, "missing_evidence", "evidence refs required for this transition")
)

// successor 定义每个状态唯一的合法后继。链式推进，禁止跳跃。
// cancelled 不在表内：任何非终态都可以走 Cancel 路径。
var successor = map[Status]Status{
	StatusPending:        StatusReserved,
	StatusReserved:       StatusAssigned,
	StatusAssigned:       StatusInTransit,
	StatusInTransit:      StatusPickupComplete,
	StatusPickupComplete: StatusCompleted,
	StatusCompleted:      StatusPaid,
}

// Successor 返回 from 的唯一合法后继；终态返回 ok=false。
func Successor(from Status) (Status, bool) {
	to, ok := successor[from]
	return to, ok
}

// IsTerminal paid 与 cancelled 是终态。
func IsTerminal(s Status) bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransition 判断 from -> to 是否合法：
// 要么 to 是 from 的唯一后继，要么 from 非终态且 to 为 cancelled。
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return !IsTerminal(from)
	}
	next, ok := successor[from]
	return ok && next == to
}

// RequiresEvidence pickup_complete 与 completed 必须携带凭证（POD 规则）。
func RequiresEvidence(to Status) bool {
	return to == StatusPickupComplete || to == StatusCompleted
}

// ApplyTransition 对 move 应用状态变更并维护时间字段。
// 只做内存变更；持久化与挂车联动由 Service 在同一事务里完成。
func ApplyTransition(m *Move, to Status, now time.Time) error {
	if m == nil {
		return apperr.Wrap(ErrInvalidTransition, "move is nil")
	}
	from := m.Status
	if !CanTransition(from, to) {
		return apperr.Wrap(ErrInvalidTransition, "invalid move status transition: %s -> %s", from, to)
	}

	m.Status = to

	switch to {
	case StatusAssigned:
		if m.AssignedAt == nil {
			t := now
			m.AssignedAt = &t
		}
	case StatusInTransit:
		if m.StartedAt == nil {
			t := now
			m.StartedAt = &t
		}
	case StatusPickupComplete:
		if m.PickedUpAt == nil {
			t := now
			m.PickedUpAt = &t
		}
	case StatusCompleted:
		if m.CompletedAt == nil {
			t := now
			m.CompletedAt = &t
		}
	case StatusPaid:
		if m.PaidAt == nil {
			t := now
			m.PaidAt = &t
		}
	case StatusCancelled:
		if m.CancelledAt == nil {
			t := now
			m.CancelledAt = &t
		}
	}
	return nil
}
