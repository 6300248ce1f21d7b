package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误大类，传输层按 Kind 映射 HTTP 状态码。
type Kind string

const (
	KindValidation      Kind = "validation"       // 入参非法（金额非正、空批次等）
	KindConflict        Kind = "conflict"         // 资源竞争（已被预订、超出并发上限、预订过期）
	KindState           Kind = "state"            // 状态机拒绝（非法流转、缺少凭证）
	KindArithmeticGuard Kind = "arithmetic_guard" // 金额校验告警（需人工确认）
	KindStorage         Kind = "storage"          // 存储 I/O 失败（事务已回滚）
)

// Error 带类别的业务错误。Code 是稳定的机器可读标识，Message 面向人。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is(err, sentinel)：同 Kind 且同 Code 即视为同一错误。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New 构造 sentinel 错误（包级 var 使用）。
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap 在 sentinel 的基础上附加上下文信息，errors.Is 仍然命中 sentinel。
func Wrap(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Storage 包装一条存储层错误；gorm 返回的任何 I/O 失败都经此上抛。
func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Code: "storage_error", Message: "storage operation failed", Cause: cause}
}

// KindOf 取出错误的 Kind；非 apperr 错误归为 storage。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
