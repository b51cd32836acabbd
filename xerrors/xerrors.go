// Package xerrors 提供标准化错误处理工具。
//
// 约定：
//   - 组件对外暴露的错误一律定义为哨兵错误，调用方通过 Is 判断
//   - 需要被传输层映射的错误携带机器可读的错误码（见 NewCoded / GetCode）
//   - 包装错误时使用 Wrap / Wrapf 保留错误链
package xerrors

import (
	"errors"
	"fmt"
)

// 通用哨兵错误
var (
	// ErrInvalidInput 表示输入参数无效。
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound 表示请求的资源未找到。
	ErrNotFound = errors.New("not found")

	// ErrUnavailable 表示依赖的后端暂时不可用。
	ErrUnavailable = errors.New("unavailable")
)

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 用错误码包装错误。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// NewCoded 创建一个带错误码的哨兵错误。
//
// 返回值是指针，可以直接作为哨兵与 Is 配合使用：
//
//	var ErrConflict = xerrors.NewCoded("CONFLICT_REQUEST", "request in progress")
//	err := xerrors.Wrapf(ErrConflict, "key %s", key)
//	xerrors.Is(err, ErrConflict) // true
//	xerrors.GetCode(err)         // "CONFLICT_REQUEST"
func NewCoded(code, msg string) error {
	return &CodedError{Code: code, Cause: errors.New(msg)}
}

// CodedError 带有机器可读错误码的错误。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取错误码。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// MultiError 多个错误的集合，Error 只展示第一个
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 忽略 nil；只剩一个时原样返回，多个时返回 *MultiError
//
// Coordinator.Close 用它合并各后端的关闭错误。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)
