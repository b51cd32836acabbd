package clog

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// Field 是 slog.Attr 的别名
type Field = slog.Attr

func String(k, v string) Field { return slog.String(k, v) }

func Int(k string, v int) Field { return slog.Int(k, v) }

func Int64(k string, v int64) Field { return slog.Int64(k, v) }

func Uint64(k string, v uint64) Field { return slog.Uint64(k, v) }

func Float64(k string, v float64) Field { return slog.Float64(k, v) }

func Bool(k string, v bool) Field { return slog.Bool(k, v) }

func Time(k string, v time.Time) Field { return slog.Time(k, v) }

func Duration(k string, v time.Duration) Field { return slog.Duration(k, v) }

func Any(k string, v any) Field { return slog.Any(k, v) }

// Error 只记录错误消息：err_msg="..."
//
// err 为 nil 时返回空 Attr，slog 会忽略它。
func Error(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err_msg", err.Error())
}

// ErrorWithCode 记录错误消息和错误码：error={msg="...", code="CONFLICT_REQUEST"}
//
//	logger.Warn("duplicate request rejected", clog.ErrorWithCode(err, idem.ErrorCode(err)))
func ErrorWithCode(err error, code string) Field {
	return errorGroup(err, code, false)
}

// ErrorWithStack 记录错误消息、类型和调用栈，开销较大，只用于排查严重错误
func ErrorWithStack(err error) Field {
	return errorGroup(err, "", true)
}

// ErrorWithCodeStack 同时记录错误码和调用栈
func ErrorWithCodeStack(err error, code string) Field {
	return errorGroup(err, code, true)
}

func errorGroup(err error, code string, withStack bool) Field {
	if err == nil {
		if code == "" {
			return slog.Attr{}
		}
		return slog.Group("error", slog.String("code", code))
	}

	attrs := []any{slog.String("msg", err.Error())}
	if withStack {
		attrs = append(attrs, slog.String("type", fmt.Sprintf("%T", err)))
	}
	if code != "" {
		attrs = append(attrs, slog.String("code", code))
	}
	if withStack {
		// 跳过 runtime.Callers、getStackTrace、errorGroup 和导出的包装函数
		if stack := getStackTrace(4); stack != "" {
			attrs = append(attrs, slog.String("stack", stack))
		}
	}
	return slog.Group("error", attrs...)
}

func getStackTrace(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}
