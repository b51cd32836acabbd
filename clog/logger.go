// Package clog 为 idemkit 提供基于 slog 的结构化日志组件。
//
// 组件通过 WithNamespace 派生子 Logger，例如 idem 组件的日志带有 namespace=idem；
// 未注入 Logger 的组件使用 Discard()。
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "console", Output: "stdout"},
//	    clog.WithNamespace("postapi"),
//	    clog.WithStandardContext(),
//	)
//	logger.InfoContext(ctx, "post created", clog.Int64("user_id", 1))
//
// 错误字段：Error 只记录消息，ErrorWithCode 附带 xerrors 错误码，ErrorWithStack 附带调用栈。
package clog

import "context"

// Logger 结构化日志接口
//
// *Context 版本会按 WithContextField / WithStandardContext 的规则从 ctx 中提取字段，
// 例如请求 ID。Fatal 记录后退出进程，只应在启动阶段使用。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回带预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 在现有命名空间后追加，"postapi" + "idem" 得到 "postapi.idem"
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整级别，对所有派生的子 Logger 生效
	SetLevel(level Level) error

	// Flush 同步缓冲区，文件输出时在退出前调用
	Flush()
}
