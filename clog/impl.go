package clog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// NamespaceKey 日志中命名空间的字段名
const NamespaceKey = "namespace"

// levelHandler 由 clogHandler 实现，子 Logger 共享同一个实例
type levelHandler interface {
	slog.Handler
	SetLevel(level Level) error
	Flush()
}

type loggerImpl struct {
	handler       levelHandler
	contextFields []ContextField
	namespace     []string
	attrs         []slog.Attr
}

func newLogger(config *Config, o *options) (Logger, error) {
	handler, err := newHandler(config, o)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{
		handler:       handler,
		contextFields: o.contextFields,
		namespace:     o.namespaceParts,
	}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields)
}

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), FatalLevel, msg, fields)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}

func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
}

// clone 复制切片，子 Logger 的追加不会影响父 Logger
func (l *loggerImpl) clone() *loggerImpl {
	return &loggerImpl{
		handler:       l.handler,
		contextFields: l.contextFields,
		namespace:     append([]string(nil), l.namespace...),
		attrs:         append([]slog.Attr(nil), l.attrs...),
	}
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	child := l.clone()
	child.namespace = append(child.namespace, parts...)
	return child
}

func (l *loggerImpl) With(fields ...Field) Logger {
	child := l.clone()
	child.attrs = append(child.attrs, fields...)
	return child
}

func (l *loggerImpl) SetLevel(level Level) error {
	return l.handler.SetLevel(level)
}

func (l *loggerImpl) Flush() {
	l.handler.Flush()
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	slogLevel := level.slogLevel()
	if !l.handler.Enabled(ctx, slogLevel) {
		return
	}

	// skip: runtime.Callers、log、Info 等导出方法
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	record := slog.NewRecord(time.Now(), slogLevel, msg, pcs[0])
	record.AddAttrs(l.attrs...)
	record.AddAttrs(fields...)
	for _, cf := range l.contextFields {
		if val := ctx.Value(cf.Key); val != nil {
			record.AddAttrs(slog.Any(cf.FieldName, val))
		}
	}
	if len(l.namespace) > 0 {
		record.AddAttrs(slog.String(NamespaceKey, strings.Join(l.namespace, ".")))
	}

	if err := l.handler.Handle(ctx, record); err != nil {
		return
	}
	if level == FatalLevel {
		l.handler.Flush()
		os.Exit(1)
	}
}
