package clog

import (
	"context"
	"log/slog"
)

// Discard 返回丢弃所有记录的 Logger，未注入 Logger 的组件默认使用它
//
// 派生出的子 Logger 同样丢弃记录，Fatal 也不会退出进程。
func Discard() Logger {
	return &loggerImpl{handler: discardHandler{}}
}

// discardHandler 对所有级别都未启用，loggerImpl.log 在构造 Record 之前就返回
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }
func (discardHandler) SetLevel(Level) error                      { return nil }
func (discardHandler) Flush()                                    {}
