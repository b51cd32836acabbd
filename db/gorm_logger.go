package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/idemkit/clog"
)

// gormLogger 把 GORM 的日志转到 clog
//
// 普通 SQL 记为 debug，超过 slowThreshold 记为 warn，失败记为 error；
// ErrRecordNotFound 属于正常查询结果，不记为错误。
type gormLogger struct {
	logger        clog.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(logger clog.Logger, slowThreshold time.Duration, silent bool) gormlogger.Interface {
	level := gormlogger.Info
	if silent {
		level = gormlogger.Silent
	}
	return &gormLogger{logger: logger, level: level, slowThreshold: slowThreshold}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	var log func(context.Context, string, ...clog.Field)
	var msg string
	switch {
	case failed && l.level >= gormlogger.Error:
		log, msg = l.logger.ErrorContext, "sql error"
	case slow && l.level >= gormlogger.Warn:
		log, msg = l.logger.WarnContext, "slow sql"
	case l.level >= gormlogger.Info:
		log, msg = l.logger.DebugContext, "sql"
	default:
		return
	}

	sql, rows := fc()
	fields := []clog.Field{clog.Duration("duration", elapsed), clog.String("sql", sql), clog.Int64("rows", rows)}
	if failed {
		fields = append(fields, clog.Error(err))
	}
	log(ctx, msg, fields...)
}
