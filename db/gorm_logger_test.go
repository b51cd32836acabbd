package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/idemkit/clog"
)

func newCapturedGormLogger(t *testing.T, silent bool) (gormlogger.Interface, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithBuffer(buf))
	require.NoError(t, err)
	return newGormLogger(logger, 50*time.Millisecond, silent), buf
}

func TestGormLoggerTrace(t *testing.T) {
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT * FROM posts", 1 }

	tests := []struct {
		name  string
		begin time.Time
		err   error
		want  string
	}{
		{name: "normal query", begin: time.Now(), want: `"msg":"sql"`},
		{name: "slow query", begin: time.Now().Add(-time.Second), want: `"msg":"slow sql"`},
		{name: "failed query", begin: time.Now(), err: errors.New("deadlock"), want: `"msg":"sql error"`},
		{name: "record not found is not an error", begin: time.Now(), err: gorm.ErrRecordNotFound, want: `"msg":"sql"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newCapturedGormLogger(t, false)
			l.Trace(ctx, tt.begin, sql, tt.err)
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), `"sql":"SELECT * FROM posts"`)
		})
	}
}

func TestGormLoggerSilent(t *testing.T) {
	l, buf := newCapturedGormLogger(t, true)
	called := false
	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		called = true
		return "SELECT 1", 1
	}, errors.New("boom"))
	l.Error(context.Background(), "failed %d", 1)

	assert.False(t, called)
	assert.Empty(t, buf.String())

	verbose := l.LogMode(gormlogger.Warn)
	verbose.Warn(context.Background(), "pool %s", "exhausted")
	assert.Contains(t, buf.String(), "pool exhausted")
}
