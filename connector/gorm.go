package connector

import (
	"context"
	"database/sql"
	"sync"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/idemkit/clog"
)

// gormConnector 是 MySQL 和 SQLite 连接器的共同实现
//
// SQL 日志与追踪由 db 组件接管，这里打开的 *gorm.DB 使用静默 logger。
type gormConnector struct {
	*state
	dialector gorm.Dialector
	tune      func(*sql.DB)
	target    []clog.Field

	mu sync.RWMutex
	db *gorm.DB
}

func newGormConnector(kind, name string, dialector gorm.Dialector, opt *options, target ...clog.Field) *gormConnector {
	return &gormConnector{
		state:     newState(kind, name, opt),
		dialector: dialector,
		target:    target,
	}
}

// Connect 打开连接并 Ping，已连接时直接返回
func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}
	c.logger.Info("attempting to connect to "+c.kind, c.target...)

	db, err := gorm.Open(c.dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return c.connectFailed(ctx, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return c.connectFailed(ctx, err)
	}
	if c.tune != nil {
		c.tune(sqlDB)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return c.connectFailed(ctx, err)
	}

	c.db = db
	c.connected(ctx, c.target...)
	return nil
}

// Close 关闭连接，可重复调用
func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	c.logger.Info("closing " + c.kind + " connection")
	return sqlDB.Close()
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		return c.notConnected()
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	return c.recordPing(err)
}

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
