// Package db 提供基于 GORM 的数据库组件。
//
// db 组件借用 connector 提供的 *gorm.DB，在其上挂载：
//   - clog 适配的 SQL 日志（慢查询告警、错误记录）
//   - otelgorm 追踪插件，每条 SQL 作为子 span
//   - 事务辅助方法
//
// 基本使用：
//
//	conn, _ := connector.NewSQLite(&connector.SQLiteConfig{Path: "posts.db"})
//	_ = conn.Connect(ctx)
//	defer conn.Close()
//
//	database, _ := db.New(&db.Config{Driver: "sqlite"},
//		db.WithSQLiteConnector(conn),
//		db.WithLogger(logger),
//	)
//
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&post).Error
//	})
package db

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// DB 定义了数据库组件的核心能力
type DB interface {
	// DB 获取绑定了 ctx 的 *gorm.DB
	DB(ctx context.Context) *gorm.DB

	// Transaction 执行事务操作，fn 中的 tx 仅在当前事务范围内有效
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error

	// Close 关闭组件，不关闭底层连接器
	Close() error
}

type database struct {
	client *gorm.DB
	logger clog.Logger
}

// New 创建数据库组件实例
//
// 连接器由调用方创建并负责关闭，db 组件只借用其客户端。
func New(cfg *Config, opts ...Option) (DB, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(err, "invalid db config")
	}

	opt := options{logger: clog.Discard()}
	for _, o := range opts {
		o(&opt)
	}

	var client *gorm.DB
	switch cfg.Driver {
	case DriverMySQL:
		if opt.mysqlConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorRequired, "mysql")
		}
		client = opt.mysqlConnector.GetClient()
	case DriverSQLite:
		if opt.sqliteConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorRequired, "sqlite")
		}
		client = opt.sqliteConnector.GetClient()
	case DriverPostgreSQL:
		if opt.postgresqlConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorRequired, "postgresql")
		}
		client = opt.postgresqlConnector.GetClient()
	}
	if client == nil {
		return nil, xerrors.Wrapf(ErrNotConnected, "%s connector returned nil client", cfg.Driver)
	}

	client = client.Session(&gorm.Session{
		Logger: newGormLogger(opt.logger, cfg.SlowThreshold, opt.silentMode),
	})

	if cfg.EnableTracing || opt.tracer != nil {
		pluginOpts := []otelgorm.Option{otelgorm.WithDBName(cfg.Driver)}
		if opt.tracer != nil {
			pluginOpts = append(pluginOpts, otelgorm.WithTracerProvider(opt.tracer))
		}
		if err := client.Use(otelgorm.NewPlugin(pluginOpts...)); err != nil {
			return nil, xerrors.Wrap(err, "register otelgorm plugin")
		}
	}

	return &database{client: client, logger: opt.logger}, nil
}

func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

// Close 连接由连接器管理，这里不需要额外关闭
func (d *database) Close() error {
	return nil
}
