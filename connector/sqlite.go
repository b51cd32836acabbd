package connector

import (
	"gorm.io/driver/sqlite"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// NewSQLite 创建 SQLite 连接器，实际连接在调用 Connect() 时建立
//
// 适合单机演示和测试；多进程部署时幂等存储应使用 Redis 或 etcd，
// SQLite 只承载业务数据。
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "sqlite config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "sqlite: %v", err)
	}

	return newGormConnector("sqlite", cfg.Name, sqlite.Open(cfg.Path), applyOptions(opts...),
		clog.String("path", cfg.Path)), nil
}
