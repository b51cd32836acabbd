package connector

import (
	"database/sql"

	"gorm.io/driver/mysql"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// NewMySQL 创建 MySQL 连接器，实际连接在调用 Connect() 时建立
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "mysql config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "mysql: %v", err)
	}

	c := newGormConnector("mysql", cfg.Name, mysql.Open(cfg.dsn()), applyOptions(opts...),
		clog.String("host", cfg.Host), clog.Int("port", cfg.Port), clog.String("database", cfg.Database))
	c.tune = func(db *sql.DB) {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return c, nil
}
