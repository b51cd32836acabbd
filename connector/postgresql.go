package connector

import (
	"database/sql"

	"gorm.io/driver/postgres"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// NewPostgreSQL 创建 PostgreSQL 连接器，实际连接在调用 Connect() 时建立
func NewPostgreSQL(cfg *PostgreSQLConfig, opts ...Option) (PostgreSQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "postgresql config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "postgresql: %v", err)
	}

	c := newGormConnector("postgresql", cfg.Name, postgres.Open(cfg.dsn()), applyOptions(opts...),
		clog.String("host", cfg.Host), clog.Int("port", cfg.Port), clog.String("database", cfg.Database))
	c.tune = func(db *sql.DB) {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return c, nil
}
