package db

import (
	"time"

	"github.com/ceyewan/idemkit/xerrors"
)

const (
	DriverMySQL      = "mysql"
	DriverSQLite     = "sqlite"
	DriverPostgreSQL = "postgresql"
)

// Config DB 组件配置
type Config struct {
	// Driver 数据库驱动类型: "mysql"、"postgresql" 或 "sqlite"，默认 "sqlite"
	Driver string `mapstructure:"driver"`

	// EnableTracing 启用 otelgorm 追踪插件，使用全局 TracerProvider
	EnableTracing bool `mapstructure:"enable_tracing"`

	// SlowThreshold 慢查询阈值，默认 200ms
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverMySQL, DriverSQLite, DriverPostgreSQL:
		return nil
	}
	return xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported driver: %s (must be mysql, sqlite or postgresql)", c.Driver)
}
