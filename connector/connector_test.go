package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

func TestNewRedisConfigValidation(t *testing.T) {
	_, err := NewRedis(nil)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, ErrConfig))

	_, err = NewRedis(&RedisConfig{})
	assert.True(t, xerrors.Is(err, ErrConfig))

	_, err = NewRedis(&RedisConfig{Addr: "localhost:6379", DB: -1})
	assert.True(t, xerrors.Is(err, ErrConfig))

	cfg := &RedisConfig{Addr: "localhost:6379"}
	conn, err := NewRedis(cfg, WithLogger(clog.Discard()), WithTracing())
	require.NoError(t, err)
	assert.Equal(t, "default", conn.Name())
	assert.Equal(t, 10, cfg.PoolSize)
	assert.False(t, conn.IsHealthy())
	require.NoError(t, conn.Close())
}

func TestNewEtcdConfigValidation(t *testing.T) {
	_, err := NewEtcd(&EtcdConfig{})
	assert.True(t, xerrors.Is(err, ErrConfig))

	conn, err := NewEtcd(&EtcdConfig{Name: "idem", Endpoints: []string{"localhost:2379"}})
	require.NoError(t, err)
	assert.Equal(t, "idem", conn.Name())
	assert.Nil(t, conn.GetClient())

	err = conn.HealthCheck(context.Background())
	assert.True(t, xerrors.Is(err, ErrClientNil))
	require.NoError(t, conn.Close())
}

func TestMySQLConfig(t *testing.T) {
	cfg := &MySQLConfig{Host: "db", Username: "u", Password: "p", Database: "posts"}
	cfg.setDefaults()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "u:p@tcp(db:3306)/posts?charset=utf8mb4&parseTime=True&loc=Local", cfg.dsn())

	raw := &MySQLConfig{DSN: "root@tcp(localhost)/x"}
	require.NoError(t, raw.validate())
	assert.Equal(t, "root@tcp(localhost)/x", raw.dsn())

	_, err := NewMySQL(&MySQLConfig{Host: "db"})
	assert.True(t, xerrors.Is(err, ErrConfig))
}

func TestPostgreSQLConfig(t *testing.T) {
	cfg := &PostgreSQLConfig{Host: "db", Username: "u", Password: "p", Database: "posts"}
	cfg.setDefaults()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=posts sslmode=disable TimeZone=UTC", cfg.dsn())

	_, err := NewPostgreSQL(&PostgreSQLConfig{Host: "db", Username: "u"})
	assert.True(t, xerrors.Is(err, ErrConfig))

	conn, err := NewPostgreSQL(cfg, WithLogger(clog.Discard()))
	require.NoError(t, err)
	assert.Equal(t, "default", conn.Name())
	assert.Nil(t, conn.GetClient())
	assert.True(t, xerrors.Is(conn.HealthCheck(context.Background()), ErrClientNil))
}

func TestNewNATSConfigValidation(t *testing.T) {
	_, err := NewNATS(&NATSConfig{})
	assert.True(t, xerrors.Is(err, ErrConfig))

	_, err = NewNATS(&NATSConfig{URL: "nats://localhost:4222", Username: "u", Token: "t"})
	assert.True(t, xerrors.Is(err, ErrConfig))

	cfg := &NATSConfig{URL: "nats://localhost:4222"}
	conn, err := NewNATS(cfg)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.MaxReconnects)
	assert.Nil(t, conn.GetClient())
	assert.True(t, xerrors.Is(conn.HealthCheck(context.Background()), ErrClientNil))
	require.NoError(t, conn.Close())
}

func TestSQLiteConnectorLifecycle(t *testing.T) {
	ctx := context.Background()
	conn, err := NewSQLite(&SQLiteConfig{Path: t.TempDir() + "/posts.db"})
	require.NoError(t, err)

	assert.Nil(t, conn.GetClient())
	assert.True(t, xerrors.Is(conn.HealthCheck(ctx), ErrClientNil))

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx), "Connect 应当幂等")
	assert.True(t, conn.IsHealthy())

	var one int
	require.NoError(t, conn.GetClient().Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
	require.NoError(t, conn.HealthCheck(ctx))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
}
