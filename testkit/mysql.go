package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/idemkit/connector"
)

const (
	mysqlImage    = "mysql:8.0"
	testDatabase  = "idemkit_db"
	testUser      = "idemkit_user"
	testPassword  = "idemkit_password"
)

// NewMySQLContainerConfig 启动 MySQL 容器并返回连接配置，容器在测试结束时销毁
//
// 没有可用的 Docker 环境时跳过测试。
func NewMySQLContainerConfig(t *testing.T) *connector.MySQLConfig {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := mysql.Run(ctx, mysqlImage,
		mysql.WithDatabase(testDatabase),
		mysql.WithUsername(testUser),
		mysql.WithPassword(testPassword),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return &connector.MySQLConfig{
		Name:         "testcontainer-mysql",
		Host:         host,
		Port:         port,
		Username:     testUser,
		Password:     testPassword,
		Database:     testDatabase,
		MaxIdleConns: 2,
		MaxOpenConns: 10,
	}
}

// NewMySQLConnector 返回已连接的 MySQL 连接器
//
// 容器端口就绪后 mysqld 可能仍在初始化，因此在 60s 内重试 Connect。
func NewMySQLConnector(t *testing.T) connector.MySQLConnector {
	t.Helper()
	conn, err := connector.NewMySQL(NewMySQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return conn.Connect(ctx) == nil
	}, 60*time.Second, 2*time.Second, "timeout waiting for mysql to be ready")

	return conn
}
