package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ceyewan/idemkit/connector"
)

// NewPostgreSQLContainerConfig 启动 PostgreSQL 容器并返回连接配置，容器在测试结束时销毁
func NewPostgreSQLContainerConfig(t *testing.T) *connector.PostgreSQLConfig {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgresql container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return &connector.PostgreSQLConfig{
		Name:         "testcontainer-postgresql",
		Host:         host,
		Port:         port,
		Username:     testUser,
		Password:     testPassword,
		Database:     testDatabase,
		MaxIdleConns: 2,
		MaxOpenConns: 10,
	}
}

// NewPostgreSQLConnector 返回已连接的 PostgreSQL 连接器
//
// BasicWaitStrategies 已等待服务就绪，这里直接 Connect。
func NewPostgreSQLConnector(t *testing.T) connector.PostgreSQLConnector {
	t.Helper()
	conn, err := connector.NewPostgreSQL(NewPostgreSQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create postgresql connector")
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Connect(context.Background()), "failed to connect to postgresql")
	return conn
}
