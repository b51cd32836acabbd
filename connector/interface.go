// Package connector 管理 idemkit 使用的外部连接：Redis、Etcd、SQLite、MySQL、PostgreSQL、NATS。
//
// 连接器的生命周期约定：
//   - NewXXX() 只校验配置并构造连接器，Connect() 时才真正建立连接
//   - Connect() 幂等，可重复调用
//   - Close() 由创建者负责调用，组件（如 idem 的存储后端）只借用连接器
//
// 基本使用：
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//		connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	client := conn.GetClient()
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
)

// Connector 定义所有连接器的通用行为，方法均为并发安全
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error
	// Close 关闭连接并释放资源，幂等
	Close() error
	// HealthCheck 主动探测连接，并更新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error
	// IsHealthy 返回最近一次探测的结果，不阻塞
	IsHealthy() bool
	// Name 返回连接器实例名称，用于日志和指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	// GetClient 返回底层客户端，Connect 之前或 Close 之后可能为 nil
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// EtcdConnector Etcd 连接器
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// SQLiteConnector SQLite 连接器，适合测试和单机演示
type SQLiteConnector interface {
	TypedConnector[*gorm.DB]
}

// MySQLConnector MySQL 连接器
type MySQLConnector interface {
	TypedConnector[*gorm.DB]
}

// PostgreSQLConnector PostgreSQL 连接器
type PostgreSQLConnector interface {
	TypedConnector[*gorm.DB]
}

// NATSConnector NATS 连接器
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}
