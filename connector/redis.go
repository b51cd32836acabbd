package connector

import (
	"context"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

type redisConnector struct {
	*state
	addr   string
	client *redis.Client
}

// NewRedis 创建 Redis 连接器
//
// go-redis 的连接池是惰性的，客户端在这里就创建好，Connect 只负责 Ping。
// 使用 WithTracing() 时挂载 redisotel，命令作为子 span 出现在调用链中。
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "redis: %v", err)
	}
	opt := applyOptions(opts...)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// 单机和测试容器不支持 CLIENT MAINT_NOTIFICATIONS
		MaintNotificationsConfig: &maintnotifications.Config{Mode: maintnotifications.ModeDisabled},
	})
	if opt.enableTracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, xerrors.Wrapf(err, "redis connector[%s]: instrument tracing", cfg.Name)
		}
	}

	return &redisConnector{
		state:  newState("redis", cfg.Name, opt),
		addr:   cfg.Addr,
		client: client,
	}, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	c.logger.Info("attempting to connect to redis", clog.String("addr", c.addr))
	if err := c.client.Ping(ctx).Err(); err != nil {
		return c.connectFailed(ctx, err)
	}
	c.connected(ctx, clog.String("addr", c.addr))
	return nil
}

// Close 重复关闭时忽略 redis.ErrClosed
func (c *redisConnector) Close() error {
	c.healthy.Store(false)
	c.logger.Info("closing redis connection", clog.String("addr", c.addr))
	if err := c.client.Close(); err != nil && !xerrors.Is(err, redis.ErrClosed) {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	return c.recordPing(c.client.Ping(ctx).Err())
}

func (c *redisConnector) GetClient() *redis.Client {
	return c.client
}
