package connector

import (
	"context"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

type etcdConnector struct {
	*state
	cfg *EtcdConfig

	mu     sync.Mutex
	client *clientv3.Client
}

// NewEtcd 创建 Etcd 连接器，客户端在 Connect 时创建
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "etcd: %v", err)
	}
	return &etcdConnector{
		state: newState("etcd", cfg.Name, applyOptions(opts...)),
		cfg:   cfg,
	}, nil
}

// Connect 创建客户端，并确认至少一个端点能响应 Status
func (c *etcdConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	endpoints := clog.Any("endpoints", c.cfg.Endpoints)
	c.logger.Info("attempting to connect to etcd", endpoints)

	client, err := clientv3.New(clientv3.Config{
		Endpoints:            c.cfg.Endpoints,
		Username:             c.cfg.Username,
		Password:             c.cfg.Password,
		DialTimeout:          c.cfg.DialTimeout,
		DialKeepAliveTime:    c.cfg.KeepAliveTime,
		DialKeepAliveTimeout: c.cfg.KeepAliveTimeout,
		// 客户端的生命周期由 Close 决定，不跟随 Connect 的 ctx
		Context: context.WithoutCancel(ctx),
	})
	if err != nil {
		return c.connectFailed(ctx, err)
	}
	if err := ping(ctx, client, c.cfg.Endpoints, c.cfg.DialTimeout); err != nil {
		_ = client.Close()
		return c.connectFailed(ctx, err)
	}

	c.client = client
	c.connected(ctx, endpoints)
	return nil
}

func ping(ctx context.Context, client *clientv3.Client, endpoints []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for _, ep := range endpoints {
		if _, lastErr = client.Status(ctx, ep); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *etcdConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}
	c.logger.Info("closing etcd connection")
	err := c.client.Close()
	c.client = nil
	if err != nil {
		c.logger.Error("failed to close etcd connection", clog.Error(err))
	}
	return err
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		return c.notConnected()
	}
	return c.recordPing(ping(ctx, client, c.cfg.Endpoints, c.cfg.DialTimeout))
}

func (c *etcdConnector) GetClient() *clientv3.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}
