package connector

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

type natsConnector struct {
	*state
	cfg *NATSConfig

	mu   sync.RWMutex
	conn *nats.Conn
}

// NewNATS 创建 NATS 连接器，实际连接在调用 Connect() 时建立
func NewNATS(cfg *NATSConfig, opts ...Option) (NATSConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "nats config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "nats: %v", err)
	}
	return &natsConnector{
		state: newState("nats", cfg.Name, applyOptions(opts...)),
		cfg:   cfg,
	}, nil
}

func (c *natsConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	c.logger.Info("attempting to connect to nats", clog.String("url", c.cfg.URL))

	natsOpts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.Timeout(c.cfg.Timeout),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.PingInterval(c.cfg.PingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.healthy.Store(false)
			c.logger.Warn("nats disconnected", clog.Error(err))
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.healthy.Store(true)
			c.logger.Info("nats reconnected", clog.String("url", conn.ConnectedUrl()))
		}),
	}
	if c.cfg.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	if c.cfg.Token != "" {
		natsOpts = append(natsOpts, nats.Token(c.cfg.Token))
	}

	conn, err := nats.Connect(c.cfg.URL, natsOpts...)
	if err != nil {
		return c.connectFailed(ctx, err)
	}
	c.conn = conn
	c.connected(ctx, clog.String("url", c.cfg.URL))
	return nil
}

// Close 先 Drain 让已收到的消息处理完，失败时直接关闭
func (c *natsConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.conn == nil {
		return nil
	}
	c.logger.Info("closing nats connection")
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	c.conn = nil
	return nil
}

// HealthCheck 检查连接状态，并用 FlushWithContext 做一次往返
func (c *natsConnector) HealthCheck(ctx context.Context) error {
	conn := c.GetClient()
	if conn == nil {
		return c.notConnected()
	}
	if !conn.IsConnected() {
		return c.recordPing(xerrors.Wrapf(ErrNotConnected, "status %s", conn.Status()))
	}
	return c.recordPing(conn.FlushWithContext(ctx))
}

func (c *natsConnector) GetClient() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
