// Package idem 提供幂等执行引擎，保证由幂等键标识的副作用操作在并发和重复调用下至多执行一次。
//
// idem 是 idemkit 的核心组件，它提供了：
//   - 结果缓存：操作完成后缓存结果，重复请求直接返回缓存数据，操作不再执行
//   - 并发控制：执行中标记基于存储的原子 SetNX，同一幂等键的并发请求返回 ErrConflict
//   - 请求体校验：可选，相同幂等键携带不同请求体时返回 ErrPayloadMismatch
//   - 后端可配置：支持 Redis / Etcd / Memory，可选熔断保护
//   - 与基础组件（日志、指标、追踪）的深度集成
//
// ## 基本使用
//
//	coord, _ := idem.New(&idem.Config{
//	    Driver:    idem.DriverRedis,
//	    ResultTTL: 10 * time.Minute,
//	}, idem.WithRedisConnector(redisConn), idem.WithLogger(logger))
//
//	key := idem.NewKey("order.create", "abc123")
//	order, err := idem.Do(ctx, coord, key, func(ctx context.Context) (Order, error) {
//	    return svc.CreateOrder(ctx, req)
//	})
//
// ## 无返回值的操作
//
//	executed, err := coord.Consume(ctx, idem.NewKey("mq.order", msgID), func(ctx context.Context) error {
//	    return handle(ctx, msg)
//	})
//
// ## Gin 中间件
//
//	r := gin.Default()
//	r.POST("/orders", coord.GinMiddleware(nil), func(c *gin.Context) {
//	    c.JSON(200, gin.H{"order_id": "123"})
//	})
//
// ## gRPC 拦截器
//
//	s := grpc.NewServer(
//	    grpc.UnaryInterceptor(coord.UnaryServerInterceptor(idem.PolicyTable{
//	        "/order.v1.OrderService/Create": {UsePayloadValidation: true},
//	    })),
//	)
package idem

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/metrics"
	idemtrace "github.com/ceyewan/idemkit/trace"
	"github.com/ceyewan/idemkit/xerrors"
)

// New 创建幂等执行协调器
//
// 参数：
//   - cfg: 幂等性配置，不可为 nil
//   - opts: 可选配置，如 WithLogger(), WithRedisConnector(), WithBackend()
//
// 返回：
//   - Coordinator 实例
//   - 错误：缺少必要连接器或配置非法
func New(cfg *Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("idem")

	meter := opt.meter
	if meter == nil {
		meter = metrics.Discard()
	}
	m, err := newCoordinatorMetrics(meter)
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: create metrics")
	}

	tp := opt.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	codec, err := NewCodec(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		logger:  logger,
		tracer:  tp.Tracer(idemtrace.InstrumentationName),
		metrics: m,
	}

	backend, err := c.newBackend(cfg, &opt)
	if err != nil {
		return nil, err
	}
	if cfg.Breaker.Enabled {
		backend = NewBreakerBackend(backend, cfg.Breaker, logger)
	}

	c.backend = backend
	c.tracker = NewRequestTracker(backend, cfg.Prefix+cfg.RequestNamespace, cfg.RequestTTL)
	c.results = NewResultCache(backend, cfg.Prefix+cfg.ResultNamespace, codec)
	c.validator = NewPayloadValidator(c.tracker)

	logger.Info("creating idem component",
		clog.String("driver", string(cfg.Driver)),
		clog.String("prefix", cfg.Prefix),
		clog.String("serializer", codec.Name()),
		clog.Duration("request_ttl", cfg.RequestTTL),
		clog.Duration("result_ttl", cfg.ResultTTL),
		clog.Bool("breaker", cfg.Breaker.Enabled))

	return c, nil
}

func (c *Coordinator) newBackend(cfg *Config, opt *options) (Backend, error) {
	if opt.backend != nil {
		return opt.backend, nil
	}

	switch cfg.Driver {
	case DriverRedis:
		if opt.redisConn == nil {
			return nil, xerrors.New("idem: redis connector is required, use WithRedisConnector")
		}
		return NewRedisBackend(opt.redisConn), nil
	case DriverEtcd:
		if opt.etcdConn == nil {
			return nil, xerrors.New("idem: etcd connector is required, use WithEtcdConnector")
		}
		return NewEtcdBackend(opt.etcdConn), nil
	case DriverMemory:
		backend, err := NewMemoryBackend(cfg.MemoryCapacity)
		if err != nil {
			return nil, err
		}
		if closer, ok := backend.(interface{ Close() error }); ok {
			c.closers = append(c.closers, closer.Close)
		}
		return backend, nil
	default:
		return nil, xerrors.New("idem: unsupported driver: " + string(cfg.Driver))
	}
}

// Do 以幂等方式执行返回 T 的函数
//
// 首次执行和重放都经过同一个序列化器解码，因此两次得到的值完全一致。
// 缓存中是 None 时（例如同一个键曾被 Consume 使用）返回 T 的零值。
func Do[T any](ctx context.Context, c *Coordinator, key Key, fn func(ctx context.Context) (T, error), opts ...ExecuteOption) (T, error) {
	var zero T
	res, err := c.Execute(ctx, key, func(ctx context.Context) (Value, error) {
		v, err := fn(ctx)
		if err != nil {
			return None(), err
		}
		return Some(v), nil
	}, opts...)
	if err != nil {
		return zero, err
	}
	if res.IsNone() {
		return zero, nil
	}

	var out T
	if err := res.Decode(&out); err != nil {
		return zero, err
	}
	return out, nil
}

// Consume 用于消息消费等没有返回值的幂等处理
//
// 工作流程：
//  1. 如果 key 已处理完成 → 返回 false，fn 不会被调用
//  2. 如果 key 正在处理中 → 返回 ErrConflict
//  3. 否则执行 fn，成功后标记为已处理
//
// 返回：
//   - executed: fn 是否被调用
//   - 错误：fn 的原始错误，或 ErrInvalidFormat / ErrConflict 等
func (c *Coordinator) Consume(ctx context.Context, key Key, fn func(ctx context.Context) error, opts ...ExecuteOption) (executed bool, err error) {
	_, err = c.Execute(ctx, key, func(ctx context.Context) (Value, error) {
		executed = true
		return None(), fn(ctx)
	}, opts...)
	return executed, err
}
