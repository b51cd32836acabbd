package connector

import (
	"context"
	"sync/atomic"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/metrics"
	"github.com/ceyewan/idemkit/xerrors"
)

// state 是各连接器共享的健康状态、连接计数和日志
type state struct {
	kind     string
	name     string
	logger   clog.Logger
	attempts metrics.Counter
	healthy  atomic.Bool
}

func newState(kind, name string, opt *options) *state {
	return &state{
		kind:     kind,
		name:     name,
		logger:   opt.logger.With(clog.String("connector", kind), clog.String("name", name)),
		attempts: connectAttempts(opt.meter, kind),
	}
}

func (s *state) connected(ctx context.Context, fields ...clog.Field) {
	s.attempts.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
	s.healthy.Store(true)
	s.logger.Info("successfully connected to "+s.kind, fields...)
}

// connectFailed 记录失败并返回包装了 ErrConnection 的错误
func (s *state) connectFailed(ctx context.Context, err error) error {
	s.attempts.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
	s.logger.Error("failed to connect to "+s.kind, clog.Error(err))
	return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", s.kind, s.name, err)
}

// recordPing 根据一次 Ping 的结果更新健康状态
func (s *state) recordPing(err error) error {
	if err != nil {
		s.healthy.Store(false)
		s.logger.Warn(s.kind+" health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", s.kind, s.name, err)
	}
	s.healthy.Store(true)
	return nil
}

func (s *state) notConnected() error {
	s.healthy.Store(false)
	return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", s.kind, s.name)
}

func (s *state) IsHealthy() bool {
	return s.healthy.Load()
}

func (s *state) Name() string {
	return s.name
}
