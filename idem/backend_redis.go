package idem

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/idemkit/connector"
	"github.com/ceyewan/idemkit/xerrors"
)

// redisBackend 基于 Redis SET NX PX 的存储实现
type redisBackend struct {
	conn connector.RedisConnector
}

// NewRedisBackend 基于 Redis 连接器创建存储，连接器可以在之后再 Connect
func NewRedisBackend(conn connector.RedisConnector) Backend {
	return &redisBackend{conn: conn}
}

func (b *redisBackend) client() (*redis.Client, error) {
	client := b.conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrap(ErrBackendUnavailable, "redis client is not connected")
	}
	return client, nil
}

func (b *redisBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	client, err := b.client()
	if err != nil {
		return false, err
	}
	ok, err := client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, xerrors.Wrapf(err, "redis setnx %s", key)
	}
	return ok, nil
}

func (b *redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := b.client()
	if err != nil {
		return nil, err
	}
	val, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if xerrors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrapf(err, "redis get %s", key)
	}
	return val, nil
}

func (b *redisBackend) Del(ctx context.Context, key string) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		return xerrors.Wrapf(err, "redis del %s", key)
	}
	return nil
}
