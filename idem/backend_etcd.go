package idem

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/idemkit/connector"
	"github.com/ceyewan/idemkit/xerrors"
)

// etcdBackend 基于 etcd 事务 + 租约的存储实现
//
// SetNX 使用 If(CreateRevision == 0).Then(Put WithLease) 保证原子性，
// 租约 TTL 的最小粒度是 1 秒，不足 1 秒的部分向上取整。
type etcdBackend struct {
	conn connector.EtcdConnector
}

// NewEtcdBackend 基于 etcd 连接器创建存储
func NewEtcdBackend(conn connector.EtcdConnector) Backend {
	return &etcdBackend{conn: conn}
}

func (b *etcdBackend) client() (*clientv3.Client, error) {
	client := b.conn.GetClient()
	if client == nil {
		return nil, xerrors.Wrap(ErrBackendUnavailable, "etcd client is not connected")
	}
	return client, nil
}

func (b *etcdBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	client, err := b.client()
	if err != nil {
		return false, err
	}

	lease, err := client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return false, xerrors.Wrapf(err, "etcd grant lease for %s", key)
	}

	resp, err := client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value), clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		_, _ = client.Revoke(context.WithoutCancel(ctx), lease.ID)
		return false, xerrors.Wrapf(err, "etcd txn %s", key)
	}
	if !resp.Succeeded {
		// 键已存在，租约没有挂载任何键，直接回收
		_, _ = client.Revoke(context.WithoutCancel(ctx), lease.ID)
		return false, nil
	}
	return true, nil
}

func (b *etcdBackend) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := b.client()
	if err != nil {
		return nil, err
	}
	resp, err := client.Get(ctx, key)
	if err != nil {
		return nil, xerrors.Wrapf(err, "etcd get %s", key)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (b *etcdBackend) Del(ctx context.Context, key string) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	if _, err := client.Delete(ctx, key); err != nil {
		return xerrors.Wrapf(err, "etcd delete %s", key)
	}
	return nil
}

func leaseSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
