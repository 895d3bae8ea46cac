package etcd

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyValue 一条键值及其修订号
type KeyValue struct {
	Key         string
	Value       []byte
	ModRevision int64
	Version     int64
}

// KV 键值读写
type KV struct {
	client *Client
	kv     clientv3.KV
}

// Get 读取单个键，瞬时错误按配置重试
func (k *KV) Get(ctx context.Context, key string) (*KeyValue, error) {
	if k.client.closed.Load() {
		return nil, ErrClientClosed
	}
	var out *KeyValue
	err := k.client.withRetry(ctx, func(ctx context.Context) error {
		resp, err := k.kv.Get(ctx, key)
		if err != nil {
			return errors.Wrapf(err, "etcd: get %s", key)
		}
		if len(resp.Kvs) == 0 {
			return errors.Wrapf(ErrKeyNotFound, "%s", key)
		}
		out = toKeyValue(resp.Kvs[0])
		return nil
	})
	return out, err
}

// List 按键排序返回前缀下的全部键值，没有匹配时返回空切片
func (k *KV) List(ctx context.Context, prefix string) ([]*KeyValue, error) {
	if k.client.closed.Load() {
		return nil, ErrClientClosed
	}
	var out []*KeyValue
	err := k.client.withRetry(ctx, func(ctx context.Context) error {
		resp, err := k.kv.Get(ctx, prefix,
			clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		)
		if err != nil {
			return errors.Wrapf(err, "etcd: list %s", prefix)
		}
		out = make([]*KeyValue, 0, len(resp.Kvs))
		for _, kv := range resp.Kvs {
			out = append(out, toKeyValue(kv))
		}
		return nil
	})
	return out, err
}

// Put 写入键值，不重试
func (k *KV) Put(ctx context.Context, key, value string) error {
	if k.client.closed.Load() {
		return ErrClientClosed
	}
	if _, err := k.kv.Put(ctx, key, value); err != nil {
		return errors.Wrapf(err, "etcd: put %s", key)
	}
	return nil
}

// Delete 删除键，返回删除的数量
func (k *KV) Delete(ctx context.Context, key string) (int64, error) {
	if k.client.closed.Load() {
		return 0, ErrClientClosed
	}
	resp, err := k.kv.Delete(ctx, key)
	if err != nil {
		return 0, errors.Wrapf(err, "etcd: delete %s", key)
	}
	return resp.Deleted, nil
}

func toKeyValue(kv *mvccpb.KeyValue) *KeyValue {
	return &KeyValue{
		Key:         string(kv.Key),
		Value:       kv.Value,
		ModRevision: kv.ModRevision,
		Version:     kv.Version,
	}
}
