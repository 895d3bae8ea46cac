// Package etcd 封装模块配置中心用到的 etcd 读写与前缀监听。
package etcd

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-retry"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/atomic"
)

// Client etcd 客户端
type Client struct {
	raw    *clientv3.Client
	cfg    Config
	closed *atomic.Bool

	kv      *KV
	watcher *Watcher
}

// New 校验配置并创建客户端，cfg 为 nil 时连接本机
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	raw, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, "etcd: create client")
	}

	c := &Client{raw: raw, cfg: *cfg, closed: atomic.NewBool(false)}
	c.kv = &KV{client: c, kv: clientv3.NewKV(raw)}
	c.watcher = newWatcher(c, clientv3.NewWatcher(raw))
	return c, nil
}

// KV 键值读写
func (c *Client) KV() *KV {
	return c.kv
}

// Watcher 前缀监听
func (c *Client) Watcher() *Watcher {
	return c.watcher
}

// Close 停止所有监听并断开，可重复调用
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.watcher.StopAll()
	return c.raw.Close()
}

// withRetry 按配置的固定间隔重试，ErrKeyNotFound 与 ctx 结束不重试
func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	interval := c.cfg.RetryInterval
	if interval <= 0 {
		interval = DefaultConfig().RetryInterval
	}
	b := retry.WithMaxRetries(c.cfg.Retries, retry.NewConstant(interval))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, ErrKeyNotFound) || ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}
