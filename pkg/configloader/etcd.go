package configloader

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/norbert/pkg/etcd"
)

// KVGetter etcd 读取接口，*etcd.KV 实现了它
type KVGetter interface {
	Get(ctx context.Context, key string) (*etcd.KeyValue, error)
}

// EtcdLoader 从 etcd 的 prefix/relPath 键读取配置
type EtcdLoader struct {
	kv      KVGetter
	prefix  string
	timeout time.Duration
}

// NewEtcdLoader 基于 etcd 客户端创建读取器
func NewEtcdLoader(client *etcd.Client, prefix string, timeout time.Duration) *EtcdLoader {
	return NewEtcdLoaderKV(client.KV(), prefix, timeout)
}

// NewEtcdLoaderKV 基于任意 KVGetter 创建读取器
func NewEtcdLoaderKV(kv KVGetter, prefix string, timeout time.Duration) *EtcdLoader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EtcdLoader{
		kv:      kv,
		prefix:  NormalizePrefix(prefix),
		timeout: timeout,
	}
}

// NormalizePrefix 保证前缀以 / 结尾
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "/norbert/modules/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// Key 返回 relPath 对应的 etcd 键
func (l *EtcdLoader) Key(relPath string) (string, error) {
	p, err := cleanPath(relPath)
	if err != nil {
		return "", err
	}
	return l.prefix + p, nil
}

// Prefix 返回键前缀
func (l *EtcdLoader) Prefix() string {
	return l.prefix
}

// Load 读取 relPath 对应的键并解析到 out
func (l *EtcdLoader) Load(relPath string, out any) error {
	key, err := l.Key(relPath)
	if err != nil {
		return loadError(relPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	kv, err := l.kv.Get(ctx, key)
	if err != nil {
		return loadError(relPath, errors.Wrapf(err, "get %s", key))
	}
	if err := decode(relPath, kv.Value, out); err != nil {
		return loadError(relPath, errors.Wrap(err, "parse"))
	}
	return nil
}
