package etcd

import "github.com/cockroachdb/errors"

var (
	// ErrKeyNotFound 键不存在
	ErrKeyNotFound = errors.New("etcd: key not found")
	// ErrWatchClosed 服务端关闭了监听
	ErrWatchClosed = errors.New("etcd: watch closed")
	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = errors.New("etcd: invalid config")
	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("etcd: client closed")
)
