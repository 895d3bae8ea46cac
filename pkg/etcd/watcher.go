package etcd

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lk2023060901/norbert/pkg/conc"
)

// EventType 变更类型
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

func (t EventType) String() string {
	if t == EventDelete {
		return "delete"
	}
	return "put"
}

// WatchEvent 一次键变更
type WatchEvent struct {
	Type     EventType
	Key      string
	Value    []byte
	Revision int64
}

// WatchErrorHandler 监听异常结束时调用，主动停止不会触发
type WatchErrorHandler func(prefix string, err error)

type watch struct {
	cancel context.CancelFunc
}

// Watcher 前缀监听，同一前缀只保留一个监听
type Watcher struct {
	client *Client
	raw    clientv3.Watcher

	mu      sync.Mutex
	watches map[string]*watch
	onError WatchErrorHandler
}

func newWatcher(client *Client, raw clientv3.Watcher) *Watcher {
	return &Watcher{
		client:  client,
		raw:     raw,
		watches: make(map[string]*watch),
	}
}

// OnError 设置异常回调
func (w *Watcher) OnError(h WatchErrorHandler) {
	w.mu.Lock()
	w.onError = h
	w.mu.Unlock()
}

// WatchPrefix 在后台监听前缀下的变更，立即返回；已在监听时无操作
func (w *Watcher) WatchPrefix(ctx context.Context, prefix string, handler func(*WatchEvent)) error {
	if w.client.closed.Load() {
		return ErrClientClosed
	}

	w.mu.Lock()
	if _, ok := w.watches[prefix]; ok {
		w.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	cur := &watch{cancel: cancel}
	w.watches[prefix] = cur
	w.mu.Unlock()

	// 带上 leader 要求，网络分区时尽快收到取消
	ch := w.raw.Watch(clientv3.WithRequireLeader(ctx), prefix, clientv3.WithPrefix())
	conc.Go(func() (struct{}, error) {
		err := consume(ctx, ch, handler)

		cancel()
		w.mu.Lock()
		if w.watches[prefix] == cur {
			delete(w.watches, prefix)
		}
		onError := w.onError
		w.mu.Unlock()

		if err != nil && onError != nil {
			onError(prefix, err)
		}
		return struct{}{}, err
	})
	return nil
}

// consume 主动取消时返回 nil
func consume(ctx context.Context, ch clientv3.WatchChan, handler func(*WatchEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-ch:
			if ctx.Err() != nil {
				return nil
			}
			if !ok || resp.Canceled {
				if err := resp.Err(); err != nil {
					return errors.Wrap(err, "etcd: watch")
				}
				return ErrWatchClosed
			}
			if err := resp.Err(); err != nil {
				return errors.Wrap(err, "etcd: watch")
			}
			for _, ev := range resp.Events {
				handler(toWatchEvent(ev))
			}
		}
	}
}

func toWatchEvent(ev *clientv3.Event) *WatchEvent {
	out := &WatchEvent{
		Type:     EventPut,
		Key:      string(ev.Kv.Key),
		Value:    ev.Kv.Value,
		Revision: ev.Kv.ModRevision,
	}
	if ev.Type == clientv3.EventTypeDelete {
		out.Type = EventDelete
	}
	return out
}

// StopWatch 停止前缀监听
func (w *Watcher) StopWatch(prefix string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.watches[prefix]; ok {
		cur.cancel()
		delete(w.watches, prefix)
	}
}

// StopAll 停止全部监听
func (w *Watcher) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for prefix, cur := range w.watches {
		cur.cancel()
		delete(w.watches, prefix)
	}
}

// Watching 正在监听的前缀数量
func (w *Watcher) Watching() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}
