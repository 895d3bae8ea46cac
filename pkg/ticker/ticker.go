// Package ticker 在后台按固定间隔执行回调。
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/norbert/pkg/conc"
)

// ErrRunning 重复启动
var ErrRunning = errors.New("ticker: already running")

// Func 定时回调
type Func func()

// PanicHandler 回调 panic 时调用
type PanicHandler func(recovered any)

// Option 定时器选项
type Option func(*Ticker)

// WithPanicHandler 设置 panic 处理，未设置时 panic 被吞掉，定时器继续运行
func WithPanicHandler(fn PanicHandler) Option {
	return func(t *Ticker) { t.onPanic = fn }
}

// WithImmediate 启动时先执行一次回调
func WithImmediate() Option {
	return func(t *Ticker) { t.immediate = true }
}

// Ticker 后台定时器，可在 Stop 之后再次 Start。
type Ticker struct {
	interval  time.Duration
	fn        Func
	onPanic   PanicHandler
	immediate bool

	fired *atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	loop   *conc.Future[struct{}]
}

// New 创建定时器，interval 非正时按一秒处理
func New(interval time.Duration, fn Func, opts ...Option) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	t := &Ticker{
		interval: interval,
		fn:       fn,
		fired:    atomic.NewUint64(0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start 在后台启动循环后立即返回，ctx 取消与 Stop 都会结束循环
func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop != nil {
		select {
		case <-t.loop.Done():
		default:
			return ErrRunning
		}
	}

	ctx, t.cancel = context.WithCancel(ctx)
	if t.immediate {
		t.fire()
	}
	t.loop = conc.Go(func() (struct{}, error) {
		t.run(ctx)
		return struct{}{}, nil
	})
	return nil
}

func (t *Ticker) run(ctx context.Context) {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			t.fire()
		}
	}
}

func (t *Ticker) fire() {
	defer func() {
		if r := recover(); r != nil && t.onPanic != nil {
			t.onPanic(r)
		}
	}()
	t.fired.Inc()
	if t.fn != nil {
		t.fn()
	}
}

// Stop 结束循环并等待正在执行的回调返回，未启动时无操作
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, loop := t.cancel, t.loop
	t.cancel, t.loop = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_, _ = loop.Await()
}

// Running 循环是否在运行
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop == nil {
		return false
	}
	select {
	case <-t.loop.Done():
		return false
	default:
		return true
	}
}

// Fired 累计回调次数
func (t *Ticker) Fired() uint64 {
	return t.fired.Load()
}

// Interval 间隔
func (t *Ticker) Interval() time.Duration {
	return t.interval
}
