package conc

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
)

var (
	// ErrPoolReleased 表示协程池已释放，任务未被执行。
	ErrPoolReleased = errors.New("conc: pool released")
	// ErrPoolOverload 非阻塞模式下没有空闲 worker，任务未被执行。
	ErrPoolOverload = errors.New("conc: pool overloaded")
)

// PoolOption 协程池选项。
type PoolOption func(*poolOptions)

type poolOptions struct {
	preAlloc    bool
	nonBlocking bool
	panicHook   func(any)
}

// WithPreAlloc 预分配 worker 队列。
func WithPreAlloc(v bool) PoolOption {
	return func(o *poolOptions) {
		o.preAlloc = v
	}
}

// WithNonBlocking 池满时立即返回错误而不是等待空闲 worker。
func WithNonBlocking(v bool) PoolOption {
	return func(o *poolOptions) {
		o.nonBlocking = v
	}
}

// WithPanicHook 设置任务 panic 时的回调（任务本身仍以错误结束）。
func WithPanicHook(fn func(any)) PoolOption {
	return func(o *poolOptions) {
		o.panicHook = fn
	}
}

// Pool 基于 ants 的泛型协程池，Submit 返回 Future。
type Pool[T any] struct {
	inner     *ants.Pool
	opts      poolOptions
	submitted *atomic.Int64
	rejected  *atomic.Int64
}

// NewPool 创建容量为 size 的协程池，size <= 0 时使用 CPU 数。
func NewPool[T any](size int, opts ...PoolOption) *Pool[T] {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	o := poolOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	antsOpts := []ants.Option{
		ants.WithPreAlloc(o.preAlloc),
		ants.WithNonblocking(o.nonBlocking),
	}
	inner, err := ants.NewPool(size, antsOpts...)
	if err != nil {
		// 仅在 size 非法时出错，上面已保证 size > 0。
		panic(err)
	}
	return &Pool[T]{
		inner:     inner,
		opts:      o,
		submitted: atomic.NewInt64(0),
		rejected:  atomic.NewInt64(0),
	}
}

// NewDefaultPool 创建容量为 CPU 数的协程池。
func NewDefaultPool[T any]() *Pool[T] {
	return NewPool[T](runtime.GOMAXPROCS(0))
}

// Submit 提交任务，返回对应的 Future。提交失败时 Future 立即以错误完成。
func (p *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := p.inner.Submit(func() {
		value, err := run(func() (T, error) {
			defer func() {
				if r := recover(); r != nil {
					if p.opts.panicHook != nil {
						p.opts.panicHook(r)
					}
					panic(r)
				}
			}()
			return method()
		})
		future.complete(value, err)
	})
	if err != nil {
		p.rejected.Inc()
		var zero T
		switch {
		case errors.Is(err, ants.ErrPoolClosed):
			err = ErrPoolReleased
		case errors.Is(err, ants.ErrPoolOverload):
			err = ErrPoolOverload
		}
		future.complete(zero, errors.Wrap(err, "conc: submit task"))
		return future
	}
	p.submitted.Inc()
	return future
}

// Cap 返回池容量。
func (p *Pool[T]) Cap() int {
	return p.inner.Cap()
}

// Running 返回正在执行任务的 worker 数。
func (p *Pool[T]) Running() int {
	return p.inner.Running()
}

// Free 返回空闲 worker 数。
func (p *Pool[T]) Free() int {
	return p.inner.Free()
}

// Submitted 返回成功提交的任务总数。
func (p *Pool[T]) Submitted() int64 {
	return p.submitted.Load()
}

// Rejected 返回提交失败的任务总数。
func (p *Pool[T]) Rejected() int64 {
	return p.rejected.Load()
}

// Release 释放协程池，已提交的任务会继续执行完。
func (p *Pool[T]) Release() {
	p.inner.Release()
}

// IsReleased 返回协程池是否已释放。
func (p *Pool[T]) IsReleased() bool {
	return p.inner.IsClosed()
}
