package conc

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Future 表示一个异步计算的结果。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan struct{})}
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.ch)
}

// Await 阻塞直到计算完成，返回结果与错误。
func (f *Future[T]) Await() (T, error) {
	<-f.ch
	return f.value, f.err
}

// AwaitContext 阻塞直到计算完成或 ctx 结束。
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.ch:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value 阻塞并返回计算结果。
func (f *Future[T]) Value() T {
	<-f.ch
	return f.value
}

// Err 阻塞并返回计算错误。
func (f *Future[T]) Err() error {
	<-f.ch
	return f.err
}

// OK 阻塞并返回计算是否成功。
func (f *Future[T]) OK() bool {
	<-f.ch
	return f.err == nil
}

// Done 返回计算完成时关闭的通道。
func (f *Future[T]) Done() <-chan struct{} {
	return f.ch
}

// Go 在新的 goroutine 中执行 fn，panic 会被转换为错误。
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		future.complete(run(fn))
	}()
	return future
}

// AwaitAll 等待所有 future 完成，返回第一个错误。
func AwaitAll[T any](futures ...*Future[T]) error {
	var first error
	for _, future := range futures {
		if future == nil {
			continue
		}
		if err := future.Err(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BlockOnAll 等待所有 future 完成，返回合并后的全部错误。
func BlockOnAll[T any](futures ...*Future[T]) error {
	var errs error
	for _, future := range futures {
		if future == nil {
			continue
		}
		if err := future.Err(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func run[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("conc: task panicked: %v", r)
		}
	}()
	return fn()
}
