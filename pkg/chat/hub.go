package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/norbert/pkg/conc"
	"github.com/lk2023060901/norbert/pkg/logger"
)

// ErrHubClosed 分发器已关闭
var ErrHubClosed = errors.New("chat: hub closed")

// Config 分发器配置
type Config struct {
	// Workers 常驻处理协程数，全部繁忙时溢出到临时协程，发布方不等待
	Workers int `yaml:"workers"`
	// HandlerTimeout 单次处理超时，0 表示不限制
	HandlerTimeout time.Duration `yaml:"handlerTimeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Workers:        256,
		HandlerTimeout: 60 * time.Second,
	}
}

// SubscribeOption 订阅选项
type SubscribeOption func(*subscription)

// WithSubscriber 设置订阅者名称，用于日志和指标
func WithSubscriber(name string) SubscribeOption {
	return func(s *subscription) {
		s.name = name
	}
}

type delivery struct {
	ctx context.Context
	msg Message
}

// subscription 持有一个无界邮箱，由独立的派发协程按到达顺序启动处理
type subscription struct {
	id      uint64
	name    string
	handler Handler

	mu      sync.Mutex
	queue   []delivery
	stopped bool
	wake    chan struct{}
}

// enqueue 放入邮箱，订阅已停止时返回 false
func (s *subscription) enqueue(d delivery) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, d)
	s.mu.Unlock()
	s.signal()
	return true
}

// next 取出下一条投递，邮箱为空时等待；停止后返回 false
func (s *subscription) next() (delivery, bool) {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return delivery{}, false
		}
		if len(s.queue) > 0 {
			d := s.queue[0]
			s.queue[0] = delivery{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return d, true
		}
		s.mu.Unlock()
		<-s.wake
	}
}

// stop 停止派发并丢弃尚未开始的投递，返回丢弃数量
func (s *subscription) stop() int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	s.stopped = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()
	s.signal()
	return dropped
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Option 分发器选项
type Option func(*Hub)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// Hub 消息分发器。
//
// 每个订阅者有自己的邮箱与派发协程：Publish 只入队，从不等待处理器。
// 同一订阅者的处理按到达顺序启动，但可以相互重叠；不同订阅者之间没有顺序保证。
type Hub struct {
	cfg     Config
	pool    *conc.Pool[struct{}]
	log     logger.Logger
	metrics *Metrics

	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	closed bool

	inflight  sync.WaitGroup
	loops     sync.WaitGroup
	published *atomic.Int64
	overflow  *atomic.Int64
}

// NewHub 创建分发器
func NewHub(cfg Config, opts ...Option) *Hub {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	h := &Hub{
		cfg:       cfg,
		log:       logger.Nop(),
		published: atomic.NewInt64(0),
		overflow:  atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(nil)
	}
	h.pool = conc.NewPool[struct{}](cfg.Workers, conc.WithNonBlocking(true))
	return h
}

// Subscribe 注册处理器，返回幂等的取消订阅函数。
// 取消订阅后，邮箱中尚未开始的投递被丢弃。
func (h *Hub) Subscribe(handler Handler, opts ...SubscribeOption) func() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	h.nextID++
	sub := &subscription{id: h.nextID, handler: handler, wake: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.name == "" {
		sub.name = fmt.Sprintf("subscriber-%d", sub.id)
	}
	h.subs = append(h.subs, sub)
	h.loops.Add(1)
	h.mu.Unlock()

	conc.Go(func() (struct{}, error) {
		defer h.loops.Done()
		h.dispatch(sub)
		return struct{}{}, nil
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			for i, s := range h.subs {
				if s.id == sub.id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					break
				}
			}
			h.mu.Unlock()
			h.discard(sub)
		})
	}
}

// discard 停止订阅者并结清被丢弃的投递
func (h *Hub) discard(sub *subscription) {
	dropped := sub.stop()
	for range dropped {
		h.metrics.dropped.Inc()
		h.inflight.Done()
	}
}

// Subscribers 返回当前订阅者名称（注册顺序）
func (h *Hub) Subscribers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, len(h.subs))
	for i, s := range h.subs {
		names[i] = s.name
	}
	return names
}

// Publish 将消息放入所有订阅者的邮箱后立即返回，关闭后返回 ErrHubClosed
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		h.metrics.dropped.Inc()
		return ErrHubClosed
	}
	subs := make([]*subscription, len(h.subs))
	copy(subs, h.subs)
	h.inflight.Add(len(subs))
	h.mu.RUnlock()

	h.published.Inc()
	// 处理器生命周期不跟随发布方
	d := delivery{ctx: context.WithoutCancel(ctx), msg: msg}
	for _, sub := range subs {
		if !sub.enqueue(d) {
			h.inflight.Done()
		}
	}
	return nil
}

// dispatch 按到达顺序启动处理，上一条开始执行后才启动下一条
func (h *Hub) dispatch(sub *subscription) {
	for {
		d, ok := sub.next()
		if !ok {
			return
		}
		started := make(chan struct{})
		h.start(sub, func() {
			defer h.inflight.Done()
			h.invoke(d.ctx, sub, d.msg, started)
		})
		<-started
	}
}

// start 优先交给协程池，池满或已释放时改用临时协程
func (h *Hub) start(sub *subscription, task func()) {
	future := h.pool.Submit(func() (struct{}, error) {
		task()
		return struct{}{}, nil
	})
	select {
	case <-future.Done():
		if err := future.Err(); err != nil {
			h.overflow.Inc()
			h.log.Debug("chat: worker pool exhausted, running on overflow goroutine",
				logger.Fields("subscriber", sub.name, "error", err)...)
			conc.Go(func() (struct{}, error) {
				task()
				return struct{}{}, nil
			})
		}
	default:
	}
}

// invoke 执行单次处理，panic 与超时只记录不传播
func (h *Hub) invoke(ctx context.Context, sub *subscription, msg Message, started chan<- struct{}) {
	ctx = logger.ContextWith(ctx,
		logger.Field{Key: "message_id", Value: msg.ID.String()},
		logger.Field{Key: "subscriber", Value: sub.name},
	)
	if h.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.HandlerTimeout)
		defer cancel()
	}

	h.log.DebugContext(ctx, "chat: handler started")
	close(started)

	start := time.Now()
	defer func() {
		h.metrics.observe(sub.name, time.Since(start))
		if r := recover(); r != nil {
			h.metrics.fail(sub.name, ReasonPanic)
			h.log.ErrorContext(ctx, "chat: handler panicked", logger.Fields("panic", fmt.Sprint(r))...)
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.metrics.fail(sub.name, ReasonTimeout)
			h.log.WarnContext(ctx, "chat: handler exceeded timeout", logger.Fields("timeout", h.cfg.HandlerTimeout)...)
		}
	}()

	sub.handler(ctx, msg)
}

// Drain 等待所有进行中的处理完成
func (h *Hub) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "chat: drain")
	}
}

// Close 停止接收消息，等待进行中的处理完成后停止派发协程并释放协程池
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	err := h.Drain(ctx)
	for _, sub := range subs {
		h.discard(sub)
	}
	h.loops.Wait()
	h.pool.Release()
	return err
}

// Published 已发布的消息数
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Overflowed 因协程池占满而改用临时协程执行的处理数
func (h *Hub) Overflowed() int64 {
	return h.overflow.Load()
}
