// Package scheduler 按 cron 表达式执行任务，附带超时、重试与运行统计。
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/norbert/pkg/conc"
	"github.com/lk2023060901/norbert/pkg/logger"
)

// Scheduler cron 调度器。
//
// 同一任务不会并发执行：上一次未结束时，定时触发被跳过，RunNow 返回 ErrJobBusy。
type Scheduler struct {
	cfg  Config
	cron *cron.Cron
	log  logger.Logger
	pool *conc.Pool[struct{}]

	// ctx 在 Release 时取消，进行中的任务随之结束
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[JobID]*entry
	running bool
}

// Option 调度器选项
type Option func(*Scheduler)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPool 设置执行 RunNow 的协程池
func WithPool(p *conc.Pool[struct{}]) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.pool = p
		}
	}
}

// New 创建调度器，cfg 为 nil 时使用 DefaultConfig
func New(cfg *Config, opts ...Option) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Location == nil {
		c.Location = time.UTC
	}

	s := &Scheduler{
		cfg:  c,
		cron: cron.New(cron.WithLocation(c.Location)),
		log:  logger.Nop(),
		jobs: make(map[JobID]*entry),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = conc.NewPool[struct{}](4)
	}
	return s
}

// AddFunc 按五段式 cron 表达式（或 @daily 等描述符）注册任务
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, errors.Newf("scheduler: job %s has no func", name)
	}
	e := &entry{name: name, spec: spec, fn: fn, retry: s.cfg.Retry}
	for _, opt := range opts {
		opt(e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.cron.AddFunc(spec, func() { s.fire(e) })
	if err != nil {
		return 0, errors.Wrapf(err, "scheduler: add job %s", name)
	}
	e.id = id
	s.jobs[id] = e

	s.log.Debug("job added", s.jobFields(e, "spec", spec)...)
	return id, nil
}

// Remove 删除任务，不影响进行中的执行
func (s *Scheduler) Remove(id JobID) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	s.cron.Remove(id)
	if ok {
		s.log.Debug("job removed", s.jobFields(e)...)
	}
}

// fire 由 cron 触发，上一次未结束时跳过
func (s *Scheduler) fire(e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		s.log.Debug("job skipped, still running", s.jobFields(e)...)
		return
	}
	s.execute(e)
}

// execute 调用方已将 running 置为 true
func (s *Scheduler) execute(e *entry) {
	defer e.running.Store(false)

	start := time.Now()
	e.lastRun.Store(start)
	err := s.attempt(s.ctx, e)
	e.runs.Inc()

	if err != nil {
		e.failures.Inc()
		s.log.Error("job failed", s.jobFields(e, "duration", time.Since(start), "error", err)...)
		return
	}
	s.log.Debug("job completed", s.jobFields(e, "duration", time.Since(start))...)
}

// RunNow 立即在协程池中执行一次，不影响后续调度
func (s *Scheduler) RunNow(id JobID) error {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrJobNotFound, "job %d", id)
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.Wrapf(ErrJobBusy, "job %s", e.name)
	}

	future := s.pool.Submit(func() (struct{}, error) {
		s.execute(e)
		return struct{}{}, nil
	})
	select {
	case <-future.Done():
		// 提交失败时 Future 立即完成并携带错误
		if err := future.Err(); err != nil {
			e.running.Store(false)
			return errors.Wrapf(err, "scheduler: submit job %s", e.name)
		}
	default:
	}
	return nil
}

// Start 开始按表达式触发
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop 停止触发，返回的 ctx 在进行中的定时执行结束后完成
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.running = false
	return s.cron.Stop()
}

// Running 是否在触发中
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Job 返回任务快照
func (s *Scheduler) Job(id JobID) (JobInfo, bool) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return JobInfo{}, false
	}
	return e.info(s.cron.Entry(id).Next), true
}

// Jobs 按注册顺序返回全部任务快照
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	out := make([]JobInfo, 0, len(s.jobs))
	for id, e := range s.jobs {
		out = append(out, e.info(s.cron.Entry(id).Next))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b JobInfo) int { return int(a.ID) - int(b.ID) })
	return out
}

// Release 停止触发，取消进行中的任务并释放协程池
func (s *Scheduler) Release() {
	s.Stop()
	s.cancel()
	s.pool.Release()
}

func (s *Scheduler) jobFields(e *entry, kv ...any) []logger.Field {
	return append(logger.Fields("job_id", e.id, "job_name", e.name), logger.Fields(kv...)...)
}
