package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

// JobID 任务标识
type JobID = cron.EntryID

// JobFunc 任务函数，ctx 在超时或调度器释放时取消
type JobFunc func(ctx context.Context) error

// JobOption 任务选项
type JobOption func(*entry)

// WithRetry 覆盖调度器的重试策略
func WithRetry(p RetryPolicy) JobOption {
	return func(e *entry) { e.retry = p }
}

// WithMaxRetries 只覆盖重试次数
func WithMaxRetries(n uint64) JobOption {
	return func(e *entry) { e.retry.MaxRetries = n }
}

// JobInfo 任务快照
type JobInfo struct {
	ID       JobID
	Name     string
	Spec     string
	LastRun  time.Time
	NextRun  time.Time
	Runs     int64
	Failures int64
	Running  bool
}

// PanicError 任务 panic
type PanicError struct {
	Job   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scheduler: job %s panicked: %v", e.Job, e.Value)
}

type entry struct {
	id    JobID
	name  string
	spec  string
	fn    JobFunc
	retry RetryPolicy

	runs     atomic.Int64
	failures atomic.Int64
	running  atomic.Bool
	lastRun  atomic.Time
}

func (e *entry) info(next time.Time) JobInfo {
	return JobInfo{
		ID:       e.id,
		Name:     e.name,
		Spec:     e.spec,
		LastRun:  e.lastRun.Load(),
		NextRun:  next,
		Runs:     e.runs.Load(),
		Failures: e.failures.Load(),
		Running:  e.running.Load(),
	}
}
