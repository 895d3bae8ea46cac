package scheduler

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("scheduler: job not found")
	// ErrJobBusy 上一次执行尚未结束
	ErrJobBusy = errors.New("scheduler: job still running")
)

// Config 调度器配置
type Config struct {
	// Location cron 表达式所在时区，nil 为 UTC
	Location *time.Location
	// JobTimeout 单次尝试的超时，0 表示不限制
	JobTimeout time.Duration
	// Retry 失败重试策略，可被单个任务覆盖
	Retry RetryPolicy
}

// RetryPolicy 指数退避重试
type RetryPolicy struct {
	// MaxRetries 失败后的重试次数，0 不重试
	MaxRetries uint64
	// Base 首次重试前的等待
	Base time.Duration
	// Max 单次等待上限
	Max time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Location: time.UTC,
		Retry:    DefaultRetryPolicy(),
	}
}

// DefaultRetryPolicy 默认不重试，启用重试时从一秒开始翻倍、最长三十秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base: time.Second,
		Max:  30 * time.Second,
	}
}
