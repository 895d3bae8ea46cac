// Package clock 提供进程级缓存时钟，模块通过它取当前时间。
package clock

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
)

// Config 时钟配置
type Config struct {
	// Timezone 时区名称，默认 UTC
	Timezone string `yaml:"timezone"`
	// Offset 启动时的时间偏移，用于演练定时公告等
	Offset time.Duration `yaml:"offset"`
}

// DefaultConfig UTC，无偏移
func DefaultConfig() Config {
	return Config{Timezone: "UTC"}
}

// Clock 进程级时间源。
//
// Now 返回缓存时间加偏移量，缓存由外部定时调用 Tick 刷新。所有方法并发安全。
type Clock interface {
	// Tick 刷新缓存时间
	Tick()
	// Now 缓存时间加偏移量
	Now() time.Time
	// Location 时钟所用时区
	Location() *time.Location
	// SetOffset 设置偏移量
	SetOffset(d time.Duration)
	// Offset 当前偏移量
	Offset() time.Duration
}

type clock struct {
	loc    *time.Location
	source func() time.Time
	cached *atomic.Time
	offset *atomic.Duration
}

// New 按配置创建时钟
func New(cfg Config) (Clock, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "clock: load timezone %q", tz)
	}
	c := newClock(loc, time.Now)
	c.SetOffset(cfg.Offset)
	return c, nil
}

// MustNew 同 New，失败时 panic
func MustNew(cfg Config) Clock {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// NewFixed 停在 t 的时钟，Tick 不推进时间
func NewFixed(t time.Time) Clock {
	return newClock(t.Location(), func() time.Time { return t })
}

func newClock(loc *time.Location, source func() time.Time) *clock {
	return &clock{
		loc:    loc,
		source: source,
		cached: atomic.NewTime(source().In(loc)),
		offset: atomic.NewDuration(0),
	}
}

func (c *clock) Tick() {
	c.cached.Store(c.source().In(c.loc))
}

func (c *clock) Now() time.Time {
	return c.cached.Load().Add(c.offset.Load())
}

func (c *clock) Location() *time.Location {
	return c.loc
}

func (c *clock) SetOffset(d time.Duration) {
	c.offset.Store(d)
}

func (c *clock) Offset() time.Duration {
	return c.offset.Load()
}
