// Package announce 按 cron 表达式定时向频道发送公告。
package announce

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/logger"
	"github.com/lk2023060901/norbert/pkg/module"
	"github.com/lk2023060901/norbert/pkg/scheduler"
)

const (
	// ConfigPath 模块配置的相对路径
	ConfigPath = "Announce/Config.json"

	command     = "announcements"
	sendTimeout = 10 * time.Second
	timeLayout  = "2006-01-02 15:04 MST"
)

func init() {
	module.MustRegister("announce", New)
}

// Announcement 一条定时公告
type Announcement struct {
	Name    string `json:"Name"`
	Spec    string `json:"Spec"`
	Channel string `json:"Channel"`
	Text    string `json:"Text"`
}

// Config 模块配置
type Config struct {
	Timezone      string         `json:"Timezone"`
	Announcements []Announcement `json:"Announcements"`
	// Retries 发送失败的重试次数
	Retries int `json:"Retries"`
}

type job struct {
	id       scheduler.JobID
	ann      Announcement
	schedule cron.Schedule
}

// Announce 定时公告模块
type Announce struct {
	chat  capability.ChatClient
	clock clock.Clock
	log   logger.Logger

	mu    sync.RWMutex
	loc   *time.Location
	sched *scheduler.Scheduler
	jobs  []job
}

// New 创建模块实例
func New() module.Module {
	return &Announce{loc: time.UTC}
}

// Activate 读取公告配置并启动调度
func (a *Announce) Activate(_ context.Context, caps capability.Set) error {
	caps = caps.WithDefaults()
	a.chat = caps.Chat
	a.clock = caps.Clock
	a.log = caps.Logger

	cfg, err := capability.LoadConfig[Config](caps.Config, ConfigPath)
	if err != nil {
		a.log.Warn("load announce config failed, no announcements scheduled", logger.Err(err))
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		a.log.Warn("invalid announce timezone, using UTC", logger.Fields("timezone", tz, "error", err)...)
		tz, loc = "UTC", time.UTC
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Location = loc
	schedCfg.JobTimeout = sendTimeout
	schedCfg.Retry.MaxRetries = uint64(max(cfg.Retries, 0))
	sched := scheduler.New(schedCfg, scheduler.WithLogger(a.log))

	var jobs []job
	for _, ann := range cfg.Announcements {
		j, err := a.schedule(sched, ann)
		if err != nil {
			a.log.Warn("skipping announcement", logger.Fields("name", ann.Name, "error", err)...)
			continue
		}
		jobs = append(jobs, j)
	}
	sched.Start()

	a.mu.Lock()
	a.loc = loc
	a.sched = sched
	a.jobs = jobs
	a.mu.Unlock()

	a.log.Info("announcements scheduled", logger.Fields("count", len(jobs), "timezone", tz)...)
	a.chat.Subscribe(a.OnMessage)
	return nil
}

func (a *Announce) schedule(sched *scheduler.Scheduler, ann Announcement) (job, error) {
	ann.Name = strings.TrimSpace(ann.Name)
	ann.Channel = strings.TrimSpace(ann.Channel)
	switch {
	case ann.Name == "":
		return job{}, errors.New("missing Name")
	case ann.Channel == "":
		return job{}, errors.New("missing Channel")
	case strings.TrimSpace(ann.Text) == "":
		return job{}, errors.New("missing Text")
	}

	parsed, err := cron.ParseStandard(ann.Spec)
	if err != nil {
		return job{}, errors.Wrapf(err, "invalid Spec %q", ann.Spec)
	}

	id, err := sched.AddFunc(ann.Name, ann.Spec, func(ctx context.Context) error {
		return a.chat.SendMessage(ctx, ann.Text, ann.Channel)
	})
	if err != nil {
		return job{}, err
	}
	return job{id: id, ann: ann, schedule: parsed}, nil
}

// OnMessage 响应 announcements 指令，列出公告与下次发送时间
func (a *Announce) OnMessage(ctx context.Context, msg chat.Message) {
	if msg.IsPrivate || !msg.IsCommand {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(msg.Text), command) {
		return
	}

	reply := msg.Nick + ": " + a.Summary()
	if err := a.chat.SendMessage(ctx, reply, msg.Source); err != nil {
		a.log.WarnContext(ctx, "send announcements reply failed", logger.Err(err))
	}
}

// Summary 返回公告名称与下次发送时间
func (a *Announce) Summary() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.jobs) == 0 {
		return "no announcements scheduled"
	}
	now := a.clock.Now().In(a.loc)
	parts := make([]string, 0, len(a.jobs))
	for _, j := range a.jobs {
		next := j.schedule.Next(now)
		parts = append(parts, j.ann.Name+" ("+j.ann.Channel+", next "+next.Format(timeLayout)+")")
	}
	return strings.Join(parts, ", ")
}

// RunNow 立即发送指定名称的公告
func (a *Announce) RunNow(name string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, j := range a.jobs {
		if j.ann.Name == name {
			return a.sched.RunNow(j.id)
		}
	}
	return errors.Wrapf(scheduler.ErrJobNotFound, "announcement %q", name)
}

// Deactivate 停止调度并等待进行中的发送
func (a *Announce) Deactivate(ctx context.Context) error {
	a.mu.Lock()
	sched := a.sched
	a.sched = nil
	a.jobs = nil
	a.mu.Unlock()

	if sched == nil {
		return nil
	}
	stopped := sched.Stop()
	defer sched.Release()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "announce: wait for running jobs")
	}
}
