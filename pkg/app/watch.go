package app

import (
	"context"
	"time"

	"github.com/lk2023060901/norbert/pkg/configloader"
	"github.com/lk2023060901/norbert/pkg/etcd"
	"github.com/lk2023060901/norbert/pkg/logger"
	"github.com/lk2023060901/norbert/pkg/service"
)

// newConfigWatch 监听模块配置前缀，有变更时合并后重载模块
func (b *Bot) newConfigWatch() service.Service {
	prefix := configloader.NormalizePrefix(b.cfg.ConfigSource.Prefix)
	w := b.etcd.Watcher()
	w.OnError(func(key string, err error) {
		b.log.Error("config watch stopped", logger.Fields("prefix", key, "error", err)...)
	})
	return &service.Func{
		Name: "config-watch",
		OnStart: func(context.Context) error {
			b.log.Info("watching module config", logger.Fields("prefix", prefix)...)
			return w.WatchPrefix(context.Background(), prefix, func(ev *etcd.WatchEvent) {
				b.log.Debug("module config changed", logger.Fields("key", ev.Key, "type", ev.Type)...)
				b.scheduleReload()
			})
		},
		OnStop: func(context.Context) error {
			w.StopWatch(prefix)
			return nil
		},
	}
}

// scheduleReload 在合并窗口内的多次变更只触发一次重载
func (b *Bot) scheduleReload() {
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()

	if b.reloadTimer != nil {
		b.reloadTimer.Reset(b.cfg.ConfigSource.Debounce)
		return
	}
	b.reloadTimer = time.AfterFunc(b.cfg.ConfigSource.Debounce, func() {
		b.reloadMu.Lock()
		b.reloadTimer = nil
		b.reloadMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = b.Reload(ctx)
	})
}

func (b *Bot) cancelReload() {
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()
	if b.reloadTimer != nil {
		b.reloadTimer.Stop()
		b.reloadTimer = nil
	}
}
