// Package app 组装机器人进程：配置、分发器、聊天连接、模块宿主与后台服务。
package app

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/config"
	"github.com/lk2023060901/norbert/pkg/etcd"
	"github.com/lk2023060901/norbert/pkg/host"
	"github.com/lk2023060901/norbert/pkg/httpsvc"
	"github.com/lk2023060901/norbert/pkg/irc"
	"github.com/lk2023060901/norbert/pkg/logger"
	"github.com/lk2023060901/norbert/pkg/module"
	"github.com/lk2023060901/norbert/pkg/service"
)

const shutdownTimeout = 30 * time.Second

var (
	errNilConfig      = errors.New("app: config is nil")
	errAlreadyStarted = errors.New("app: application already started")
)

// Transport 聊天连接，除聊天能力外还负责连接生命周期。
type Transport interface {
	capability.ChatClient
	// Connect 建立连接，连接成功后加入配置中的频道
	Connect(ctx context.Context) error
	// Quit 发送告别消息并断开
	Quit(ctx context.Context) error
	// Done 连接结束后关闭
	Done() <-chan struct{}
}

// TransportFactory 基于分发器创建聊天连接
type TransportFactory func(cfg irc.Config, hub irc.Dispatcher, log logger.Logger, clk clock.Clock) Transport

func defaultTransport(cfg irc.Config, hub irc.Dispatcher, log logger.Logger, clk clock.Clock) Transport {
	return irc.New(cfg, hub, irc.WithLogger(log), irc.WithClock(clk))
}

// Option 应用选项
type Option func(*options)

type options struct {
	fs        afero.Fs
	catalog   *module.Catalog
	transport TransportFactory
	loader    capability.ConfigLoader
	http      capability.HTTPService
	log       logger.Logger
	console   io.Reader
}

// WithFs 设置模块目录所在的文件系统，默认磁盘
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithCatalog 设置模块工厂目录，默认 module.Default()
func WithCatalog(c *module.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithTransport 替换聊天连接
func WithTransport(f TransportFactory) Option {
	return func(o *options) { o.transport = f }
}

// WithConfigLoader 替换模块配置来源
func WithConfigLoader(l capability.ConfigLoader) Option {
	return func(o *options) { o.loader = l }
}

// WithHTTPService 替换 HTTP 能力
func WithHTTPService(s capability.HTTPService) Option {
	return func(o *options) { o.http = s }
}

// WithLogger 设置进程日志，默认取具名日志 norbert
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithConsole 设置控制台输入，nil 表示不读取控制台
func WithConsole(r io.Reader) Option {
	return func(o *options) { o.console = r }
}

// Bot 机器人进程
type Bot struct {
	cfg     *config.Config
	log     logger.Logger
	clock   clock.Clock
	metrics *prometheus.Registry
	console io.Reader

	hub       *chat.Hub
	transport Transport
	host      *host.Manager
	etcd      *etcd.Client
	loader    capability.ConfigLoader

	services   service.Group
	watchers   service.Group
	metricsSrv *metricsServer

	reloadMu    sync.Mutex
	reloadTimer *time.Timer

	mu      sync.Mutex
	started bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error
}

// New 按配置组装进程，不发起任何网络连接（etcd 配置来源除外）
func New(cfg *config.Config, opts ...Option) (*Bot, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	o := options{
		fs:        afero.NewOsFs(),
		catalog:   module.Default(),
		transport: defaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetOr("norbert", logger.NewConsoleLogger(logger.LevelInfo))
	}

	clk, err := clock.New(cfg.Clock)
	if err != nil {
		return nil, errors.Wrap(err, "app: create clock")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := &Bot{
		cfg:        cfg,
		log:        o.log,
		clock:      clk,
		metrics:    reg,
		console:    o.console,
		shutdownCh: make(chan struct{}),
	}

	b.hub = chat.NewHub(cfg.Dispatch,
		chat.WithLogger(logger.GetOr("chat", o.log)),
		chat.WithMetrics(chat.NewMetrics(reg)),
	)
	b.transport = o.transport(irc.Config{
		Server:        cfg.Server,
		TLS:           cfg.TLS,
		Nick:          cfg.Nick,
		User:          cfg.User,
		RealName:      cfg.RealName,
		Channels:      cfg.Channels,
		QuitMsg:       cfg.QuitMsg,
		CommandPrefix: cfg.CommandPrefix,
	}, b.hub, o.log, clk)

	b.loader = o.loader
	if b.loader == nil {
		b.loader, b.etcd, err = newConfigLoader(cfg, o.fs)
		if err != nil {
			return nil, err
		}
	}
	httpSvc := o.http
	if httpSvc == nil {
		httpSvc = httpsvc.New(cfg.HTTP)
	}

	b.host = host.New(host.Options{
		Dir:     cfg.Modules.Dir,
		Fs:      o.fs,
		Catalog: o.catalog,
		Config:  b.loader,
		HTTP:    httpSvc,
		Chat:    b.transport,
		Logger:  logger.GetOr("module", o.log),
		Clock:   clk,
	})

	if err := b.services.Add(newClockService(clk, o.log)); err != nil {
		return nil, err
	}
	if cfg.Metrics.Listen != "" {
		b.metricsSrv = newMetricsServer(cfg.Metrics.Listen, reg, o.log)
		if err := b.services.Add(b.metricsSrv); err != nil {
			return nil, err
		}
	}
	if b.etcd != nil && cfg.ConfigSource.Watch {
		if err := b.watchers.Add(b.newConfigWatch()); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Host 返回模块管理器
func (b *Bot) Host() *host.Manager {
	return b.host
}

// Hub 返回消息分发器
func (b *Bot) Hub() *chat.Hub {
	return b.hub
}

// Metrics 返回指标注册表
func (b *Bot) Metrics() prometheus.Gatherer {
	return b.metrics
}

// MetricsAddr 指标端点实际监听的地址，未启用或未启动时为空
func (b *Bot) MetricsAddr() string {
	if b.metricsSrv == nil || b.metricsSrv.addr == nil {
		return ""
	}
	return b.metricsSrv.addr.String()
}

// Start 启动后台服务、加载模块并建立连接。模块加载失败时不会连接。
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errAlreadyStarted
	}

	if err := b.services.Start(ctx); err != nil {
		return err
	}
	if err := b.host.LoadModules(ctx); err != nil {
		_ = b.services.Stop(ctx)
		return err
	}
	if err := b.transport.Connect(ctx); err != nil {
		b.logUnload(b.host.UnloadModules(ctx))
		_ = b.services.Stop(ctx)
		return err
	}
	if err := b.watchers.Start(ctx); err != nil {
		b.log.Warn("config watch unavailable", logger.Err(err))
	}

	b.started = true
	b.log.Info("norbert started", logger.Fields("modules", b.host.Modules())...)
	return nil
}

// Run 启动并阻塞，直到上下文取消、收到退出信号、连接结束或控制台要求退出。
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		_ = b.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := b.consoleLines()
	for {
		select {
		case <-ctx.Done():
			_ = b.shutdown()
			return ctx.Err()
		case sig := <-sigCh:
			b.log.Info("signal received", logger.Fields("signal", sig.String())...)
			return b.shutdown()
		case <-b.transport.Done():
			b.log.Warn("chat connection closed")
			return b.shutdown()
		case <-b.shutdownCh:
			return b.shutdownError()
		case line, ok := <-lines:
			if !ok || !b.handleConsole(ctx, line) {
				return b.shutdown()
			}
		}
	}
}

// handleConsole 执行一行控制台指令，返回 false 表示退出
func (b *Bot) handleConsole(ctx context.Context, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "reload":
		_ = b.Reload(ctx)
		return true
	case "modules":
		b.log.Info("loaded modules", logger.Fields("modules", b.host.Modules())...)
		return true
	default:
		return false
	}
}

func (b *Bot) consoleLines() <-chan string {
	if b.console == nil {
		return nil
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(b.console)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-b.shutdownCh:
				return
			}
		}
	}()
	return lines
}

// Reload 以新实例重新加载全部模块，失败只记录，进程继续运行
func (b *Bot) Reload(ctx context.Context) error {
	b.log.Info("reloading modules")
	if err := b.host.Reload(ctx); err != nil {
		b.log.Error("module reload failed", logger.Err(err))
		return err
	}
	return nil
}

func (b *Bot) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return b.Shutdown(ctx)
}

// Shutdown 只执行一次：停止分发，停用模块，告别断开，再停止后台服务
func (b *Bot) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		err := b.stop(ctx)
		b.mu.Lock()
		b.shutdownErr = err
		b.mu.Unlock()
		close(b.shutdownCh)
	})
	return b.shutdownError()
}

func (b *Bot) stop(ctx context.Context) error {
	b.log.Info("shutting down")
	var errs []error

	if err := b.watchers.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	b.cancelReload()
	if err := b.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	b.logUnload(b.host.UnloadModules(ctx))
	if err := b.transport.Quit(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := b.services.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if b.etcd != nil {
		if err := b.etcd.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	b.started = false
	b.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		b.log.Error("shutdown finished with errors", logger.Err(err))
	} else {
		b.log.Info("shutdown complete")
	}
	_ = logger.SyncAll()
	return err
}

// logUnload 停用失败只报告
func (b *Bot) logUnload(err error) {
	if err != nil {
		b.log.Warn("module unload reported errors", logger.Err(err))
	}
}

func (b *Bot) shutdownError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shutdownErr
}
