package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/config"
	"github.com/lk2023060901/norbert/pkg/configloader"
	"github.com/lk2023060901/norbert/pkg/etcd"
	"github.com/lk2023060901/norbert/pkg/logger"
	"github.com/lk2023060901/norbert/pkg/service"
	"github.com/lk2023060901/norbert/pkg/ticker"
)

const (
	clockTick       = 100 * time.Millisecond
	etcdReadTimeout = 5 * time.Second
)

// LoadConfigFromFile 读取并校验进程配置，并按 loggers 段初始化具名日志。
// 任何错误都应在建立连接之前终止进程。
func LoadConfigFromFile(path string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if len(cfg.Loggers) > 0 {
		if err := logger.InitFromConfig(logger.Config{Loggers: cfg.Loggers}); err != nil {
			return nil, errors.Wrap(err, "app: init loggers")
		}
	}
	return cfg, nil
}

// newConfigLoader 按 configSource 选择模块配置来源，file 模式以模块目录为根
func newConfigLoader(cfg *config.Config, fs afero.Fs) (capability.ConfigLoader, *etcd.Client, error) {
	switch cfg.ConfigSource.Type {
	case config.SourceEtcd:
		client, err := etcd.New(&cfg.ConfigSource.Etcd)
		if err != nil {
			return nil, nil, errors.Wrap(err, "app: connect config source")
		}
		return configloader.NewEtcdLoader(client, cfg.ConfigSource.Prefix, etcdReadTimeout), client, nil
	default:
		return configloader.NewFileLoaderFs(afero.NewBasePathFs(fs, cfg.Modules.Dir)), nil, nil
	}
}

// newClockService 定时刷新时钟缓存
func newClockService(clk clock.Clock, log logger.Logger) service.Service {
	t := ticker.New(clockTick, clk.Tick,
		ticker.WithImmediate(),
		ticker.WithPanicHandler(func(r any) {
			log.Error("clock tick panicked", logger.Fields("panic", r)...)
		}),
	)
	return &service.Func{
		Name: "clock",
		OnStart: func(context.Context) error {
			return t.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			t.Stop()
			return nil
		},
	}
}

// metricsServer 提供 /metrics
type metricsServer struct {
	listen string
	srv    *http.Server
	addr   net.Addr
	log    logger.Logger
}

func newMetricsServer(listen string, gatherer prometheus.Gatherer, log logger.Logger) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &metricsServer{
		listen: listen,
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log:    log,
	}
}

func (m *metricsServer) ID() string         { return "metrics" }
func (m *metricsServer) Requires() []string { return nil }

func (m *metricsServer) Start(context.Context) error {
	ln, err := net.Listen("tcp", m.listen)
	if err != nil {
		return errors.Wrapf(err, "app: metrics listen %s", m.listen)
	}
	m.addr = ln.Addr()
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("metrics server stopped", logger.Err(err))
		}
	}()
	m.log.Info("metrics server listening", logger.Fields("addr", m.addr.String())...)
	return nil
}

func (m *metricsServer) Stop(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
