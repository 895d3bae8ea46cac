// Package httpsvc 提供 capability.HTTPService 的 net/http 实现。
package httpsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/lk2023060901/norbert/pkg/capability"
)

// maxBodySize 响应体上限
const maxBodySize = 8 << 20

// Config HTTP 服务配置
type Config struct {
	// Timeout 单次请求超时
	Timeout time.Duration `yaml:"timeout"`
	// RatePerSecond 每秒请求数上限，0 表示不限制
	RatePerSecond float64 `yaml:"ratePerSecond"`
	// Burst 突发请求数
	Burst int `yaml:"burst"`
	// UserAgent 请求头
	UserAgent string `yaml:"userAgent"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:   15 * time.Second,
		UserAgent: "norbert",
	}
}

// Service 发起 GET 请求并解析 JSON，不做重试
type Service struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Option 服务选项
type Option func(*Service)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.client = c
		}
	}
}

// New 创建 HTTP 服务
func New(cfg Config, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	s := &Service{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetJSON 发起 GET 请求并将 JSON 响应解析到 out
func (s *Service) GetJSON(ctx context.Context, uri string, out any) error {
	fail := func(status int, err error) error {
		return &capability.HTTPServiceError{URI: uri, StatusCode: status, Err: err}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fail(0, errors.Wrap(err, "rate limit"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fail(0, errors.Wrap(err, "build request"))
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(0, errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 排空响应体以复用连接
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return fail(resp.StatusCode, errors.Newf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fail(0, errors.Wrap(err, "read body"))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fail(0, errors.Wrap(err, "decode body"))
	}
	return nil
}

var _ capability.HTTPService = (*Service)(nil)
