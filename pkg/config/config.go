// Package config 读取并校验机器人进程配置。
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/etcd"
	"github.com/lk2023060901/norbert/pkg/httpsvc"
	"github.com/lk2023060901/norbert/pkg/logger"
)

// 配置来源
const (
	SourceFile = "file"
	SourceEtcd = "etcd"
)

// Config 进程配置
type Config struct {
	// 聊天连接
	Server        string   `yaml:"server"`
	TLS           bool     `yaml:"tls"`
	Nick          string   `yaml:"nick"`
	User          string   `yaml:"user"`
	RealName      string   `yaml:"realName"`
	Channels      Channels `yaml:"channels"`
	QuitMsg       string   `yaml:"quitMsg"`
	CommandPrefix string   `yaml:"commandPrefix"`

	Clock        clock.Config         `yaml:"clock"`
	Modules      ModulesConfig        `yaml:"modules"`
	Dispatch     chat.Config          `yaml:"dispatch"`
	HTTP         httpsvc.Config       `yaml:"http"`
	ConfigSource SourceConfig         `yaml:"configSource"`
	Metrics      MetricsConfig        `yaml:"metrics"`
	Loggers      []logger.NamedConfig `yaml:"loggers"`
}

// ModulesConfig 模块目录配置
type ModulesConfig struct {
	Dir string `yaml:"dir"`
}

// SourceConfig 模块配置来源
type SourceConfig struct {
	// Type 为 file 或 etcd
	Type string `yaml:"type"`
	// Prefix etcd 键前缀
	Prefix string `yaml:"prefix"`
	// Watch 前缀下有变更时重载模块
	Watch bool `yaml:"watch"`
	// Debounce 变更合并窗口
	Debounce time.Duration `yaml:"debounce"`
	Etcd     etcd.Config   `yaml:"etcd"`
}

// MetricsConfig 指标端点，Listen 为空时不启动
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Channels 频道列表，YAML 中可写成列表或空白分隔的字符串
type Channels []string

// UnmarshalYAML 支持标量与序列两种写法
func (c *Channels) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(value.Value)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, ch := range raw {
			if ch = strings.TrimSpace(ch); ch != "" {
				out = append(out, ch)
			}
		}
		*c = out
		return nil
	default:
		return errors.Newf("channels: unexpected yaml node kind %d", value.Kind)
	}
}

// Default 返回带默认值的配置
func Default() Config {
	return Config{
		CommandPrefix: "!",
		Clock:         clock.DefaultConfig(),
		Modules:       ModulesConfig{Dir: "Modules"},
		Dispatch:      chat.DefaultConfig(),
		HTTP:          httpsvc.DefaultConfig(),
		ConfigSource: SourceConfig{
			Type:     SourceFile,
			Debounce: 2 * time.Second,
		},
	}
}

// Parse 解析 YAML 并校验，未填写的可选项使用默认值
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile 从 YAML 文件读取配置
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(raw)
}

// applyDefaults 处理显式写成空值的可选项
func (c *Config) applyDefaults() {
	def := Default()
	c.Server = strings.TrimSpace(c.Server)
	c.Nick = strings.TrimSpace(c.Nick)
	c.User = strings.TrimSpace(c.User)
	if strings.TrimSpace(c.CommandPrefix) == "" {
		c.CommandPrefix = def.CommandPrefix
	}
	if c.RealName == "" {
		c.RealName = c.Nick
	}
	if strings.TrimSpace(c.Modules.Dir) == "" {
		c.Modules.Dir = def.Modules.Dir
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = def.Dispatch.Workers
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = def.HTTP.UserAgent
	}
	c.ConfigSource.Type = strings.ToLower(strings.TrimSpace(c.ConfigSource.Type))
	if c.ConfigSource.Type == "" {
		c.ConfigSource.Type = SourceFile
	}
	if c.ConfigSource.Debounce <= 0 {
		c.ConfigSource.Debounce = def.ConfigSource.Debounce
	}
	if c.ConfigSource.Type == SourceEtcd {
		c.ConfigSource.Etcd.ApplyDefaults()
	}
}

// Validate 按 server、nick、user、channels、quitMsg 的顺序校验必填项
func (c *Config) Validate() error {
	if c.Server == "" {
		return &ValidationError{Field: "server", Err: ErrServerInvalid}
	}
	if c.Nick == "" {
		return &ValidationError{Field: "nick", Err: ErrNickInvalid}
	}
	if c.User == "" {
		return &ValidationError{Field: "user", Err: ErrUserInvalid}
	}
	if len(c.Channels) == 0 {
		return &ValidationError{Field: "channels", Err: ErrChannelsInvalid}
	}
	if strings.TrimSpace(c.QuitMsg) == "" {
		return &ValidationError{Field: "quitMsg", Err: ErrQuitMsgInvalid}
	}

	switch c.ConfigSource.Type {
	case SourceFile:
	case SourceEtcd:
		if err := c.ConfigSource.Etcd.Validate(); err != nil {
			return &ValidationError{Field: "configSource.etcd", Err: errors.Mark(err, ErrConfigSourceInvalid)}
		}
	default:
		return &ValidationError{
			Field: "configSource.type",
			Err:   errors.Wrapf(ErrConfigSourceInvalid, "unknown type %q", c.ConfigSource.Type),
		}
	}
	return nil
}
