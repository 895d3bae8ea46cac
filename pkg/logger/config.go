package logger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Config 进程配置中的 loggers 段
type Config struct {
	Loggers []NamedConfig `yaml:"loggers"`
}

// NamedConfig 单个具名日志。Filepath 为相对路径时相对于可执行文件所在目录。
type NamedConfig struct {
	Name       string `yaml:"name"`
	Filepath   string `yaml:"filepath"`
	Level      string `yaml:"level"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
	EnableEnv  string `yaml:"enable_env"`
	Console    bool   `yaml:"console"`
}

// InitFromConfig 按配置创建并注册具名日志。
//
// enable_env 指定的环境变量未开启时注册 Nop，便于在生产环境按需打开调试日志。
func InitFromConfig(cfg Config) error {
	for _, item := range cfg.Loggers {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return errEmptyLoggerName
		}
		l, err := build(item)
		if err != nil {
			return errors.Wrapf(err, "logger %s", name)
		}
		if err := Register(name, l); err != nil {
			return err
		}
	}
	return nil
}

func build(item NamedConfig) (Logger, error) {
	if !envEnabled(item.EnableEnv) {
		return Nop(), nil
	}
	level, err := parseLevel(item.Level)
	if err != nil {
		return nil, err
	}
	return NewZapLogger(ZapConfig{
		Filepath:   resolveFilepath(item.Filepath),
		Console:    item.Console,
		Level:      level,
		MaxSize:    item.MaxSize,
		MaxBackups: item.MaxBackups,
		MaxAge:     item.MaxAge,
		Compress:   item.Compress,
	})
}

// envEnabled 未指定变量时视为开启
func envEnabled(key string) bool {
	if strings.TrimSpace(key) == "" {
		return true
	}
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "yes", "y", "on":
		return true
	}
	on, err := strconv.ParseBool(raw)
	return err == nil && on
}

func parseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Newf("logger: invalid level %q", raw)
	}
}

func resolveFilepath(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
