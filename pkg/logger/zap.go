package logger

import (
	"cmp"
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var errEmptyLogPath = errors.New("logger: log file path is empty")

// ZapConfig 文件输出经 lumberjack 滚动，控制台输出写到 stderr
type ZapConfig struct {
	// Filepath 为空时只输出到控制台
	Filepath string
	Console  bool
	Level    Level

	// 滚动参数，MaxSize 单位 MB，默认 100
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// ZapLogger 基于 zap 的 Logger
type ZapLogger struct {
	base *zap.Logger
}

// NewZapLogger 文件使用 JSON 编码，控制台使用 console 编码
func NewZapLogger(cfg ZapConfig) (*ZapLogger, error) {
	if cfg.Filepath == "" && !cfg.Console {
		return nil, errEmptyLogPath
	}
	level := zapLevel(cfg.Level)
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if cfg.Filepath != "" {
		rolling := &lumberjack.Logger{
			Filename:   cfg.Filepath,
			MaxSize:    cmp.Or(max(cfg.MaxSize, 0), 100),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rolling), level))
	}
	if cfg.Console {
		console := enc
		console.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(console), zapcore.Lock(os.Stderr), level))
	}

	// 跳过 Info/InfoContext 与 log 两层
	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
	return &ZapLogger{base: base}, nil
}

// NewConsoleLogger 创建仅输出到控制台的 Logger，用于配置加载完成前的引导阶段。
func NewConsoleLogger(level Level) *ZapLogger {
	l, _ := NewZapLogger(ZapConfig{Console: true, Level: level})
	return l
}

// With 返回附加字段后的 Logger
func (l *ZapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &ZapLogger{base: l.base.With(toZapFields(nil, fields)...)}
}

// Enabled 给定等级是否会输出
func (l *ZapLogger) Enabled(level Level) bool {
	return l.base.Core().Enabled(zapLevel(level))
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.log(nil, LevelDebug, msg, fields) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.log(nil, LevelInfo, msg, fields) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.log(nil, LevelWarn, msg, fields) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.log(nil, LevelError, msg, fields) }

func (l *ZapLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(FromContext(ctx), LevelDebug, msg, fields)
}

func (l *ZapLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(FromContext(ctx), LevelInfo, msg, fields)
}

func (l *ZapLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(FromContext(ctx), LevelWarn, msg, fields)
}

func (l *ZapLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(FromContext(ctx), LevelError, msg, fields)
}

// Sync 刷新缓冲并落盘
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

// log ctx 字段在前，调用方字段在后
func (l *ZapLogger) log(ctxFields []Field, level Level, msg string, fields []Field) {
	zl := zapLevel(level)
	if ce := l.base.Check(zl, msg); ce != nil {
		ce.Write(toZapFields(ctxFields, fields)...)
	}
}

var zapLevels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

// zapLevel 未知等级按 Info 处理
func zapLevel(level Level) zapcore.Level {
	if zl, ok := zapLevels[level]; ok {
		return zl
	}
	return zapcore.InfoLevel
}

func toZapFields(ctxFields, fields []Field) []zap.Field {
	if len(ctxFields)+len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(ctxFields)+len(fields))
	for _, group := range [][]Field{ctxFields, fields} {
		for _, f := range group {
			if err, ok := f.Value.(error); ok {
				out = append(out, zap.NamedError(f.Key, err))
				continue
			}
			out = append(out, zap.Any(f.Key, f.Value))
		}
	}
	return out
}

var _ Logger = (*ZapLogger)(nil)
