// Package logger 提供结构化日志接口、zap 实现与具名日志注册表。
package logger

import "context"

// Level 日志等级
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Field 结构化日志字段
type Field struct {
	Key   string
	Value any
}

// Logger 统一日志接口。
//
// 带 Context 后缀的方法会附加 ContextWith 放入 ctx 的字段，
// 用于在消息处理链路上关联同一条消息的日志。
type Logger interface {
	// With 返回附加字段后的 Logger
	With(fields ...Field) Logger
	// Enabled 给定等级是否会输出
	Enabled(level Level) bool

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)

	// Sync 刷新缓冲
	Sync() error
}
