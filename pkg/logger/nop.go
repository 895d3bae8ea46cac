package logger

import "context"

// Nop 返回一个不会输出任何日志的 Logger。
func Nop() Logger {
	return nop
}

type nopLogger struct{}

func (nopLogger) With(...Field) Logger { return nop }
func (nopLogger) Enabled(Level) bool   { return false }

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

func (nopLogger) DebugContext(context.Context, string, ...Field) {}
func (nopLogger) InfoContext(context.Context, string, ...Field)  {}
func (nopLogger) WarnContext(context.Context, string, ...Field)  {}
func (nopLogger) ErrorContext(context.Context, string, ...Field) {}

func (nopLogger) Sync() error { return nil }

var nop Logger = nopLogger{}
