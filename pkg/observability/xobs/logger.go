package xobs

import (
	"context"
	"log/slog"
	"os"
)

// 编译时接口检查
var (
	_ Logger = (*slogLogger)(nil)
	_ Logger = nopLogger{}
)

// Logger 结构化日志接口。
//
// 所有方法携带 context，便于实现方提取 trace id 等关联信息。
// 实现必须是并发安全的。
type Logger interface {
	// Debug 记录调试级别日志
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	// Info 记录信息级别日志
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	// Warn 记录警告级别日志
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	// Error 记录错误级别日志
	Error(ctx context.Context, msg string, attrs ...slog.Attr)
}

// slogLogger Logger 接口的 slog 实现
type slogLogger struct {
	handler slog.Handler
}

// New 基于 slog.Handler 创建 Logger。
// handler 为 nil 时退化为无操作 Logger，调用方无需做 nil 检查。
func New(handler slog.Handler) Logger {
	if handler == nil {
		return nopLogger{}
	}
	return &slogLogger{handler: handler}
}

// Default 创建输出到 stderr 的文本格式 Logger，用于开发调试。
func Default() Logger {
	return &slogLogger{handler: slog.NewTextHandler(os.Stderr, nil)}
}

// Nop 返回丢弃所有日志的 Logger。
func Nop() Logger {
	return nopLogger{}
}

func (l *slogLogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

func (l *slogLogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs)
}

func (l *slogLogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, attrs)
}

// log 通用日志方法
//
// 设计决策: Handler.Handle 的错误被静默丢弃。日志子系统遵循"失败不扩散"
// 原则，写日志失败不应中断业务调用链。
func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(nowFunc(), level, msg, 0)
	r.AddAttrs(attrs...)
	_ = l.handler.Handle(ctx, r)
}

// nopLogger 无操作实现
type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...slog.Attr) {}
func (nopLogger) Info(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Error(context.Context, string, ...slog.Attr) {}
