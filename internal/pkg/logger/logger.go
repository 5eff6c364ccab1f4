// Package logger 构建应用统一使用的 slog 日志器。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建输出到 stdout 的日志器，并设为全局默认。
// env 为 "local" 时输出文本格式，其余环境输出 JSON。
func NewDefault(env, level string) *slog.Logger {
	format := "json"
	if strings.EqualFold(env, "local") {
		format = "text"
	}
	l := New(os.Stdout, level, format)
	slog.SetDefault(l)
	return l
}

// New 创建一个日志器。
//
// 参数:
//
//	w: 输出目标
//	level: debug / info / warn / error，无法识别时使用 info
//	format: "text" 输出人类可读格式，其余一律 JSON
func New(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel 将配置中的级别字符串转换为 slog.Level。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
