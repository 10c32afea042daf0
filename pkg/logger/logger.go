// Package logger 基于 zerolog 的全局日志
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	root zerolog.Logger
)

// Config 日志配置
type Config struct {
	Level    string `json:"level"`
	Format   string `json:"format"` // json/console
	Output   string `json:"output"` // stdout/stderr/文件路径
	TimeFmt  string `json:"time_format,omitempty"`
	NoCaller bool   `json:"no_caller,omitempty"`
}

// Init 初始化全局日志器，只有第一次调用生效
func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(levelOf(cfg.Level))
		zerolog.DurationFieldUnit = time.Millisecond

		out := writerFor(cfg.Output)
		if cfg.Format == "console" {
			tf := cfg.TimeFmt
			if tf == "" {
				tf = time.DateTime
			}
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
		}

		c := zerolog.New(out).With().Timestamp()
		if !cfg.NoCaller && zerolog.GlobalLevel() <= zerolog.DebugLevel {
			c = c.Caller()
		}
		root = c.Logger()
	})
}

// levelOf 无法识别的级别按 info 处理
func levelOf(s string) zerolog.Level {
	if strings.EqualFold(s, "warning") {
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func writerFor(output string) io.Writer {
	switch output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// Get 全局日志器，未初始化时按 info/console 初始化
func Get() *zerolog.Logger {
	Init(Config{Level: "info", Format: "console"})
	return &root
}

type ctxKey string

const (
	// RequestIDKey 请求ID
	RequestIDKey ctxKey = "request_id"
	// ActorKey 调用方身份
	ActorKey ctxKey = "actor"
)

// WithContext 带上请求ID与调用方的日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	c := Get().With()
	for _, key := range []ctxKey{RequestIDKey, ActorKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			c = c.Str(string(key), v)
		}
	}
	l := c.Logger()
	return &l
}

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }

// Fatal 记录后退出进程
func Fatal() *zerolog.Event { return Get().Fatal() }
