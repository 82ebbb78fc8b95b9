// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// base 是全局基础 Logger，Init 之前使用默认配置，保证引用方永远可用
var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 初始化全局日志器，service 字段会附加到每条日志上
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个携带追踪上下文的 Logger。
// 如果 ctx 中存在有效的 Span，则自动注入 trace_id / span_id，
// 便于在日志系统中与 Jaeger 的链路进行关联检索。
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		l := base
		return &l
	}
	l := base.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
