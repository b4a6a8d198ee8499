package xobs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 编译时接口检查
var (
	_ Observer = (*OTelObserver)(nil)
	_ Span     = (*otelSpan)(nil)
)

// OTelObserver 基于 OpenTelemetry 的 Observer 实现。
type OTelObserver struct {
	tracer trace.Tracer
}

// NewOTelObserver 创建 OpenTelemetry Observer。
// tp 为 nil 时返回 nil（调用方注入 nil Observer 等价于不观测）。
func NewOTelObserver(tp trace.TracerProvider) *OTelObserver {
	if tp == nil {
		return nil
	}
	return &OTelObserver{
		tracer: tp.Tracer("github.com/caseyos/gtmkit/pkg/observability/xobs"),
	}
}

// Start 开始一次观测跨度。
func (o *OTelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o == nil {
		return ctx, NoopSpan{}
	}

	name := opts.Component + "." + opts.Operation
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithSpanKind(toSpanKind(opts.Kind)),
		trace.WithAttributes(toKeyValues(opts.Attrs)...),
	)
	return ctx, &otelSpan{span: span}
}

// otelSpan Span 接口的 OpenTelemetry 实现
type otelSpan struct {
	span trace.Span
}

// End 结束观测并记录结果。
func (s *otelSpan) End(result Result) {
	s.span.SetAttributes(toKeyValues(result.Attrs)...)
	if result.Err != nil {
		s.span.RecordError(result.Err)
		s.span.SetStatus(codes.Error, result.Err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// toSpanKind 转换跨度类型
func toSpanKind(k Kind) trace.SpanKind {
	if k == KindClient {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

// toKeyValues 将 Attr 转换为 otel attribute.KeyValue。
// 未知类型统一 fmt.Sprint 为字符串，避免丢属性。
func toKeyValues(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			kvs = append(kvs, attribute.String(a.Key, v))
		case int:
			kvs = append(kvs, attribute.Int(a.Key, v))
		case int64:
			kvs = append(kvs, attribute.Int64(a.Key, v))
		case float64:
			kvs = append(kvs, attribute.Float64(a.Key, v))
		case bool:
			kvs = append(kvs, attribute.Bool(a.Key, v))
		default:
			kvs = append(kvs, attribute.String(a.Key, fmt.Sprint(v)))
		}
	}
	return kvs
}
