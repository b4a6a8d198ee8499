package xbucket

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	// metricNameAcquiredTotal 成功获取的令牌数
	metricNameAcquiredTotal = "xbucket.acquired.total"
	// metricNameDeniedTotal 被限流拒绝的请求数
	metricNameDeniedTotal = "xbucket.denied.total"
	// metricNameDegradedTotal 走降级路径的请求数
	metricNameDegradedTotal = "xbucket.degraded.total"
)

// limiterMetrics 限流指标收集器
type limiterMetrics struct {
	acquiredTotal metric.Int64Counter
	deniedTotal   metric.Int64Counter
	degradedTotal metric.Int64Counter
}

// newMetrics 创建指标收集器。meterProvider 为 nil 时返回 nil（不收集）。
func newMetrics(meterProvider metric.MeterProvider) (*limiterMetrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xbucket")

	acquiredTotal, err := meter.Int64Counter(
		metricNameAcquiredTotal,
		metric.WithDescription("成功获取的令牌总数"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	deniedTotal, err := meter.Int64Counter(
		metricNameDeniedTotal,
		metric.WithDescription("令牌不足拒绝的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	degradedTotal, err := meter.Int64Counter(
		metricNameDegradedTotal,
		metric.WithDescription("存储不可达走降级路径的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &limiterMetrics{
		acquiredTotal: acquiredTotal,
		deniedTotal:   deniedTotal,
		degradedTotal: degradedTotal,
	}, nil
}

// recordAcquire 记录一次令牌获取结果
func (m *limiterMetrics) recordAcquire(ctx context.Context, service string, cost int64, result *Result) {
	if m == nil || result == nil {
		return
	}

	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	metricsCtx := context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(attribute.String("service", service))

	if result.Degraded {
		m.degradedTotal.Add(metricsCtx, 1, attrs)
	}
	if result.Allowed {
		m.acquiredTotal.Add(metricsCtx, cost, attrs)
	} else {
		m.deniedTotal.Add(metricsCtx, 1, attrs)
	}
}
