package xquota

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	// metricNameConsumedTotal 成功消费的配额单位数
	metricNameConsumedTotal = "xquota.consumed.total"
	// metricNameDeniedTotal 被拒绝的消费请求数
	metricNameDeniedTotal = "xquota.denied.total"
)

// storeMetrics 配额指标收集器
type storeMetrics struct {
	consumedTotal metric.Int64Counter
	deniedTotal   metric.Int64Counter
}

// newMetrics 创建指标收集器。meterProvider 为 nil 时返回 nil（不收集）。
func newMetrics(meterProvider metric.MeterProvider) (*storeMetrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xquota")

	consumedTotal, err := meter.Int64Counter(
		metricNameConsumedTotal,
		metric.WithDescription("配额消费单位总数"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	deniedTotal, err := meter.Int64Counter(
		metricNameDeniedTotal,
		metric.WithDescription("配额耗尽拒绝的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &storeMetrics{
		consumedTotal: consumedTotal,
		deniedTotal:   deniedTotal,
	}, nil
}

// recordConsume 记录一次消费结果
func (m *storeMetrics) recordConsume(ctx context.Context, service string, amount int64, allowed bool, window WindowKind) {
	if m == nil {
		return
	}

	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	metricsCtx := context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("window", string(window)),
	)

	if allowed {
		m.consumedTotal.Add(metricsCtx, amount, attrs)
	} else {
		m.deniedTotal.Add(metricsCtx, 1, attrs)
	}
}
