package xadmit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metricNameDecisionsTotal 按结果分类的裁决总数
const metricNameDecisionsTotal = "xadmit.decisions.total"

// 裁决结果分类
const (
	outcomeGranted       = "granted"
	outcomeRateLimited   = "rate_limited"
	outcomeQuotaExceeded = "quota_exceeded"
	outcomeEmpty         = "empty"
	outcomeStoreError    = "store_error"
)

// facadeMetrics 门面指标收集器
type facadeMetrics struct {
	decisionsTotal metric.Int64Counter
}

// newMetrics 创建指标收集器。meterProvider 为 nil 时返回 nil（不收集）。
func newMetrics(meterProvider metric.MeterProvider) (*facadeMetrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xadmit")

	decisionsTotal, err := meter.Int64Counter(
		metricNameDecisionsTotal,
		metric.WithDescription("按结果分类的准入裁决总数"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &facadeMetrics{decisionsTotal: decisionsTotal}, nil
}

// recordDecision 记录一次裁决结果
func (m *facadeMetrics) recordDecision(ctx context.Context, service, outcome string) {
	if m == nil {
		return
	}

	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	m.decisionsTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", outcome),
	))
}
