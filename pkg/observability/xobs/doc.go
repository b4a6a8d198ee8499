// Package xobs 提供 gtmkit 内部统一的日志与观测抽象。
//
// # 设计理念
//
// 各业务包（xquota、xbucket、xscore、xadmit）不直接依赖具体的日志/追踪实现，
// 而是通过本包的 Logger 和 Observer 接口注入：
//
//   - Logger：基于 log/slog 的结构化日志接口，ctx 透传
//   - Observer：观测跨度抽象，提供 Noop 实现和 OpenTelemetry 实现
//
// # 快速开始
//
//	logger := xobs.New(slog.NewJSONHandler(os.Stdout, nil))
//	logger.Info(ctx, "quota consumed",
//	    slog.String("subject", "acct-001"),
//	    slog.Int("remaining", 42),
//	)
//
//	observer := xobs.NewOTelObserver(tracerProvider)
//	ctx, span := xobs.Start(ctx, observer, xobs.SpanOptions{
//	    Component: "xquota",
//	    Operation: "consume",
//	})
//	defer span.End(xobs.Result{Err: err})
//
// 所有实现都是并发安全的；nil Logger / nil Observer 在各业务包内均为安全的空操作。
package xobs
