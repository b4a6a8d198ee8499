// Package xquota 提供按日历窗口对齐的持久化用量配额。
//
// # 设计理念
//
// xquota 维护 (subject, service, window) 三元组上的单调用量计数器，
// 支持日/周/月三种日历对齐窗口（UTC）。与 xbucket 的令牌桶限流不同，
// 配额是硬上限：窗口内用完即止，不随时间平滑恢复，窗口滚动时整体清零。
//
// # 核心概念
//
//   - Store：配额存储接口，支持 Check/Consume/Release/Query/Reset
//   - Counter：单窗口计数器快照
//   - Result：检查/消费结果，携带剩余量和重置时间
//   - ServiceLimit：服务的各窗口上限，外部配置注入，不在代码中硬编码
//
// # 原子性
//
// Consume 是检查加累加的单原子操作：Redis 后端通过 Lua 脚本在服务端
// 一次执行多窗口检查与递增，任一窗口超限则整体拒绝且不产生任何写入；
// 本地后端通过 per-key 互斥锁串行化。同一 (subject, service) 上的并发
// 消费满足线性一致：不丢更新、不双花。
//
// # 窗口滚动
//
// 窗口键包含窗口起点，滚动天然表现为"换新键"；旧键按两倍窗口 TTL
// 自动回收（本地后端由 janitor 定时清扫）。滚动不结转未用配额。
//
// # 快速开始
//
//	store, err := xquota.New(redisClient, xquota.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := store.Consume(ctx, "acct-001", "email_send", 1)
//	if err != nil {
//	    // 存储不可达等基础设施错误
//	}
//	if !res.Allowed {
//	    // 配额耗尽，res.ResetAt 之前不应重试
//	}
package xquota
