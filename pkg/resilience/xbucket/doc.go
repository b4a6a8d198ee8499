// Package xbucket 提供令牌桶限流原语。
//
// 每个服务一个令牌桶：容量决定突发上限，补充速率决定稳态吞吐。
// 补充在检查时惰性计算（min(capacity, tokens + elapsed*refill_rate)），
// 桶状态丢失等价于一个全新的满桶，因此不需要持久化保证。
//
// 核心特性：
//   - TryAcquire 永不阻塞：拒绝时返回 RetryAfter，等待与否由调用方决定
//   - Redis 后端：读改写以单个 Lua 脚本原子执行，多进程共享同一个桶
//   - 本地后端：进程内桶，适用于单进程场景、测试和降级兜底
//   - 存储不可达时的行为由显式的失败策略决定（FailClosed/FailOpen/FailLocal），
//     绝不隐式二选一
//
// 基础用法：
//
//	limiter, err := xbucket.New(rdb,
//		xbucket.WithService("email_send", xbucket.Bucket{Capacity: 10, RefillRate: 1}),
//		xbucket.WithPolicy(xbucket.FailClosed),
//	)
//	if err != nil {
//		return err
//	}
//	defer limiter.Close(ctx)
//
//	res, err := limiter.TryAcquire(ctx, "email_send", 1)
//	if err != nil {
//		return err
//	}
//	if !res.Allowed {
//		return fmt.Errorf("rate limited, retry after %s", res.RetryAfter)
//	}
package xbucket
