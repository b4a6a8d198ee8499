package xadmit

import (
	"context"
	"errors"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/caseyos/gtmkit/pkg/business/xscore"
)

// defaultRetryDelay 限流错误未携带 RetryAfter 时的兜底退避
const defaultRetryDelay = 100 * time.Millisecond

// RequestActionWithRetry 调用方便利封装：只对限流错误按其 RetryAfter
// 退避重试，至多 attempts 次尝试。
//
// 配额耗尽、存储故障和参数错误都不重试——配额在窗口内不会自己恢复，
// 存储故障的重试策略应由更上层决定。核心的 RequestAction 自身从不重试。
func (f *Facade) RequestActionWithRetry(ctx context.Context, subject, service string, candidates []xscore.Item, sctx xscore.Context, cost int64, attempts uint) (*Decision, error) {
	return retry.NewWithData[*Decision](
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.RetryIf(IsRetryable),
		retry.DelayType(func(_ uint, err error, _ retry.DelayContext) time.Duration {
			var le *RateLimitedError
			if errors.As(err, &le) && le.RetryAfter > 0 {
				return le.RetryAfter
			}
			return defaultRetryDelay
		}),
		retry.LastErrorOnly(true),
	).Do(func() (*Decision, error) {
		return f.RequestAction(ctx, subject, service, candidates, sctx, cost)
	})
}
