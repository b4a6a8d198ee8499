package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/caseyos/gtmkit/pkg/business/xscore"
	"github.com/caseyos/gtmkit/pkg/config/xconf"
	"github.com/caseyos/gtmkit/pkg/resilience/xbucket"
	"github.com/caseyos/gtmkit/pkg/resilience/xquota"
)

// usageError 表示参数错误，映射到退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrf(format string, args ...any) *usageError {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// createCommands 创建所有子命令
func createCommands() []*cli.Command {
	return []*cli.Command{
		createScoreCommand(),
		createQuotaCommand(),
		createBucketCommand(),
	}
}

// =============================================================================
// score 命令
// =============================================================================

// candidateFile 候选文件结构
type candidateFile struct {
	Context struct {
		Targets    map[string]string   `koanf:"targets"`
		Alternates map[string][]string `koanf:"alternates"`
	} `koanf:"context"`
	Candidates []struct {
		ID        string            `koanf:"id"`
		Verified  bool              `koanf:"verified"`
		UpdatedAt time.Time         `koanf:"updated_at"`
		Labels    map[string]string `koanf:"labels"`
	} `koanf:"candidates"`
}

func createScoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "按评分配置对候选文件排序并打印 rationale",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "评分配置文件（yaml/json）",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "candidates",
				Usage:    "候选文件（yaml/json）",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "返回前 N 项（0 表示全部）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdScore(cmd.String("config"), cmd.String("candidates"),
				int(cmd.Int("limit")), cmd.Bool("json"))
		},
	}
}

func cmdScore(configPath, candidatesPath string, limit int, asJSON bool) error {
	var scoreCfg xscore.Config
	if err := loadInto(configPath, &scoreCfg); err != nil {
		return err
	}

	var file candidateFile
	if err := loadInto(candidatesPath, &file); err != nil {
		return err
	}

	engine, err := xscore.New(scoreCfg)
	if err != nil {
		return err
	}

	items := make([]xscore.Item, len(file.Candidates))
	for i, c := range file.Candidates {
		items[i] = xscore.Item{
			ID:        c.ID,
			Verified:  c.Verified,
			UpdatedAt: c.UpdatedAt,
			Labels:    c.Labels,
		}
	}
	sctx := xscore.Context{
		Targets:    file.Context.Targets,
		Alternates: file.Context.Alternates,
	}

	ranked := engine.Rank(items, sctx, limit)
	if asJSON {
		type entry struct {
			ID        string `json:"id"`
			Score     int    `json:"score"`
			Rationale string `json:"rationale"`
		}
		out := make([]entry, len(ranked))
		for i, r := range ranked {
			out[i] = entry{ID: r.Item.ID, Score: r.Score, Rationale: r.Rationale}
		}
		return printJSON(out)
	}

	if len(ranked) == 0 {
		fmt.Println("没有合格候选")
		return nil
	}
	for i, r := range ranked {
		fmt.Printf("%2d. %-24s score=%-4d %s\n", i+1, r.Item.ID, r.Score, r.Rationale)
	}
	return nil
}

// loadInto 加载 yaml/json 配置文件并整体反序列化
func loadInto(path string, target any) error {
	cfg, err := xconf.New(path)
	if err != nil {
		return err
	}
	return cfg.Unmarshal("", target)
}

// =============================================================================
// quota 命令
// =============================================================================

func createQuotaCommand() *cli.Command {
	return &cli.Command{
		Name:  "quota",
		Usage: "查询主体/服务的配额计数器",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "service", Usage: "服务名", Required: true},
			&cli.StringFlag{Name: "subject", Usage: "主体标识", Required: true},
			&cli.Int64Flag{Name: "daily", Usage: "日窗口上限"},
			&cli.Int64Flag{Name: "weekly", Usage: "周窗口上限"},
			&cli.Int64Flag{Name: "monthly", Usage: "月窗口上限"},
			&cli.StringFlag{Name: "prefix", Usage: "存储键前缀", Value: "quota:"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			limit := xquota.ServiceLimit{
				Daily:   cmd.Int64("daily"),
				Weekly:  cmd.Int64("weekly"),
				Monthly: cmd.Int64("monthly"),
			}
			if err := limit.Validate(); err != nil {
				return usageErrf("至少指定一个窗口上限 (--daily/--weekly/--monthly)")
			}
			return cmdQuota(ctx, cmd, limit)
		},
	}
}

func cmdQuota(ctx context.Context, cmd *cli.Command, limit xquota.ServiceLimit) error {
	service := cmd.String("service")
	subject := cmd.String("subject")

	client, closeClient := newRedisClient(cmd)
	defer closeClient()

	store, err := xquota.New(client,
		xquota.WithService(service, limit),
		xquota.WithKeyPrefix(cmd.String("prefix")),
	)
	if err != nil {
		return err
	}
	defer store.Close(ctx) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	counters, err := store.Query(ctx, subject, service)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return printJSON(counters)
	}
	for _, c := range counters {
		fmt.Printf("%-8s %d/%d 剩余 %-6d 重置于 %s\n",
			c.Window, c.Consumed, c.Limit, c.Remaining(),
			c.ResetAt.Format(time.RFC3339))
	}
	return nil
}

// =============================================================================
// bucket 命令
// =============================================================================

func createBucketCommand() *cli.Command {
	return &cli.Command{
		Name:  "bucket",
		Usage: "探测服务令牌桶状态",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "service", Usage: "服务名", Required: true},
			&cli.Int64Flag{Name: "capacity", Usage: "桶容量", Required: true},
			&cli.Float64Flag{Name: "rate", Usage: "每秒补充速率", Required: true},
			&cli.Int64Flag{Name: "acquire", Usage: "先尝试获取 N 个令牌再打印状态"},
			&cli.StringFlag{Name: "prefix", Usage: "存储键前缀", Value: "bucket:"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdBucket(ctx, cmd)
		},
	}
}

func cmdBucket(ctx context.Context, cmd *cli.Command) error {
	service := cmd.String("service")

	client, closeClient := newRedisClient(cmd)
	defer closeClient()

	limiter, err := xbucket.New(client,
		xbucket.WithService(service, xbucket.Bucket{
			Capacity:   cmd.Int64("capacity"),
			RefillRate: cmd.Float64("rate"),
		}),
		xbucket.WithKeyPrefix(cmd.String("prefix")),
	)
	if err != nil {
		return err
	}
	defer limiter.Close(ctx) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	if n := cmd.Int64("acquire"); n > 0 {
		res, err := limiter.TryAcquire(ctx, service, n)
		if err != nil {
			return err
		}
		if res.Allowed {
			fmt.Printf("获取 %d 个令牌成功，剩余 %.2f\n", n, res.Remaining)
		} else {
			fmt.Printf("获取被拒绝，%.1fs 后重试\n", res.RetryAfter.Seconds())
		}
	}

	state, err := limiter.Query(ctx, service)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return printJSON(state)
	}
	fmt.Printf("%-16s 令牌 %.2f/%d 速率 %.2f/s 上次补充 %s\n",
		state.Service, state.Tokens, state.Capacity, state.RefillRate,
		state.LastRefillAt.Format(time.RFC3339))
	return nil
}

// =============================================================================
// 公共辅助
// =============================================================================

// newRedisClient 按全局选项创建 Redis 客户端
func newRedisClient(cmd *cli.Command) (redis.UniversalClient, func()) {
	client := redis.NewClient(&redis.Options{Addr: cmd.String("redis")})
	return client, func() { client.Close() } //nolint:errcheck
}

// printJSON 以缩进 JSON 输出结果
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
