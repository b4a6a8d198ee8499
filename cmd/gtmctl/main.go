// gtmctl 是 gtmkit 的运维命令行工具。
//
// 用法:
//
//	gtmctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-r, --redis    Redis 地址 (默认: 127.0.0.1:6379)
//	-t, --timeout  命令超时时间 (默认: 10s)
//	-j, --json     以 JSON 输出结果
//
// 命令:
//
//	score          按评分配置对候选文件排序并打印 rationale
//	quota          查询主体/服务的配额计数器
//	bucket         探测服务令牌桶状态（可选地获取令牌）
//	help           显示帮助信息
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败（存储不可达、配置无效等）
//	2: 参数错误（缺少必需参数、未知命令等）
//
// 示例:
//
//	gtmctl score --config weights.yaml --candidates leads.yaml --limit 3
//	gtmctl quota --service email_send --subject acct-1 --daily 25
//	gtmctl bucket --service email_send --capacity 10 --rate 1 --acquire 1
//	gtmctl -r redis-prod:6379 -j quota --service email_send --subject acct-1 --daily 25
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认命令超时时间
const defaultTimeout = 10 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "gtmctl",
		Usage:   "gtmkit 运维命令行工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis",
				Aliases: []string{"r"},
				Usage:   "Redis 地址",
				Value:   "127.0.0.1:6379",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "以 JSON 输出结果",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}
