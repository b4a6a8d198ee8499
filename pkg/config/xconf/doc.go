// Package xconf 提供基于 koanf 的配置加载能力。
//
// # 设计理念
//
// gtmkit 的所有策略配置（配额上限、令牌桶形状、评分权重）都来自外部注入，
// 代码中不允许硬编码 per-service 分支。本包是注入的入口：
//
//   - New：从 YAML/JSON 文件加载（按扩展名自动识别格式）
//   - NewFromBytes：从字节数据加载（适用于 K8s ConfigMap）
//   - Unmarshal：按路径反序列化到结构体（koanf 标签）
//   - Watch：基于 fsnotify 的文件变更监视 + 防抖重载
//
// # 快速开始
//
//	cfg, err := xconf.New("/etc/gtmkit/policy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var quotas xquota.Config
//	if err := cfg.Unmarshal("quota", &quotas); err != nil {
//	    log.Fatal(err)
//	}
//
//	w, _ := xconf.Watch(cfg, func(c xconf.Config, err error) {
//	    // 配置已重载（或重载失败）
//	})
//	w.Start()
//	defer w.Stop()
package xconf
