package xconf

import "errors"

// 哨兵错误，调用方用 errors.Is 判定失败类别。
var (
	// ErrEmptyPath New 收到了空的文件路径。
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat 扩展名或显式格式不在支持范围内（yaml/json）。
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed 配置源读取失败（文件不存在、权限不足等）。
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed 配置内容不是合法的 yaml/json 文档。
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed 配置结构与目标类型不匹配。
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")

	// ErrNotReloadable 实例从字节数据创建，没有可重新读取的来源。
	ErrNotReloadable = errors.New("xconf: config is not reloadable")
)
