package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Config 定义配置接口。
// 只提供增值功能，基础操作请直接使用 Client() 返回的 koanf 实例。
type Config interface {
	// Client 返回底层的 koanf 实例。
	Client() *koanf.Koanf

	// Unmarshal 将指定路径的配置反序列化到目标结构体。
	// path 为空字符串时反序列化整个配置。
	Unmarshal(path string, target any) error

	// Reload 重新加载配置文件。并发安全。
	// 仅对从文件创建的 Config 有效，从字节数据创建的返回 ErrNotReloadable。
	Reload() error

	// Path 返回配置文件路径。从字节数据创建的返回空字符串。
	Path() string

	// Format 返回配置格式。
	Format() Format
}

// koanfConfig 是 Config 接口的 koanf 实现。
type koanfConfig struct {
	k      *koanf.Koanf
	path   string
	format Format
	delim  string
	tag    string
	mu     sync.RWMutex
}

// Option 定义配置选项函数类型。
type Option func(*koanfConfig)

// WithDelim 设置配置键分隔符，默认 "."。
func WithDelim(delim string) Option {
	return func(c *koanfConfig) {
		if delim != "" {
			c.delim = delim
		}
	}
}

// WithTag 设置 Unmarshal 的结构体标签名，默认 "koanf"。
func WithTag(tag string) Option {
	return func(c *koanfConfig) {
		if tag != "" {
			c.tag = tag
		}
	}
}

// New 从文件路径创建配置实例。
// 根据文件扩展名自动检测格式（.yaml/.yml 或 .json）。
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	c := newKoanfConfig(path, format, opts)
	if err := c.load(data); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromBytes 从字节数据创建配置实例。
// 需要显式指定格式。空数据创建空配置，Unmarshal 得到目标零值。
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if format != FormatYAML && format != FormatJSON {
		return nil, ErrUnsupportedFormat
	}

	c := newKoanfConfig("", format, opts)
	if len(data) > 0 {
		if err := c.load(data); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// newKoanfConfig 构造实例并应用选项
func newKoanfConfig(path string, format Format, opts []Option) *koanfConfig {
	c := &koanfConfig{
		path:   path,
		format: format,
		delim:  ".",
		tag:    "koanf",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.k = koanf.New(c.delim)
	return c
}

// load 将原始数据解析进当前 koanf 实例
func (c *koanfConfig) load(data []byte) error {
	var parser koanf.Parser
	switch c.format {
	case FormatYAML:
		parser = kyaml.Parser()
	case FormatJSON:
		parser = kjson.Parser()
	default:
		return ErrUnsupportedFormat
	}

	if err := c.k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}

// Client 返回底层的 koanf 实例。
func (c *koanfConfig) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

// Unmarshal 将指定路径的配置反序列化到目标结构体。
func (c *koanfConfig) Unmarshal(path string, target any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Reload 重新加载配置文件。
// 先在新 koanf 实例上解析，成功后整体替换，失败时保留旧配置。
func (c *koanfConfig) Reload() error {
	if c.path == "" {
		return ErrNotReloadable
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	fresh := &koanfConfig{format: c.format, delim: c.delim, tag: c.tag, k: koanf.New(c.delim)}
	if err := fresh.load(data); err != nil {
		return err
	}

	c.mu.Lock()
	c.k = fresh.k
	c.mu.Unlock()
	return nil
}

// Path 返回配置文件路径。
func (c *koanfConfig) Path() string {
	return c.path
}

// Format 返回配置格式。
func (c *koanfConfig) Format() Format {
	return c.format
}

// detectFormat 按扩展名识别配置格式
func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// 确保 koanfConfig 实现了 Config 接口
var _ Config = (*koanfConfig)(nil)
