package xconf

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce 默认防抖时间。
// 编辑器保存文件常产生连续多个事件，防抖期内只触发一次重载。
const defaultDebounce = 100 * time.Millisecond

// WatchCallback 文件变更回调函数。
// 配置文件变更后调用，err 表示重载是否成功；重载失败时保留旧配置。
type WatchCallback func(cfg Config, err error)

// WatchOption 监视器配置选项
type WatchOption func(*Watcher)

// WithDebounce 设置防抖时间，默认 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher 配置文件监视器。
// 监控配置文件所在目录的变更事件并自动重载配置。
type Watcher struct {
	cfg      *koanfConfig
	fw       *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
	timer   *time.Timer
}

// Watch 创建配置文件监视器。
//
// 只能监视从文件创建的 Config；从字节数据创建的返回 ErrNotReloadable。
// 返回的 Watcher 需要调用 Start() 开始监视，Stop() 停止。
//
// 设计决策: 监视配置文件所在目录而非文件本身。编辑器和 K8s ConfigMap
// 更新都是"删除再创建/重命名"语义，直接监视文件会在第一次替换后丢失事件。
func Watch(cfg Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return nil, fmt.Errorf("xconf: unsupported config type %T", cfg)
	}
	if kc.path == "" {
		return nil, ErrNotReloadable
	}
	if callback == nil {
		return nil, fmt.Errorf("xconf: watch callback is required")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: failed to create watcher: %w", err)
	}

	dir := filepath.Dir(kc.path)
	if err := fw.Add(dir); err != nil {
		closeErr := fw.Close()
		return nil, errors.Join(fmt.Errorf("xconf: failed to watch %s: %w", dir, err), closeErr)
	}

	w := &Watcher{
		cfg:      kc,
		fw:       fw,
		callback: callback,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start 在后台 goroutine 中启动监视，立即返回。重复调用无效果。
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	go w.run()
}

// Stop 停止监视并释放资源。可以安全地多次调用。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fw.Close()
	}
	w.running = false
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	<-w.stopped
	return w.fw.Close()
}

// run 事件循环
func (w *Watcher) run() {
	defer close(w.stopped)

	target := filepath.Clean(w.cfg.path)
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.callback(w.cfg, fmt.Errorf("xconf: watch error: %w", err))
		}
	}
}

// scheduleReload 防抖调度一次重载
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.callback(w.cfg, w.cfg.Reload())
	})
}
