package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 后台导入监控器：盯住一个投放目录，
// 出现写入稳定的 *.csv 就导入并改名为 <name>.done。
// 与交互式导入并发是安全的：所有写路径都在事务里。
type Watcher struct {
	importer *Importer
	watcher  *fsnotify.Watcher
	dir      string

	// 防抖：文件最后一次事件时间，稳定 settleDur 后才导入
	mu        sync.Mutex
	pending   map[string]time.Time
	settleDur time.Duration

	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// WatcherConfig 配置
type WatcherConfig struct {
	Dir       string // 投放目录
	SettleSec int    // 文件稳定时间（秒），0 取默认 2
}

// NewWatcher 创建监控器并开始监听目录（不存在则创建）
func NewWatcher(importer *Importer, cfg *WatcherConfig) (*Watcher, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, fmt.Errorf("必须指定投放目录")
	}
	settle := time.Duration(cfg.SettleSec) * time.Second
	if settle <= 0 {
		settle = 2 * time.Second
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("创建投放目录失败: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("添加监控目录失败: %w", err)
	}

	return &Watcher{
		importer:  importer,
		watcher:   fsw,
		dir:       cfg.Dir,
		pending:   make(map[string]time.Time),
		settleDur: settle,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start 启动监控。已存在的 *.csv 先排队导入。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.enqueueExisting(); err != nil {
		return err
	}

	slog.Info("导入监控器启动", "dir", w.dir, "settle", w.settleDur)
	go w.watchLoop(ctx)
	return nil
}

// Stop 停止监控
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()

		close(w.stopChan)
		_ = w.watcher.Close()
		slog.Info("导入监控器已停止")
	})
	return nil
}

// enqueueExisting 把目录里已有的 CSV 排进防抖队列
func (w *Watcher) enqueueExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("读取投放目录失败: %w", err)
	}
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() && isImportable(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = now
		}
	}
	return nil
}

// watchLoop 监控循环：文件事件刷新防抖时间，定时检查已稳定的文件
func (w *Watcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.settleDur / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("文件监控错误", "error", err)
		case <-ticker.C:
			w.importSettled(ctx)
		}
	}
}

// handleFsEvent 新建或写入 *.csv 时刷新其防抖时间
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isImportable(filepath.Base(event.Name)) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// importSettled 导入所有已稳定的文件
func (w *Watcher) importSettled(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settleDur {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.importOne(ctx, path)
	}
}

// importOne 导入一个文件并改名为 <name>.done（改名保证同一文件只导一次）
func (w *Watcher) importOne(ctx context.Context, path string) {
	summary, err := w.importer.ImportFile(ctx, path)
	if err != nil {
		slog.Error("后台导入失败", "file", path, "error", err)
		return
	}

	donePath := path + ".done"
	if err := os.Rename(path, donePath); err != nil {
		slog.Error("标记已导入失败", "file", path, "error", err)
		return
	}
	slog.Info("后台导入完成", "file", filepath.Base(path),
		"accepted", summary.Accepted, "rejected", summary.Rejected)
}

// isImportable 只认 *.csv，跳过已处理的 *.done
func isImportable(name string) bool {
	return strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".done")
}
