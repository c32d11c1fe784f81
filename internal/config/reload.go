package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	logs "github.com/danmuck/postproc/internal/logging"
)

// Reloadable holds the live worker config. Reloads only change the log
// level and transform settings; socket settings need a restart.
type Reloadable struct {
	path      string
	current   atomic.Pointer[WorkerConfig]
	mu        sync.Mutex
	callbacks []func(old, next WorkerConfig)
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewReloadable wraps an already loaded config. path may be empty when
// the worker runs on defaults.
func NewReloadable(path string, cfg WorkerConfig) *Reloadable {
	r := &Reloadable{path: path, done: make(chan struct{})}
	r.current.Store(&cfg)
	return r
}

func (r *Reloadable) Get() WorkerConfig {
	return *r.current.Load()
}

// Transform returns the live transform settings.
func (r *Reloadable) Transform() TransformConfig {
	return r.current.Load().Transform
}

// OnChange registers fn to run after each applied reload.
func (r *Reloadable) OnChange(fn func(old, next WorkerConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Reload rereads the file and applies the reloadable subset.
func (r *Reloadable) Reload() error {
	if r.path == "" {
		return fmt.Errorf("reload: no config path")
	}
	loaded, err := LoadWorkerConfig(r.path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	r.mu.Lock()
	old := r.Get()
	next := old
	next.LogLevel = loaded.LogLevel
	next.Transform = loaded.Transform
	if loaded.SocketConfig() != old.SocketConfig() || loaded.MetricsAddr != old.MetricsAddr {
		logs.Warnf("config.Reloadable.Reload socket or metrics settings changed path=%q; restart to apply", r.path)
	}
	r.current.Store(&next)
	callbacks := append([]func(old, next WorkerConfig){}, r.callbacks...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(old, next)
	}
	logs.Infof("config.Reloadable.Reload applied path=%q log_level=%s", r.path, next.LogLevel)
	return nil
}

// Watch starts reloading on file changes. The parent directory is watched
// so editors that replace the file by rename are picked up.
func (r *Reloadable) Watch() error {
	if r.path == "" {
		return fmt.Errorf("watch: no config path")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	r.watcher = w
	go r.watchLoop(filepath.Clean(r.path))
	return nil
}

func (r *Reloadable) watchLoop(target string) {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := r.Reload(); err != nil {
					logs.Warnf("config.Reloadable.watchLoop reload failed err=%v", err)
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logs.Warnf("config.Reloadable.watchLoop watcher error err=%v", err)
		case <-r.done:
			return
		}
	}
}

func (r *Reloadable) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
	})
	return err
}
