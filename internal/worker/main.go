package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danmuck/postproc/internal/config"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/observability"
)

// BuildFunc constructs the transform from the live config.
type BuildFunc func(cfg *config.Reloadable) (Transform, error)

// Main is the shared entry point of the postproc binaries. It returns the
// process exit code: 2 for bad usage, 1 when the worker cannot start,
// 0 after a graceful shutdown.
func Main(name string, build BuildFunc) int {
	return run(name, os.Args[1:], os.Stderr, build)
}

func run(name string, args []string, stderr io.Writer, build BuildFunc) int {
	logs.ConfigureRuntime()
	if len(args) != 1 {
		fmt.Fprintf(stderr, "usage: %s <socket-path>\n", name)
		return 2
	}
	socketPath := args[0]

	cfg := config.DefaultWorkerConfig()
	path, found := config.Locate(name)
	if found {
		loaded, err := config.LoadWorkerConfig(path)
		if err != nil {
			logs.Errf("worker.Main config load failed name=%s path=%q err=%v", name, path, err)
			return 1
		}
		cfg = loaded
	}
	applyLogLevel(cfg.LogLevel)

	live := config.NewReloadable(path, cfg)
	defer live.Close()
	live.OnChange(func(_, next config.WorkerConfig) {
		applyLogLevel(next.LogLevel)
	})
	if found {
		if err := live.Watch(); err != nil {
			logs.Warnf("worker.Main config watch disabled path=%q err=%v", path, err)
		}
	}

	transform, err := build(live)
	if err != nil {
		logs.Errf("worker.Main transform setup failed name=%s err=%v", name, err)
		return 1
	}

	shutdown := &Shutdown{}
	stop := shutdown.NotifySignals(syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := New(Options{
		Name:       name,
		SocketPath: socketPath,
		Socket:     cfg.SocketConfig(),
		Transform:  transform,
		Shutdown:   shutdown,
	})
	if err != nil {
		logs.Errf("worker.Main setup failed name=%s err=%v", name, err)
		return 1
	}

	if cfg.MetricsAddr != "" {
		diag := observability.NewDiagnostics(name, func() (string, bool) {
			s := w.State()
			return s.String(), s.Serving()
		})
		if err := diag.Start(cfg.MetricsAddr); err != nil {
			logs.Warnf("worker.Main diagnostics disabled err=%v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = diag.Shutdown(ctx)
			}()
		}
	}

	logs.Infof("worker.Main starting name=%s socket=%q config=%q", name, filepath.Clean(socketPath), path)
	if err := w.Run(); err != nil {
		logs.Errf("worker.Main %v", err)
		return 1
	}
	logs.Infof("worker.Main stopped name=%s", name)
	return 0
}

// applyLogLevel uses the config level unless the env override is set.
func applyLogLevel(raw string) {
	if os.Getenv(logs.EnvLogLevel) != "" {
		return
	}
	if lvl, ok := logs.ParseLevel(raw); ok {
		logs.SetLevel(lvl)
	}
}
