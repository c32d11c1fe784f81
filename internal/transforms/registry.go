// Package transforms holds the bundled postprocessor transforms and the
// registry the postproc binaries pick them from.
package transforms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/postproc/internal/config"
	"github.com/danmuck/postproc/internal/shm"
	"github.com/danmuck/postproc/internal/worker"
)

// Deps are the collaborators a transform may read from. Settings is read
// on every exchange so config reloads take effect without a restart.
type Deps struct {
	Settings func() config.TransformConfig
	SHM      shm.Reader
}

func (d Deps) settings() config.TransformConfig {
	if d.Settings == nil {
		return config.DefaultTransformConfig()
	}
	return d.Settings()
}

type Factory func(deps Deps) worker.Transform

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names lists the registered transforms in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder adapts a registered transform to worker.Main. reader may be nil
// for transforms that never touch shared memory.
func Builder(name string, reader shm.Reader) worker.BuildFunc {
	return func(cfg *config.Reloadable) (worker.Transform, error) {
		f, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("transforms: unknown transform %q (have %v)", name, Names())
		}
		return f(Deps{Settings: cfg.Transform, SHM: reader}), nil
	}
}
