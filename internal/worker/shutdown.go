package worker

import (
	"os"
	"os/signal"
	"sync/atomic"

	logs "github.com/danmuck/postproc/internal/logging"
)

// Shutdown is the stop flag shared between signal delivery and the loop.
// The loop checks it once per iteration; in-flight handling completes.
type Shutdown struct {
	requested atomic.Bool
}

func (s *Shutdown) Request() {
	s.requested.Store(true)
}

func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// NotifySignals sets the flag when any of sigs arrives. The returned stop
// func detaches the handler.
func (s *Shutdown) NotifySignals(sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			logs.Infof("worker.Shutdown signal=%s", sig)
			s.Request()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
