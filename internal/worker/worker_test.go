package worker

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/danmuck/postproc/internal/config"
	"github.com/danmuck/postproc/internal/protocol/frame"
	"github.com/danmuck/postproc/internal/protocol/socket"
	"github.com/danmuck/postproc/internal/testutil/testlog"
)

func fastSocket() socket.Config {
	cfg := socket.DefaultConfig()
	cfg.ReceiveTimeout = 100 * time.Millisecond
	cfg.SendTimeout = time.Second
	return cfg
}

func clientConfig() socket.Config {
	cfg := socket.DefaultConfig()
	cfg.ReceiveTimeout = 2 * time.Second
	cfg.SendTimeout = 2 * time.Second
	return cfg
}

type running struct {
	w    *Worker
	path string
	done chan error
}

func startWorker(t *testing.T, tr Transform) *running {
	t.Helper()
	path := filepath.Join(t.TempDir(), "w.sock")
	w, err := New(Options{Name: "worker-test", SocketPath: path, Socket: fastSocket(), Transform: tr})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	r := &running{w: w, path: path, done: make(chan error, 1)}
	go func() { r.done <- w.Run() }()
	select {
	case <-w.Ready():
	case err := <-r.done:
		t.Fatalf("worker exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("worker not ready")
	}
	t.Cleanup(func() { r.stop(t) })
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.w.Shutdown().Request()
	select {
	case err := <-r.done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
		r.done <- nil
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func reverse(ex *Exchange) ([]byte, error) {
	out := make([]byte, len(ex.Payload))
	for i, b := range ex.Payload {
		out[len(out)-1-i] = b
	}
	return out, nil
}

func TestWorkerRepliesAndShutsDown(t *testing.T) {
	testlog.Start(t)
	r := startWorker(t, TransformFunc(reverse))

	resp, err := socket.SendAndReceive(r.path, []byte("abc"), clientConfig())
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if string(resp) != "cba" {
		t.Fatalf("unexpected response: %q", resp)
	}

	r.stop(t)
	if r.w.State() != StateTerminated {
		t.Fatalf("unexpected state after stop: %s", r.w.State())
	}
	if _, err := os.Stat(r.path); !os.IsNotExist(err) {
		t.Fatalf("socket path not removed: %v", err)
	}
}

func TestWorkerTimeoutStaysIdle(t *testing.T) {
	testlog.Start(t)
	r := startWorker(t, TransformFunc(reverse))
	time.Sleep(350 * time.Millisecond)
	if r.w.State() != StateIdle {
		t.Fatalf("expected idle after timeouts, got %s", r.w.State())
	}
	if _, err := socket.SendAndReceive(r.path, []byte("ok"), clientConfig()); err != nil {
		t.Fatalf("exchange after timeouts: %v", err)
	}
}

func TestWorkerNoReplyClosesConnection(t *testing.T) {
	testlog.Start(t)
	r := startWorker(t, TransformFunc(func(ex *Exchange) ([]byte, error) { return nil, nil }))

	_, err := socket.SendAndReceive(r.path, []byte("quiet"), clientConfig())
	if !errors.Is(err, frame.ErrShortHeader) {
		t.Fatalf("expected closed connection without reply, got %v", err)
	}
}

func TestWorkerSurvivesTransformFailures(t *testing.T) {
	testlog.Start(t)
	r := startWorker(t, TransformFunc(func(ex *Exchange) ([]byte, error) {
		switch string(ex.Payload) {
		case "fail":
			return nil, fmt.Errorf("bad input")
		case "panic":
			panic("boom")
		default:
			return reverse(ex)
		}
	}))

	for _, p := range []string{"fail", "panic"} {
		if _, err := socket.SendAndReceive(r.path, []byte(p), clientConfig()); err == nil {
			t.Fatalf("%s: expected no response", p)
		}
	}
	resp, err := socket.SendAndReceive(r.path, []byte("xy"), clientConfig())
	if err != nil || string(resp) != "yx" {
		t.Fatalf("worker did not recover: resp=%q err=%v", resp, err)
	}
}

func TestWorkerBadFrameKeepsServing(t *testing.T) {
	testlog.Start(t)
	r := startWorker(t, TransformFunc(reverse))

	c, err := net.Dial("unix", r.path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_, _ = c.Write([]byte{0x01, 0x02})
	_ = c.Close()

	resp, err := socket.SendAndReceive(r.path, []byte("12"), clientConfig())
	if err != nil || string(resp) != "21" {
		t.Fatalf("worker did not recover from bad frame: resp=%q err=%v", resp, err)
	}
}

func TestWorkerSecondaryMessage(t *testing.T) {
	testlog.Start(t)
	r := startWorker(t, TransformFunc(func(ex *Exchange) ([]byte, error) {
		first := ex.Payload
		second, err := ex.Receive()
		if err != nil {
			return nil, err
		}
		return append(append([]byte{}, first...), second...), nil
	}))

	resp, err := socket.SendMessages(r.path, [][]byte{[]byte("head"), []byte("tail")}, clientConfig())
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if string(resp) != "headtail" {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestWorkerBindFailure(t *testing.T) {
	testlog.Start(t)
	w, err := New(Options{
		SocketPath: filepath.Join(t.TempDir(), "missing", "w.sock"),
		Transform:  TransformFunc(reverse),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Run(); !errors.Is(err, socket.ErrBind) {
		t.Fatalf("expected ErrBind, got %v", err)
	}
	if w.State() != StateTerminated {
		t.Fatalf("unexpected state: %s", w.State())
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{SocketPath: "/tmp/x.sock"}); !errors.Is(err, ErrNoTransform) {
		t.Fatalf("expected ErrNoTransform, got %v", err)
	}
	if _, err := New(Options{Transform: TransformFunc(reverse)}); !errors.Is(err, ErrNoSocketPath) {
		t.Fatalf("expected ErrNoSocketPath, got %v", err)
	}
}

func buildReverse(*config.Reloadable) (Transform, error) {
	return TransformFunc(reverse), nil
}

func TestRunExitCodes(t *testing.T) {
	testlog.Start(t)
	t.Setenv(config.EnvConfigPath, "")

	var stderr bytes.Buffer
	if code := run("postproc-test", nil, &stderr, buildReverse); code != 2 {
		t.Fatalf("expected exit 2 without args, got %d", code)
	}
	if code := run("postproc-test", []string{"a", "b"}, &stderr, buildReverse); code != 2 {
		t.Fatalf("expected exit 2 with extra args, got %d", code)
	}
	if !bytes.Contains(stderr.Bytes(), []byte("usage: postproc-test <socket-path>")) {
		t.Fatalf("missing usage line: %q", stderr.String())
	}

	bad := filepath.Join(t.TempDir(), "missing", "w.sock")
	if code := run("postproc-test", []string{bad}, &stderr, buildReverse); code != 1 {
		t.Fatalf("expected exit 1 on bind failure, got %d", code)
	}

	failing := func(*config.Reloadable) (Transform, error) { return nil, fmt.Errorf("no transform") }
	if code := run("postproc-test", []string{filepath.Join(t.TempDir(), "w.sock")}, &stderr, failing); code != 1 {
		t.Fatalf("expected exit 1 on transform setup failure, got %d", code)
	}
}

func TestRunGracefulSignalExitsZero(t *testing.T) {
	testlog.Start(t)
	cfgPath := filepath.Join(t.TempDir(), "worker.toml")
	if err := os.WriteFile(cfgPath, []byte("receive_timeout = \"100ms\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvConfigPath, cfgPath)

	sock := filepath.Join(t.TempDir(), "w.sock")
	code := make(chan int, 1)
	go func() {
		var stderr bytes.Buffer
		code <- run("postproc-test", []string{sock}, &stderr, buildReverse)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp, err := socket.SendAndReceive(sock, []byte("ab"), clientConfig()); err != nil || string(resp) != "ba" {
		t.Fatalf("exchange: resp=%q err=%v", resp, err)
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("signal: %v", err)
	}
	select {
	case c := <-code:
		if c != 0 {
			t.Fatalf("expected exit 0, got %d", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not exit on SIGINT")
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Fatalf("socket path not removed after shutdown: %v", err)
	}
}

func TestShutdownFlag(t *testing.T) {
	var s Shutdown
	if s.Requested() {
		t.Fatalf("fresh flag set")
	}
	s.Request()
	if !s.Requested() {
		t.Fatalf("flag not set after Request")
	}
}
