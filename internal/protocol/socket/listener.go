package socket

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/protocol/frame"
)

var (
	ErrBind    = errors.New("socket: bind failed")
	ErrTimeout = errors.New("socket: timed out")
	ErrAccept  = errors.New("socket: accept failed")
	ErrClosed  = errors.New("socket: listener closed")
)

// maxPathLen leaves room for the terminating NUL in sun_path.
var maxPathLen = len(unix.RawSockaddrUnix{}.Path) - 1

// Config carries per-listener and per-client socket settings.
type Config struct {
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration
	Backlog        int
	Limits         frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ReceiveTimeout: 5 * time.Second,
		SendTimeout:    5 * time.Second,
		Backlog:        30,
		Limits:         frame.DefaultLimits(),
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = def.ReceiveTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.Backlog <= 0 {
		c.Backlog = def.Backlog
	}
	// A zero limit would let a peer-supplied length size the buffer.
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}

// Listener owns the socket path and the receive buffers reused across
// connections. It serves one connection at a time.
type Listener struct {
	path string
	cfg  Config
	ln   *net.UnixListener

	mu      sync.Mutex
	closed  bool
	buffers []*frame.Buffer
}

// Listen removes any stale entry at path, binds a stream socket there,
// and makes the path world read/writable.
func Listen(path string, cfg Config) (*Listener, error) {
	cfg = cfg.normalized()
	if path == "" || len(path) > maxPathLen {
		return nil, fmt.Errorf("%w: path length=%d max=%d", ErrBind, len(path), maxPathLen)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: remove stale path=%q: %w", ErrBind, path, err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %w", ErrBind, err)
	}
	unix.CloseOnExec(fd)
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: bind path=%q: %w", ErrBind, path, err)
	}
	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: listen backlog=%d: %w", ErrBind, cfg.Backlog, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: chmod path=%q: %w", ErrBind, path, err)
	}

	// FileListener dups the descriptor; the original is closed with f.
	f := os.NewFile(uintptr(fd), path)
	nl, err := net.FileListener(f)
	_ = f.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: file listener: %w", ErrBind, err)
	}
	ul, ok := nl.(*net.UnixListener)
	if !ok {
		_ = nl.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: unexpected listener type %T", ErrBind, nl)
	}

	logs.Debugf("socket.Listen path=%q backlog=%d receive_timeout=%s", path, cfg.Backlog, cfg.ReceiveTimeout)
	return &Listener{path: path, cfg: cfg, ln: ul}, nil
}

func (l *Listener) Path() string {
	return l.path
}

func (l *Listener) Config() Config {
	return l.cfg
}

// Accept waits up to the receive timeout for one connection.
func (l *Listener) Accept() (*Conn, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if err := l.ln.SetDeadline(time.Now().Add(l.cfg.ReceiveTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", ErrAccept, err)
	}
	uc, err := l.ln.AcceptUnix()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("%w: accept after %s", ErrTimeout, l.cfg.ReceiveTimeout)
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %w", ErrAccept, err)
	}
	return &Conn{c: uc, l: l}, nil
}

// Await accepts one connection and reads its first message into the
// primary buffer. Framing errors return the accepted conn with the error
// so the caller decides whether to close it.
func (l *Listener) Await() (*Conn, []byte, error) {
	conn, err := l.Accept()
	if err != nil {
		return nil, nil, err
	}
	payload, err := conn.Receive()
	if err != nil {
		return conn, nil, err
	}
	return conn, payload, nil
}

// buffer returns the nth retained receive buffer, growing the set on demand.
func (l *Listener) buffer(n int) *frame.Buffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.buffers) <= n {
		l.buffers = append(l.buffers, &frame.Buffer{})
	}
	return l.buffers[n]
}

// BufferCaps reports the retained capacity of each receive buffer.
func (l *Listener) BufferCaps() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	caps := make([]int, len(l.buffers))
	for i, b := range l.buffers {
		caps[i] = b.Cap()
	}
	return caps
}

// Close stops listening, unlinks the socket path, and drops the buffers.
// Calling Close more than once is a no-op.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, b := range l.buffers {
		b.Release()
	}
	l.buffers = nil
	l.mu.Unlock()

	err := l.ln.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		logs.Warnf("socket.Listener.Close unlink failed path=%q err=%v", l.path, rmErr)
		if err == nil {
			err = rmErr
		}
	}
	logs.Debugf("socket.Listener.Close path=%q", l.path)
	return err
}
