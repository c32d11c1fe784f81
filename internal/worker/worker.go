// Package worker runs the single-connection accept, transform, reply loop
// behind a framed Unix socket.
package worker

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/observability"
	"github.com/danmuck/postproc/internal/protocol/socket"
)

var (
	ErrNoTransform  = errors.New("worker: transform required")
	ErrNoSocketPath = errors.New("worker: socket path required")
	ErrPanic        = errors.New("worker: transform panicked")
)

// Exchange is one accepted request. Payload aliases a listener buffer and
// is valid until Process returns.
type Exchange struct {
	Payload []byte
	conn    *socket.Conn
	extra   int
}

// Receive reads a secondary message on the same connection. Earlier
// payloads of the exchange stay valid.
func (e *Exchange) Receive() ([]byte, error) {
	p, err := e.conn.Receive()
	if err == nil {
		e.extra += len(p)
	}
	return p, err
}

// Transform derives a response from a request. A nil response with a nil
// error means the worker sends nothing.
type Transform interface {
	Process(ex *Exchange) ([]byte, error)
}

type TransformFunc func(ex *Exchange) ([]byte, error)

func (f TransformFunc) Process(ex *Exchange) ([]byte, error) {
	return f(ex)
}

type Options struct {
	Name       string
	SocketPath string
	Socket     socket.Config
	Transform  Transform
	Shutdown   *Shutdown
}

// Worker serves one connection at a time until shutdown is requested.
type Worker struct {
	opts     Options
	state    atomic.Int32
	ready    chan struct{}
	listener *socket.Listener
}

func New(opts Options) (*Worker, error) {
	if opts.Transform == nil {
		return nil, ErrNoTransform
	}
	if strings.TrimSpace(opts.SocketPath) == "" {
		return nil, ErrNoSocketPath
	}
	if opts.Name == "" {
		opts.Name = "postproc"
	}
	if opts.Shutdown == nil {
		opts.Shutdown = &Shutdown{}
	}
	w := &Worker{opts: opts, ready: make(chan struct{})}
	w.setState(StateStarting)
	return w, nil
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Ready is closed once the socket is bound.
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

func (w *Worker) Shutdown() *Shutdown {
	return w.opts.Shutdown
}

// Run binds the socket and serves until the shutdown flag is observed.
// Only a bind failure is returned as an error.
func (w *Worker) Run() error {
	l, err := socket.Listen(w.opts.SocketPath, w.opts.Socket)
	if err != nil {
		w.setState(StateTerminated)
		return fmt.Errorf("worker %s: %w", w.opts.Name, err)
	}
	w.listener = l
	w.setState(StateListening)
	close(w.ready)
	logs.Infof("worker.Worker.Run listening name=%s path=%q", w.opts.Name, w.opts.SocketPath)

	w.setState(StateIdle)
	for !w.opts.Shutdown.Requested() {
		if stop := w.iterate(); stop {
			break
		}
	}

	w.setState(StateShuttingDown)
	logs.Infof("worker.Worker.Run shutting down name=%s", w.opts.Name)
	if err := l.Close(); err != nil {
		logs.Warnf("worker.Worker.Run listener close err=%v", err)
	}
	w.setState(StateTerminated)
	return nil
}

// iterate waits for one connection and handles it. It reports true when
// the loop must end.
func (w *Worker) iterate() bool {
	conn, payload, err := w.listener.Await()
	switch {
	case err == nil:
	case errors.Is(err, socket.ErrTimeout):
		observability.RecordListenerTimeout(w.opts.Name)
		logs.Tracef("worker.Worker.iterate idle timeout name=%s", w.opts.Name)
		return false
	case errors.Is(err, socket.ErrClosed):
		return true
	case conn == nil:
		logs.Warnf("worker.Worker.iterate accept failed name=%s err=%v", w.opts.Name, err)
		return false
	default:
		logs.Warnf("worker.Worker.iterate bad frame name=%s err=%v", w.opts.Name, err)
		observability.RecordExchange(w.opts.Name, observability.OutcomeBadFrame, 0, 0, 0)
		w.closeConn(conn)
		return false
	}

	if w.opts.Shutdown.Requested() {
		observability.RecordExchange(w.opts.Name, observability.OutcomeSkipped, len(payload), 0, 0)
		w.closeConn(conn)
		return true
	}

	w.setState(StateHandling)
	w.handle(conn, payload)
	w.setState(StateIdle)
	return false
}

func (w *Worker) handle(conn *socket.Conn, payload []byte) {
	start := time.Now()
	ex := &Exchange{Payload: payload, conn: conn}
	resp, err := w.process(ex)
	bytesIn := len(payload) + ex.extra

	outcome := observability.OutcomeReplied
	switch {
	case err != nil:
		outcome = observability.OutcomeFailed
		logs.Errf("worker.Worker.handle transform failed name=%s bytes_in=%d err=%v", w.opts.Name, bytesIn, err)
	case resp == nil:
		outcome = observability.OutcomeNoReply
		logs.Debugf("worker.Worker.handle no reply name=%s bytes_in=%d", w.opts.Name, bytesIn)
	default:
		if sendErr := conn.Send(resp); sendErr != nil {
			outcome = observability.OutcomeSendFailed
			logs.Warnf("worker.Worker.handle send failed name=%s err=%v", w.opts.Name, sendErr)
		} else {
			logs.Debugf("worker.Worker.handle ok name=%s bytes_in=%d bytes_out=%d", w.opts.Name, bytesIn, len(resp))
		}
	}
	w.closeConn(conn)

	bytesOut := 0
	if outcome == observability.OutcomeReplied {
		bytesOut = len(resp)
	}
	observability.RecordExchange(w.opts.Name, outcome, bytesIn, bytesOut, time.Since(start))
}

func (w *Worker) process(ex *Exchange) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return w.opts.Transform.Process(ex)
}

func (w *Worker) closeConn(conn *socket.Conn) {
	if err := conn.Close(); err != nil {
		logs.Warnf("worker.Worker.closeConn err=%v", err)
	}
}
