package socket

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/postproc/internal/protocol/frame"
)

var ErrSend = errors.New("socket: send failed")

// Conn is one accepted connection. Each Receive uses the next receive
// buffer retained by the listener, so earlier payloads of the same
// exchange stay valid until the next connection.
type Conn struct {
	c        *net.UnixConn
	l        *Listener
	received int
}

// Receive reads the next message on this connection.
func (c *Conn) Receive() ([]byte, error) {
	buf := c.l.buffer(c.received)
	c.received++
	if err := c.c.SetReadDeadline(time.Now().Add(c.l.cfg.ReceiveTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %w", frame.ErrShortHeader, err)
	}
	return frame.ReadFrame(c.c, buf, c.l.cfg.Limits)
}

// Send writes one framed response.
func (c *Conn) Send(payload []byte) error {
	if err := c.c.SetWriteDeadline(time.Now().Add(c.l.cfg.SendTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrSend, err)
	}
	if err := frame.WriteFrame(c.c, payload, c.l.cfg.Limits); err != nil {
		return fmt.Errorf("%w: length=%d: %w", ErrSend, len(payload), err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.c.Close()
}
