package socket

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/postproc/internal/protocol/frame"
)

var ErrConnect = errors.New("socket: connect failed")

func dial(path string, cfg Config) (*net.UnixConn, error) {
	c, err := net.DialTimeout("unix", path, cfg.SendTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: path=%q: %w", ErrConnect, path, err)
	}
	return c.(*net.UnixConn), nil
}

func send(c *net.UnixConn, payload []byte, cfg Config) error {
	if err := c.SetWriteDeadline(time.Now().Add(cfg.SendTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrSend, err)
	}
	if err := frame.WriteFrame(c, payload, cfg.Limits); err != nil {
		return fmt.Errorf("%w: length=%d: %w", ErrSend, len(payload), err)
	}
	return nil
}

// SendAndReceive performs one client exchange against the socket at path.
// The response is a fresh allocation owned by the caller.
func SendAndReceive(path string, payload []byte, cfg Config) ([]byte, error) {
	cfg = cfg.normalized()
	c, err := dial(path, cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := send(c, payload, cfg); err != nil {
		return nil, err
	}
	if err := c.SetReadDeadline(time.Now().Add(cfg.ReceiveTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %w", frame.ErrShortHeader, err)
	}
	var buf frame.Buffer
	resp, err := frame.ReadFrame(c, &buf, cfg.Limits)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Send delivers one message without waiting for a response.
func Send(path string, payload []byte, cfg Config) error {
	cfg = cfg.normalized()
	c, err := dial(path, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return send(c, payload, cfg)
}

// SendMessages writes each payload as its own frame on one connection and
// then reads a single response. Used for exchanges that carry a secondary
// message.
func SendMessages(path string, payloads [][]byte, cfg Config) ([]byte, error) {
	cfg = cfg.normalized()
	c, err := dial(path, cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	for _, p := range payloads {
		if err := send(c, p, cfg); err != nil {
			return nil, err
		}
	}
	if err := c.SetReadDeadline(time.Now().Add(cfg.ReceiveTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %w", frame.ErrShortHeader, err)
	}
	var buf frame.Buffer
	return frame.ReadFrame(c, &buf, cfg.Limits)
}
