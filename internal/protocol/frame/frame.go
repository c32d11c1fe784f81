package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the fixed length prefix size. The prefix is a little-endian u32.
const HeaderLen = 4

var (
	ErrShortHeader     = errors.New("frame: short length header")
	ErrShortRead       = errors.New("frame: short payload read")
	ErrShortWrite      = errors.New("frame: short write")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

// ReadFrame reads one length-prefixed payload from r into buf.
// The returned slice aliases buf and is valid until the next Grow on buf.
// Bytes following the payload are never consumed.
func ReadFrame(r io.Reader, buf *Buffer, limits Limits) ([]byte, error) {
	var header [HeaderLen]byte
	if n, err := readFull(r, header[:]); n != HeaderLen {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got=%d: %w", ErrShortHeader, n, err)
		}
		return nil, fmt.Errorf("%w: got=%d", ErrShortHeader, n)
	}

	length := DecodeHeader(header)
	if limits.MaxPayloadBytes > 0 && length > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: length=%d max=%d", ErrPayloadTooLarge, length, limits.MaxPayloadBytes)
	}

	payload := buf.Grow(int(length))
	if n, err := readFull(r, payload); n != int(length) {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got=%d want=%d: %w", ErrShortRead, n, length, err)
		}
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrShortRead, n, length)
	}
	return payload, nil
}

// WriteFrame writes the length header followed by payload.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: length=%d", ErrPayloadTooLarge, len(payload))
	}
	if limits.MaxPayloadBytes > 0 && uint32(len(payload)) > limits.MaxPayloadBytes {
		return fmt.Errorf("%w: length=%d max=%d", ErrPayloadTooLarge, len(payload), limits.MaxPayloadBytes)
	}
	header := EncodeHeader(uint32(len(payload)))
	if err := writeFull(w, header[:]); err != nil {
		return err
	}
	return writeFull(w, payload)
}

func EncodeHeader(length uint32) [HeaderLen]byte {
	var b [HeaderLen]byte
	binary.LittleEndian.PutUint32(b[:], length)
	return b
}

func DecodeHeader(b [HeaderLen]byte) uint32 {
	return binary.LittleEndian.Uint32(b[:])
}

// readFull keeps reading until p is full, EOF, or an error.
// A read that returns fewer bytes than requested is not an error.
func readFull(r io.Reader, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := r.Read(p[total:])
		total += n
		if err != nil {
			if total == len(p) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

// writeFull keeps writing until p is drained or a write fails.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
