package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"pgregory.net/rapid"
)

// chunkReader returns at most k bytes per Read call.
type chunkReader struct {
	r io.Reader
	k int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.k {
		p = p[:c.k]
	}
	return c.r.Read(p)
}

// chunkWriter accepts at most k bytes per Write call and reports no error.
type chunkWriter struct {
	w     *bytes.Buffer
	k     int
	calls int
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	c.calls++
	if len(p) > c.k {
		p = p[:c.k]
	}
	return c.w.Write(p)
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte("inference\x00results\x00")
	var wire bytes.Buffer
	if err := WriteFrame(&wire, payload, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if wire.Len() != HeaderLen+len(payload) {
		t.Fatalf("unexpected wire length: %d", wire.Len())
	}

	var buf Buffer
	out, err := ReadFrame(&wire, &buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: got=%q want=%q", out, payload)
	}
}

func TestHeaderIsLittleEndian(t *testing.T) {
	h := EncodeHeader(0x01020304)
	if h != [HeaderLen]byte{0x04, 0x03, 0x02, 0x01} {
		t.Fatalf("unexpected header bytes: %v", h)
	}
	if DecodeHeader(h) != 0x01020304 {
		t.Fatalf("decode mismatch")
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteFrame(&wire, nil, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	var buf Buffer
	out, err := ReadFrame(&wire, &buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(out))
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	var buf Buffer
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), &buf, DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(nil), &buf, DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader on empty stream, got %v", err)
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	h := EncodeHeader(10)
	wire := append(h[:], []byte("abc")...)
	var buf Buffer
	_, err := ReadFrame(bytes.NewReader(wire), &buf, DefaultLimits())
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
}

func TestReadFramePayloadTooLargeSkipsAllocation(t *testing.T) {
	h := EncodeHeader(1 << 30)
	var buf Buffer
	_, err := ReadFrame(bytes.NewReader(h[:]), &buf, Limits{MaxPayloadBytes: 1024})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Cap() != 0 {
		t.Fatalf("buffer grew for rejected frame: cap=%d", buf.Cap())
	}
}

func TestWriteFramePayloadTooLarge(t *testing.T) {
	var wire bytes.Buffer
	err := WriteFrame(&wire, make([]byte, 32), Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if wire.Len() != 0 {
		t.Fatalf("expected nothing written, got %d bytes", wire.Len())
	}
}

func TestReadFrameStopsAtLength(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteFrame(&wire, []byte("first"), DefaultLimits()); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := WriteFrame(&wire, []byte("second"), DefaultLimits()); err != nil {
		t.Fatalf("write second: %v", err)
	}

	var a, b Buffer
	first, err := ReadFrame(&wire, &a, DefaultLimits())
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	second, err := ReadFrame(&wire, &b, DefaultLimits())
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if string(first) != "first" || string(second) != "second" {
		t.Fatalf("unexpected payloads: %q %q", first, second)
	}
}

func TestBufferReuseDoesNotLeakResidualBytes(t *testing.T) {
	var buf Buffer
	long := bytes.Repeat([]byte{0xAA}, 64)
	short := []byte{0x01, 0x02, 0x03}

	var wire bytes.Buffer
	_ = WriteFrame(&wire, long, DefaultLimits())
	_ = WriteFrame(&wire, short, DefaultLimits())

	if _, err := ReadFrame(&wire, &buf, DefaultLimits()); err != nil {
		t.Fatalf("read long: %v", err)
	}
	capAfterLong := buf.Cap()
	out, err := ReadFrame(&wire, &buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read short: %v", err)
	}
	if !bytes.Equal(out, short) {
		t.Fatalf("residual bytes leaked: %v", out)
	}
	if buf.Cap() != capAfterLong {
		t.Fatalf("buffer reallocated: before=%d after=%d", capAfterLong, buf.Cap())
	}
}

func TestPartialIOResilience(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789\x00"), 37)
	for _, k := range []int{1, 2, 3, 4, 5, 7, 64, 4096} {
		var sink bytes.Buffer
		w := &chunkWriter{w: &sink, k: k}
		if err := WriteFrame(w, payload, DefaultLimits()); err != nil {
			t.Fatalf("k=%d write: %v", k, err)
		}
		if k == 1 && w.calls != HeaderLen+len(payload) {
			t.Fatalf("k=1 expected one call per byte, got %d", w.calls)
		}

		var buf Buffer
		out, err := ReadFrame(&chunkReader{r: &sink, k: k}, &buf, DefaultLimits())
		if err != nil {
			t.Fatalf("k=%d read: %v", k, err)
		}
		if !bytes.Equal(out, payload) {
			t.Fatalf("k=%d payload mismatch", k)
		}
	}
}

type zeroWriter struct{}

func (zeroWriter) Write(p []byte) (int, error) { return 0, nil }

func TestWriteFrameZeroProgress(t *testing.T) {
	if err := WriteFrame(zeroWriter{}, []byte("x"), DefaultLimits()); !errors.Is(err, ErrShortWrite) {
		t.Fatalf("expected ErrShortWrite, got %v", err)
	}
}

func TestFrameRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 2048).Draw(t, "payload")
		k := rapid.IntRange(1, 64).Draw(t, "chunk")

		var sink bytes.Buffer
		if err := WriteFrame(&chunkWriter{w: &sink, k: k}, payload, DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
		var buf Buffer
		out, err := ReadFrame(&chunkReader{r: &sink, k: k}, &buf, DefaultLimits())
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(out) != len(payload) || !bytes.Equal(out, payload) {
			t.Fatalf("round trip mismatch: got=%d want=%d", len(out), len(payload))
		}
	})
}
