package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// mpParser walks a msgpack buffer with the decoder primitives and slices
// str/bin payloads straight out of data.
type mpParser struct {
	data []byte
	br   *bytes.Reader
	dec  *msgpack.Decoder
}

func parseMsgpack(data []byte) (Value, error) {
	br := bytes.NewReader(data)
	p := &mpParser{data: data, br: br, dec: msgpack.NewDecoder(br)}
	v, err := p.value(0)
	if err != nil {
		return Missing, fmt.Errorf("%w: msgpack offset=%d: %w", ErrDecode, p.offset(), err)
	}
	if br.Len() != 0 {
		return Missing, fmt.Errorf("%w: msgpack trailing bytes=%d", ErrDecode, br.Len())
	}
	return v, nil
}

func (p *mpParser) offset() int {
	return len(p.data) - p.br.Len()
}

func (p *mpParser) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Missing, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	c, err := p.dec.PeekCode()
	if err != nil {
		return Missing, err
	}

	switch {
	case c == msgpcode.Nil:
		return Nil(), p.dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		b, err := p.dec.DecodeBool()
		return Bool(b), err
	case msgpcode.IsFixedNum(c):
		if c <= msgpcode.PosFixedNumHigh {
			u, err := p.dec.DecodeUint64()
			return Uint(u), err
		}
		i, err := p.dec.DecodeInt64()
		return Int(i), err
	case c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64:
		u, err := p.dec.DecodeUint64()
		return Uint(u), err
	case c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64:
		i, err := p.dec.DecodeInt64()
		if err != nil {
			return Missing, err
		}
		// Writers that only track signedness emit non-negative values as
		// signed codes; they read back as unsigned.
		if i >= 0 {
			return Uint(uint64(i)), nil
		}
		return Int(i), nil
	case c == msgpcode.Float:
		f, err := p.dec.DecodeFloat32()
		return Float(f), err
	case c == msgpcode.Double:
		f, err := p.dec.DecodeFloat64()
		return Double(f), err
	case msgpcode.IsString(c):
		b, err := p.raw()
		return StringBytes(b), err
	case msgpcode.IsBin(c):
		b, err := p.raw()
		return Binary(b), err
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		return p.array(depth)
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		return p.mapValue(depth)
	case msgpcode.IsExt(c):
		if err := p.dec.Skip(); err != nil {
			return Missing, err
		}
		return Unsupported(c), nil
	default:
		return Missing, fmt.Errorf("unknown code 0x%02x", c)
	}
}

// raw reads a str/bin header and returns the payload as a view of data.
func (p *mpParser) raw() ([]byte, error) {
	n, err := p.dec.DecodeBytesLen()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > p.br.Len() {
		return nil, fmt.Errorf("byte length %d exceeds remaining %d", n, p.br.Len())
	}
	start := p.offset()
	if _, err := p.br.Seek(int64(n), io.SeekCurrent); err != nil {
		return nil, err
	}
	return p.data[start : start+n : start+n], nil
}

func (p *mpParser) count(n int, perItem int) error {
	// Every element takes at least one byte, so a declared count beyond the
	// remaining input is malformed and must not drive an allocation.
	if n < 0 || n*perItem > p.br.Len() {
		return fmt.Errorf("container count %d exceeds remaining %d", n, p.br.Len())
	}
	return nil
}

func (p *mpParser) array(depth int) (Value, error) {
	n, err := p.dec.DecodeArrayLen()
	if err != nil {
		return Missing, err
	}
	if err := p.count(n, 1); err != nil {
		return Missing, err
	}
	items := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		item, err := p.value(depth + 1)
		if err != nil {
			return Missing, err
		}
		items = append(items, item)
	}
	return Array(items...), nil
}

func (p *mpParser) mapValue(depth int) (Value, error) {
	n, err := p.dec.DecodeMapLen()
	if err != nil {
		return Missing, err
	}
	if err := p.count(n, 2); err != nil {
		return Missing, err
	}
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		k, err := p.value(depth + 1)
		if err != nil {
			return Missing, err
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return Missing, err
		}
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return Map(entries...), nil
}

func encodeMsgpack(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := writeMsgpack(enc, v); err != nil {
		return nil, fmt.Errorf("%w: msgpack: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func writeMsgpack(enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.u == 1)
	case KindUint:
		return enc.EncodeUint(v.u)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindFloat:
		return enc.EncodeFloat32(float32(v.f))
	case KindDouble:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(string(v.b))
	case KindBinary:
		if err := enc.EncodeBytesLen(len(v.b)); err != nil {
			return err
		}
		_, err := enc.Writer().Write(v.b)
		return err
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.items)); err != nil {
			return err
		}
		for _, item := range v.items {
			if err := writeMsgpack(enc, item); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(len(v.entries)); err != nil {
			return err
		}
		for _, e := range v.entries {
			if err := writeMsgpack(enc, e.Key); err != nil {
				return err
			}
			if err := writeMsgpack(enc, e.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cannot encode %s value", v.kind)
	}
}
