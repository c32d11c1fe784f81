package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

func parseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := jsonValue(dec, 0)
	if err != nil {
		return Missing, fmt.Errorf("%w: json offset=%d: %w", ErrDecode, dec.InputOffset(), err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Missing, fmt.Errorf("%w: json trailing data at offset=%d", ErrDecode, dec.InputOffset())
	}
	return v, nil
}

func jsonValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Missing, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Missing, err
	}
	switch t := tok.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return jsonNumber(t)
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := jsonValue(dec, depth+1)
				if err != nil {
					return Missing, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Missing, err
			}
			return Array(items...), nil
		case '{':
			var entries []Entry
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Missing, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Missing, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := jsonValue(dec, depth+1)
				if err != nil {
					return Missing, err
				}
				entries = append(entries, Pair(key, val))
			}
			if _, err := dec.Token(); err != nil {
				return Missing, err
			}
			return Map(entries...), nil
		}
	}
	return Missing, fmt.Errorf("unexpected token %v", tok)
}

func jsonNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Uint(u), nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil && i < 0 {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Missing, fmt.Errorf("number %q: %w", s, err)
	}
	return Double(f), nil
}

// encodeJSON writes compact JSON. Strings and keys go out verbatim apart
// from the escapes JSON requires; ones that are not valid UTF-8 are
// rejected rather than rewritten.
func encodeJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNil:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.u == 1))
	case KindUint:
		buf.Write(strconv.AppendUint(nil, v.u, 10))
	case KindInt:
		buf.Write(strconv.AppendInt(nil, v.i, 10))
	case KindFloat:
		return writeJSONFloat(buf, v.f, 32)
	case KindDouble:
		return writeJSONFloat(buf, v.f, 64)
	case KindString:
		return writeJSONString(buf, v.b)
	case KindBinary:
		return writeJSONString(buf, []byte(base64.StdEncoding.EncodeToString(v.b)))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if e.Key.kind != KindString {
				return fmt.Errorf("map key of kind %s", e.Key.kind)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, e.Key.b); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %s value", v.kind)
	}
	return nil
}

// writeJSONFloat keeps a fraction on integral values so they parse back as
// floating point.
func writeJSONFloat(buf *bytes.Buffer, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("unsupported float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	buf.WriteString(s)
	return nil
}

func writeJSONString(buf *bytes.Buffer, s []byte) error {
	if !utf8.Valid(s) {
		return fmt.Errorf("string is not valid utf-8: %q", s)
	}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(string(s)); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
