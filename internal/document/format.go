package document

import (
	"fmt"
	"strings"
)

type Format int

const (
	FormatMsgpack Format = iota
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatMsgpack:
		return "msgpack"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "msgpack", "mpack", "messagepack":
		return FormatMsgpack, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("document: unknown format %q", raw)
	}
}

// maxDepth bounds container nesting during parse.
const maxDepth = 512

// Parse decodes one document. For msgpack, String and Binary values alias
// data and stay valid only while data is unchanged.
func Parse(format Format, data []byte) (Value, error) {
	switch format {
	case FormatMsgpack:
		return parseMsgpack(data)
	case FormatJSON:
		return parseJSON(data)
	default:
		return Missing, fmt.Errorf("%w: unknown format %s", ErrDecode, format)
	}
}

// Encode serialises a complete document.
func Encode(format Format, v Value) ([]byte, error) {
	switch format {
	case FormatMsgpack:
		return encodeMsgpack(v)
	case FormatJSON:
		return encodeJSON(v)
	default:
		return nil, fmt.Errorf("%w: unknown format %s", ErrEncode, format)
	}
}
