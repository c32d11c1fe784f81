package document

import (
	"strconv"
	"strings"
)

// String renders the tree for logs. Binary payloads print as their length.
func (v Value) String() string {
	var sb strings.Builder
	render(&sb, v)
	return sb.String()
}

func render(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindMissing:
		sb.WriteString("<missing>")
	case KindNil:
		sb.WriteString("nil")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.u == 1))
	case KindUint:
		sb.WriteString(strconv.FormatUint(v.u, 10))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 32))
	case KindDouble:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(string(v.b)))
	case KindBinary:
		sb.WriteString("<bin ")
		sb.WriteString(strconv.Itoa(len(v.b)))
		sb.WriteString(">")
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			render(sb, item)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				sb.WriteString(", ")
			}
			render(sb, e.Key)
			sb.WriteString(": ")
			render(sb, e.Value)
		}
		sb.WriteByte('}')
	case KindUnsupported:
		sb.WriteString("<unsupported 0x")
		sb.WriteString(strconv.FormatUint(v.u, 16))
		sb.WriteString(">")
	}
}
