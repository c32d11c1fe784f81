// Package transcode copies dynamically typed documents into a builder,
// optionally filtering top-level keys so callers can replace them.
package transcode

import (
	"errors"
	"fmt"

	"github.com/danmuck/postproc/internal/document"
)

var ErrNotMap = errors.New("transcode: root is not a map")

// Transcode writes node into b with the same shape and scalar values.
// Missing and Unsupported nodes are skipped; a map entry whose key or value
// would be skipped is dropped whole.
func Transcode(node document.Value, b *document.Builder) {
	switch node.Kind() {
	case document.KindMissing, document.KindUnsupported:
		return
	case document.KindNil:
		b.Nil()
	case document.KindBool:
		v, _ := node.Bool()
		b.Bool(v)
	case document.KindUint:
		v, _ := node.Uint()
		b.Uint(v)
	case document.KindInt:
		v, _ := node.Int()
		b.Int(v)
	case document.KindFloat:
		v, _ := node.Float32()
		b.Float(v)
	case document.KindDouble:
		v, _ := node.Float64()
		b.Double(v)
	case document.KindString:
		v, _ := node.Bytes()
		b.StringBytes(v)
	case document.KindBinary:
		v, _ := node.Bytes()
		b.Binary(v)
	case document.KindArray:
		items := node.Items()
		b.StartArray(CountWritable(items))
		for _, item := range items {
			Transcode(item, b)
		}
		b.FinishArray()
	case document.KindMap:
		b.BuildMap()
		for _, e := range node.Entries() {
			CopyEntry(e, b)
		}
		b.CompleteMap()
	}
}

// Writable reports whether Transcode emits v; Missing and Unsupported
// nodes are skipped.
func Writable(v document.Value) bool {
	k := v.Kind()
	return k != document.KindMissing && k != document.KindUnsupported
}

// CountWritable is the element count Transcode writes for items.
func CountWritable(items []document.Value) int {
	n := 0
	for _, item := range items {
		if Writable(item) {
			n++
		}
	}
	return n
}

// CopyEntry writes one map entry, dropping it whole when either side is
// skipped.
func CopyEntry(e document.Entry, b *document.Builder) {
	if !Writable(e.Key) || !Writable(e.Value) {
		return
	}
	Transcode(e.Key, b)
	Transcode(e.Value, b)
}

// KeySet builds the exclusion set for CopyMapExcluding.
func KeySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// CopyMapExcluding opens a streaming map on b and copies every entry of
// root except string keys found in excluded. The map is left open; the
// caller appends replacement entries and then calls b.CompleteMap.
func CopyMapExcluding(root document.Value, b *document.Builder, excluded map[string]struct{}) error {
	if root.Kind() != document.KindMap {
		return fmt.Errorf("%w: kind=%s", ErrNotMap, root.Kind())
	}
	b.BuildMap()
	for _, e := range root.Entries() {
		if e.Key.Kind() == document.KindString {
			raw, _ := e.Key.Bytes()
			if _, skip := excluded[string(raw)]; skip {
				continue
			}
		}
		CopyEntry(e, b)
	}
	return nil
}
