package transcode

import (
	"errors"
	"math"
	"testing"

	"github.com/danmuck/postproc/internal/document"
	"pgregory.net/rapid"
)

func genDoc(depth int) *rapid.Generator[document.Value] {
	scalar := rapid.OneOf(
		rapid.Just(document.Nil()),
		rapid.Map(rapid.Bool(), document.Bool),
		rapid.Map(rapid.Uint64(), document.Uint),
		rapid.Map(rapid.Int64Range(math.MinInt64, -1), document.Int),
		rapid.Map(rapid.Float32Range(-1e6, 1e6), document.Float),
		rapid.Map(rapid.Float64Range(-1e12, 1e12), document.Double),
		rapid.Map(rapid.StringN(0, 16, -1), document.String),
		rapid.Map(rapid.SliceOfN(rapid.Byte(), 0, 32), document.Binary),
	)
	if depth == 0 {
		return scalar
	}
	child := genDoc(depth - 1)
	return rapid.OneOf(
		scalar,
		rapid.Map(rapid.SliceOfN(child, 0, 4), func(items []document.Value) document.Value {
			return document.Array(items...)
		}),
		rapid.Custom(func(t *rapid.T) document.Value {
			n := rapid.IntRange(0, 4).Draw(t, "pairs")
			entries := make([]document.Entry, 0, n)
			for i := 0; i < n; i++ {
				entries = append(entries, document.Pair(rapid.StringN(0, 8, -1).Draw(t, "key"), child.Draw(t, "value")))
			}
			return document.Map(entries...)
		}),
	)
}

func TestTranscodeFidelityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := genDoc(3).Draw(t, "doc")
		data, err := document.Encode(document.FormatMsgpack, doc)
		if err != nil {
			t.Fatalf("encode input: %v", err)
		}
		parsed, err := document.Parse(document.FormatMsgpack, data)
		if err != nil {
			t.Fatalf("parse input: %v", err)
		}

		b := document.NewBuilder()
		Transcode(parsed, b)
		out, err := b.Encode(document.FormatMsgpack)
		if err != nil {
			t.Fatalf("encode copy: %v", err)
		}
		back, err := document.Parse(document.FormatMsgpack, out)
		if err != nil {
			t.Fatalf("parse copy: %v", err)
		}
		if !back.Equal(doc) {
			t.Fatalf("transcode changed document:\n got=%s\nwant=%s", back, doc)
		}
	})
}

func TestTranscodeSkipsUnsupported(t *testing.T) {
	doc := document.Map(
		document.Pair("keep", document.Uint(1)),
		document.Pair("ext", document.Unsupported(0xd4)),
		document.Entry{Key: document.Unsupported(0xd5), Value: document.Uint(2)},
		document.Pair("list", document.Array(document.Uint(3), document.Unsupported(0xd6), document.Uint(4))),
	)
	b := document.NewBuilder()
	Transcode(doc, b)
	root, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	want := document.Map(
		document.Pair("keep", document.Uint(1)),
		document.Pair("list", document.Array(document.Uint(3), document.Uint(4))),
	)
	if !root.Equal(want) {
		t.Fatalf("unexpected copy: %s", root)
	}
}

func TestCopyMapExcludingReplacesKeys(t *testing.T) {
	doc := document.Map(
		document.Pair("Timestamp", document.Uint(100)),
		document.Pair("Counts", document.Map(document.Pair("cat", document.Uint(2)))),
		document.Pair("CountsExtra", document.Uint(9)),
		document.Pair("Width", document.Uint(4)),
	)

	b := document.NewBuilder()
	if err := CopyMapExcluding(doc, b, KeySet("Counts")); err != nil {
		t.Fatalf("copy: %v", err)
	}
	b.String("Counts")
	b.StartMap(1)
	b.String("dog")
	b.Uint(1)
	b.FinishMap()
	b.CompleteMap()

	root, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	want := document.Map(
		document.Pair("Timestamp", document.Uint(100)),
		document.Pair("CountsExtra", document.Uint(9)),
		document.Pair("Width", document.Uint(4)),
		document.Pair("Counts", document.Map(document.Pair("dog", document.Uint(1)))),
	)
	if !root.Equal(want) {
		t.Fatalf("unexpected document: %s", root)
	}
}

func TestCopyMapExcludingNonMap(t *testing.T) {
	b := document.NewBuilder()
	if err := CopyMapExcluding(document.Array(), b, KeySet()); !errors.Is(err, ErrNotMap) {
		t.Fatalf("expected ErrNotMap, got %v", err)
	}
}

func TestCopyMapExcludingEmptyExclusionCopiesAll(t *testing.T) {
	doc := document.Map(document.Pair("a", document.Uint(1)), document.Pair("b", document.Nil()))
	b := document.NewBuilder()
	if err := CopyMapExcluding(doc, b, nil); err != nil {
		t.Fatalf("copy: %v", err)
	}
	b.CompleteMap()
	root, err := b.Root()
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !root.Equal(doc) {
		t.Fatalf("unexpected copy: %s", root)
	}
}
