package document

import "fmt"

const streaming = -1

type openContainer struct {
	kind     Kind
	declared int
	items    []Value
	entries  []Entry
	key      Value
	hasKey   bool
}

func (c *openContainer) written() int {
	if c.kind == KindArray {
		return len(c.items)
	}
	return len(c.entries)
}

// Builder assembles a document incrementally. Containers opened with
// StartArray/StartMap must receive exactly the declared element count;
// BuildMap opens a map whose count is settled by CompleteMap. The first
// misuse is kept and reported by Err, Root, and Encode; later writes are
// ignored.
type Builder struct {
	stack   []*openContainer
	root    Value
	hasRoot bool
	err     error
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%w: %s", ErrEncode, fmt.Sprintf(format, args...))
	}
}

func (b *Builder) write(v Value) {
	if b.err != nil {
		return
	}
	if len(b.stack) == 0 {
		if b.hasRoot {
			b.fail("second root value %s", v.kind)
			return
		}
		b.root = v
		b.hasRoot = true
		return
	}
	top := b.stack[len(b.stack)-1]
	if top.declared != streaming && top.written() >= top.declared {
		b.fail("%s overflow: declared=%d", top.kind, top.declared)
		return
	}
	switch top.kind {
	case KindArray:
		top.items = append(top.items, v)
	case KindMap:
		if !top.hasKey {
			top.key = v
			top.hasKey = true
			return
		}
		top.entries = append(top.entries, Entry{Key: top.key, Value: v})
		top.key = Missing
		top.hasKey = false
	}
}

func (b *Builder) Nil()                 { b.write(Nil()) }
func (b *Builder) Bool(v bool)          { b.write(Bool(v)) }
func (b *Builder) Uint(v uint64)        { b.write(Uint(v)) }
func (b *Builder) Int(v int64)          { b.write(Int(v)) }
func (b *Builder) Float(v float32)      { b.write(Float(v)) }
func (b *Builder) Double(v float64)     { b.write(Double(v)) }
func (b *Builder) String(s string)      { b.write(String(s)) }
func (b *Builder) StringBytes(p []byte) { b.write(StringBytes(p)) }
func (b *Builder) Binary(p []byte)      { b.write(Binary(p)) }

// Value writes a complete subtree.
func (b *Builder) Value(v Value) {
	if v.kind == KindMissing || v.kind == KindUnsupported {
		b.fail("cannot write %s value", v.kind)
		return
	}
	b.write(v)
}

func (b *Builder) open(kind Kind, declared int) {
	if b.err != nil {
		return
	}
	if len(b.stack) == 0 && b.hasRoot {
		b.fail("second root value %s", kind)
		return
	}
	c := &openContainer{kind: kind, declared: declared}
	if declared > 0 {
		if kind == KindArray {
			c.items = make([]Value, 0, declared)
		} else {
			c.entries = make([]Entry, 0, declared)
		}
	}
	b.stack = append(b.stack, c)
}

func (b *Builder) close(kind Kind, streamed bool) {
	if b.err != nil {
		return
	}
	if len(b.stack) == 0 {
		b.fail("close %s with nothing open", kind)
		return
	}
	top := b.stack[len(b.stack)-1]
	if top.kind != kind {
		b.fail("close %s while %s is open", kind, top.kind)
		return
	}
	if streamed != (top.declared == streaming) {
		b.fail("mismatched %s open/close pair", kind)
		return
	}
	if top.hasKey {
		b.fail("map closed with dangling key")
		return
	}
	if !streamed && top.written() != top.declared {
		b.fail("%s underflow: declared=%d written=%d", kind, top.declared, top.written())
		return
	}
	b.stack = b.stack[:len(b.stack)-1]
	if kind == KindArray {
		b.write(Array(top.items...))
	} else {
		b.write(Map(top.entries...))
	}
}

func (b *Builder) StartArray(n int) {
	if n < 0 {
		b.fail("negative array count %d", n)
		return
	}
	b.open(KindArray, n)
}

func (b *Builder) FinishArray() { b.close(KindArray, false) }

// StartMap opens a map of n key/value pairs.
func (b *Builder) StartMap(n int) {
	if n < 0 {
		b.fail("negative map count %d", n)
		return
	}
	b.open(KindMap, n)
}

func (b *Builder) FinishMap() { b.close(KindMap, false) }

// BuildMap opens a map whose pair count is decided when CompleteMap closes it.
func (b *Builder) BuildMap() { b.open(KindMap, streaming) }

func (b *Builder) CompleteMap() { b.close(KindMap, true) }

// Root returns the finished document.
func (b *Builder) Root() (Value, error) {
	if b.err != nil {
		return Missing, b.err
	}
	if len(b.stack) != 0 {
		return Missing, fmt.Errorf("%w: %d unclosed containers", ErrEncode, len(b.stack))
	}
	if !b.hasRoot {
		return Missing, fmt.Errorf("%w: empty document", ErrEncode)
	}
	return b.root, nil
}

func (b *Builder) Encode(format Format) ([]byte, error) {
	root, err := b.Root()
	if err != nil {
		return nil, err
	}
	return Encode(format, root)
}
