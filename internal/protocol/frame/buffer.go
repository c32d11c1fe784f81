package frame

// Buffer is a grow-only receive buffer retained across messages.
// It is never shrunk; steady-state message sizes stop reallocating.
type Buffer struct {
	data []byte
}

// Grow returns a slice of exactly n bytes backed by the buffer,
// reallocating only when n exceeds the current capacity.
func (b *Buffer) Grow(n int) []byte {
	if n > cap(b.data) {
		b.data = make([]byte, n)
	}
	return b.data[:n]
}

// Cap reports the retained capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Release drops the retained storage.
func (b *Buffer) Release() {
	b.data = nil
}
