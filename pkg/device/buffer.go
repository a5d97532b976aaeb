package device

import "fmt"

// complex64Size is the size of one buffer element in bytes.
const complex64Size = 8

// Buffer is a complex64 array owned by a context. Kernels access it through
// Data; hosts move data in and out with Upload and Download.
type Buffer struct {
	ctx  *Context
	data []complex64
}

// Alloc allocates a zeroed buffer of n elements, charging 8·n bytes to the
// context budget.
func (c *Context) Alloc(n int) (*Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("device: negative buffer length %d", n)
	}
	if err := c.Reserve(int64(n) * complex64Size); err != nil {
		return nil, err
	}
	return &Buffer{ctx: c, data: make([]complex64, n)}, nil
}

// Len returns the number of elements, 0 after Free.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the size of the buffer in bytes.
func (b *Buffer) Bytes() int64 { return int64(len(b.data)) * complex64Size }

// Data exposes the buffer contents to kernels.
func (b *Buffer) Data() []complex64 { return b.data }

// Upload copies src into the buffer. len(src) must equal Len.
func (b *Buffer) Upload(src []complex64) error {
	if b.data == nil {
		return ErrFreed
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("%w: upload of %d elements into buffer of %d", ErrLengthMismatch, len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

// Download copies the buffer into dst. len(dst) must equal Len.
func (b *Buffer) Download(dst []complex64) error {
	if b.data == nil {
		return ErrFreed
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("%w: download of buffer of %d elements into %d", ErrLengthMismatch, len(b.data), len(dst))
	}
	copy(dst, b.data)
	return nil
}

// Zero clears the buffer.
func (b *Buffer) Zero() {
	clear(b.data)
}

// Free releases the buffer's memory back to its context. Calling Free more
// than once, or on a nil buffer, is a no-op.
func (b *Buffer) Free() {
	if b == nil || b.data == nil {
		return
	}
	b.ctx.Release(b.Bytes())
	b.data = nil
}
