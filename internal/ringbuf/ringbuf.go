// Package ringbuf provides a fixed-capacity byte FIFO with contiguous
// read/write slices, used to mediate backpressure between an SSH channel
// and a spawned Git helper process without a second, unbounded queue.
package ringbuf

// Buffer is a fixed-capacity circular byte queue. It is not safe for
// concurrent use; callers serialize access themselves (one writer goroutine,
// one reader goroutine, coordinated externally).
type Buffer struct {
	data  []byte
	start int // index of the first unread byte
	size  int // number of unread bytes currently stored
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of unread bytes currently stored.
func (b *Buffer) Len() int { return b.size }

// Free returns the number of bytes that can still be written before the
// buffer is full.
func (b *Buffer) Free() int { return len(b.data) - b.size }

// Empty reports whether there is no unread data.
func (b *Buffer) Empty() bool { return b.size == 0 }

// Full reports whether there is no free capacity.
func (b *Buffer) Full() bool { return b.size == len(b.data) }

// WritableSlice returns the next contiguous region callers may write into.
// It never wraps around the end of the backing array — when the free space
// straddles the end, only the tail portion up to the array boundary is
// returned, and the slice must be re-requested after AdvanceWrite to reach
// the remainder. Returns a zero-length slice when Full.
func (b *Buffer) WritableSlice() []byte {
	if b.Full() {
		return nil
	}
	writeAt := (b.start + b.size) % len(b.data)
	end := len(b.data)
	if writeAt < b.start {
		end = b.start
	}
	return b.data[writeAt:end]
}

// AdvanceWrite records that n bytes (previously written into the slice
// returned by the most recent WritableSlice call) are now part of the
// buffer's unread contents. Panics if n exceeds the length of that slice.
func (b *Buffer) AdvanceWrite(n int) {
	if n < 0 || n > len(b.WritableSlice()) {
		panic("ringbuf: AdvanceWrite out of range")
	}
	b.size += n
}

// ReadableSlice returns the next contiguous region of unread bytes. As with
// WritableSlice, it never wraps — a reader that drains past the array
// boundary must call ReadableSlice again after AdvanceRead.
func (b *Buffer) ReadableSlice() []byte {
	if b.Empty() {
		return nil
	}
	end := b.start + b.size
	if end > len(b.data) {
		end = len(b.data)
	}
	return b.data[b.start:end]
}

// AdvanceRead marks n bytes (previously consumed from the slice returned by
// the most recent ReadableSlice call) as no longer part of the buffer.
// Panics if n exceeds the length of that slice.
func (b *Buffer) AdvanceRead(n int) {
	if n < 0 || n > len(b.ReadableSlice()) {
		panic("ringbuf: AdvanceRead out of range")
	}
	b.start = (b.start + n) % len(b.data)
	b.size -= n
}

// Write copies as much of p as fits into the free space, wrapping across
// the array boundary if necessary, and returns the number of bytes copied.
// It never blocks and never grows the buffer — callers must check the
// returned count against len(p) to detect a full buffer.
func (b *Buffer) Write(p []byte) int {
	n := 0
	for n < len(p) {
		dst := b.WritableSlice()
		if len(dst) == 0 {
			break
		}
		c := copy(dst, p[n:])
		b.AdvanceWrite(c)
		n += c
	}
	return n
}

// Read copies as much of the unread contents into p as fits, wrapping
// across the array boundary if necessary, and returns the number of bytes
// copied.
func (b *Buffer) Read(p []byte) int {
	n := 0
	for n < len(p) {
		src := b.ReadableSlice()
		if len(src) == 0 {
			break
		}
		c := copy(p[n:], src)
		b.AdvanceRead(c)
		n += c
	}
	return n
}

// Reset discards all unread content without deallocating the backing array.
func (b *Buffer) Reset() {
	b.start = 0
	b.size = 0
}
