// Package buf implements the contiguous circular byte buffer that
// every mux and connection layer reads and writes through, plus the
// global wait queue callers park on when the pool has nothing left to
// give them.
package buf

import "errors"

// ErrNoRoom is returned by the put family when the buffer cannot fit
// the requested bytes without growing, which this buffer never does.
var ErrNoRoom = errors.New("buf: no room")

// Buffer is a fixed-capacity ring: head is the read offset, data is the
// number of live bytes, both counted modulo len(area).
type Buffer struct {
	area []byte
	head int
	data int
}

// New wraps area as an empty buffer.
func New(area []byte) *Buffer {
	return &Buffer{area: area}
}

// Size returns the buffer's total capacity.
func (b *Buffer) Size() int { return len(b.area) }

// Len returns the number of live bytes.
func (b *Buffer) Len() int { return b.data }

// IsEmpty reports whether the buffer holds no data.
func (b *Buffer) IsEmpty() bool { return b.data == 0 }

// IsFull reports whether the buffer has no spare room.
func (b *Buffer) IsFull() bool { return b.data == len(b.area) }

// Room returns the number of bytes that can still be appended.
func (b *Buffer) Room() int { return len(b.area) - b.data }

// Reset empties the buffer without touching its backing array.
func (b *Buffer) Reset() { b.head, b.data = 0, 0 }

// Area exposes the raw backing array, for code (pool release, realign)
// that needs to hand it to another owner.
func (b *Buffer) Area() []byte { return b.area }

func (b *Buffer) wrap(i int) int {
	n := len(b.area)
	if n == 0 {
		return 0
	}
	if i >= n {
		return i - n
	}
	if i < 0 {
		return i + n
	}
	return i
}

// BPut appends p to the buffer's tail, wrapping as needed. Returns
// ErrNoRoom and appends nothing if p doesn't fit.
func (b *Buffer) BPut(p []byte) (int, error) {
	if len(p) > b.Room() {
		return 0, ErrNoRoom
	}
	tail := b.wrap(b.head + b.data)
	n := copy(b.area[tail:], p)
	if n < len(p) {
		copy(b.area[0:], p[n:])
	}
	b.data += len(p)
	return len(p), nil
}

// BGet reads up to len(p) bytes from the head, removing them.
func (b *Buffer) BGet(p []byte) int {
	n := b.BPeek(p, 0)
	b.BDel(n)
	return n
}

// BPeek reads up to len(p) bytes starting offset bytes past the head,
// without removing anything.
func (b *Buffer) BPeek(p []byte, offset int) int {
	avail := b.data - offset
	if avail <= 0 {
		return 0
	}
	want := len(p)
	if want > avail {
		want = avail
	}
	start := b.wrap(b.head + offset)
	n := copy(p, b.area[start:])
	if n < want {
		n += copy(p[n:want], b.area[0:])
	}
	return want
}

// BAdd advances data by n, as if n bytes were written directly into
// the tail region returned by a zero-copy writer.
func (b *Buffer) BAdd(n int) { b.data += n }

// BDel consumes n bytes from the head without copying them anywhere.
func (b *Buffer) BDel(n int) {
	if n > b.data {
		n = b.data
	}
	b.head = b.wrap(b.head + n)
	b.data -= n
}

// Contig returns the longest contiguous run of live bytes starting at
// the head, i.e. the slice a caller may read without wraparound
// handling (nil when the buffer is empty).
func (b *Buffer) Contig() []byte {
	if b.data == 0 {
		return nil
	}
	end := b.head + b.data
	if end <= len(b.area) {
		return b.area[b.head:end]
	}
	return b.area[b.head:]
}

// ContigSpace returns the contiguous free region starting right after
// the tail, i.e. where a zero-copy writer may write before needing to
// wrap.
func (b *Buffer) ContigSpace() []byte {
	if b.Room() == 0 {
		return nil
	}
	tail := b.wrap(b.head + b.data)
	if tail+b.Room() <= len(b.area) {
		return b.area[tail : tail+b.Room()]
	}
	return b.area[tail:]
}

// BSlowRealign copies the buffer's live bytes into scratch (which must
// be at least len(b.area) long) so that, after the copy, data starts
// at headOffset within b.area — producing one contiguous run with
// headOffset bytes of free space ahead of it. This is the buffer
// equivalent of HAProxy's b_slow_realign: a full memmove via a bounce
// buffer, used only off the hot path (e.g. before a zero-copy swap
// that requires contiguity).
func (b *Buffer) BSlowRealign(scratch []byte, headOffset int) {
	if b.data == 0 {
		b.head = headOffset
		return
	}
	n := b.BPeek(scratch[headOffset:headOffset+b.data], 0)
	copy(b.area, scratch[:headOffset+n])
	b.head = headOffset
}

// BIstPut appends an IST-style (pointer+length) string view, returning
// a negative value if there isn't enough room instead of partially
// writing — mirroring b_istput's "all or nothing" contract so callers
// can retry once more room frees up.
func (b *Buffer) BIstPut(s []byte) int {
	if len(s) > b.Room() {
		return -1
	}
	n, _ := b.BPut(s)
	return n
}

// Swap exchanges the backing areas (and head/data state) of two
// buffers in O(1), used by the H2 mux's zero-copy DATA send path.
func Swap(a, b *Buffer) {
	a.area, b.area = b.area, a.area
	a.head, b.head = b.head, a.head
	a.data, b.data = b.data, a.data
}
