// Package ring implements the fixed-capacity command log at the heart of
// aesdlogd: a FIFO ring of immutable entries with byte-offset lookup across
// entries. It has no lock of its own — callers (chardev.Device) serialize
// access the same way the teacher's backend.Memory leaves locking to its
// caller for anything broader than a single shard.
package ring

import "github.com/aesdlogd/aesdlogd/internal/constants"

// Entry is an immutable, owned byte buffer holding exactly one committed
// command. It is never mutated after Add.
type Entry struct {
	data []byte
}

// NewEntry takes ownership of data and wraps it in an Entry. data must be
// non-empty; the accumulator never finalizes a zero-length command.
func NewEntry(data []byte) *Entry {
	return &Entry{data: data}
}

// Bytes returns the entry's contents. Callers must not mutate the result.
func (e *Entry) Bytes() []byte {
	return e.data
}

// Size returns the number of bytes in the entry.
func (e *Entry) Size() int {
	return len(e.data)
}

// Buffer is the fixed-capacity FIFO ring of committed entries described by
// SPEC_FULL.md §4.1 / spec.md §3-4.1. Capacity is constants.RingCapacity.
type Buffer struct {
	slots     [constants.RingCapacity]*Entry
	inOffs    int
	outOffs   int
	full      bool
	totalSize int
}

// New returns an empty ring buffer.
func New() *Buffer {
	return &Buffer{}
}

// Count returns the number of present entries.
func (b *Buffer) Count() int {
	if b.full {
		return constants.RingCapacity
	}
	return (b.inOffs - b.outOffs + constants.RingCapacity) % constants.RingCapacity
}

// TotalSize returns the sum of sizes of all present entries.
func (b *Buffer) TotalSize() int {
	return b.totalSize
}

// Add inserts entry at the write cursor, evicting and returning the oldest
// entry if the ring is already full. The caller owns the returned entry's
// disposal; Add never fails.
func (b *Buffer) Add(entry *Entry) *Entry {
	var evicted *Entry

	if b.full {
		evicted = b.slots[b.outOffs]
		b.totalSize -= evicted.Size()
		b.outOffs = (b.outOffs + 1) % constants.RingCapacity
	}

	b.slots[b.inOffs] = entry
	b.totalSize += entry.Size()
	b.inOffs = (b.inOffs + 1) % constants.RingCapacity

	if b.inOffs == b.outOffs {
		b.full = true
	}

	return evicted
}

// FindAt walks entries from the oldest forward, subtracting each entry's
// size from offset until it fits within one. It returns that entry and the
// remaining intra-entry offset. ok is false once offset reaches or exceeds
// TotalSize().
func (b *Buffer) FindAt(offset int) (entry *Entry, intraOffset int, ok bool) {
	if offset < 0 || offset >= b.totalSize {
		return nil, 0, false
	}

	count := b.Count()
	idx := b.outOffs
	remaining := offset
	for i := 0; i < count; i++ {
		e := b.slots[idx]
		if remaining < e.Size() {
			return e, remaining, true
		}
		remaining -= e.Size()
		idx = (idx + 1) % constants.RingCapacity
	}
	return nil, 0, false
}

// NthFromOldest returns the entry that is the x-th currently present entry
// counted from the oldest (out_offs), used by the seek protocol. ok is
// false when x >= Count().
func (b *Buffer) NthFromOldest(x int) (entry *Entry, ok bool) {
	if x < 0 || x >= b.Count() {
		return nil, false
	}
	idx := (b.outOffs + x) % constants.RingCapacity
	return b.slots[idx], true
}

// OffsetOfNth returns the absolute byte offset of the start of the x-th
// entry counted from the oldest, i.e. the sum of sizes of entries 0..x-1.
func (b *Buffer) OffsetOfNth(x int) int {
	count := b.Count()
	if x < 0 {
		x = 0
	}
	if x > count {
		x = count
	}
	sum := 0
	idx := b.outOffs
	for i := 0; i < x; i++ {
		sum += b.slots[idx].Size()
		idx = (idx + 1) % constants.RingCapacity
	}
	return sum
}

// ForEach visits every present slot in storage order (not FIFO order). It
// is intended for teardown cleanup, where order does not matter.
func (b *Buffer) ForEach(f func(*Entry)) {
	for _, e := range b.slots {
		if e != nil {
			f(e)
		}
	}
}

// ReadAt copies up to len(p) bytes starting at the absolute byte offset
// off across entries in FIFO order, returning the number of bytes copied.
// It returns 0 when off is at or past TotalSize().
func (b *Buffer) ReadAt(p []byte, off int) int {
	entry, intra, ok := b.FindAt(off)
	if !ok {
		return 0
	}

	n := 0
	// Recompute the FIFO index of `entry` by walking again; FindAt already
	// validated off, so this walk cannot fail to find the same entry.
	// count ends as the number of present entries from idx to the newest.
	count := b.Count()
	idx := b.outOffs
	for count > 0 && b.slots[idx] != entry {
		idx = (idx + 1) % constants.RingCapacity
		count--
	}

	for n < len(p) {
		data := entry.Bytes()[intra:]
		copied := copy(p[n:], data)
		n += copied
		if copied < len(data) {
			break
		}
		idx = (idx + 1) % constants.RingCapacity
		count--
		if count <= 0 {
			break
		}
		entry = b.slots[idx]
		intra = 0
	}
	return n
}
