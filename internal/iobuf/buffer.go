// Package iobuf implements the growable byte buffer shared by a
// Connection's receive and send queues.
//
// A Buffer tracks three regions of a single backing array: a consumed
// prefix (bytes already handed to a parser or flushed to the socket), an
// unconsumed/pending middle (receive bytes not yet parsed, or send bytes
// not yet written), and a reserve tail used to amortize growth. This
// mirrors the mg_iobuf discipline of the C library mgoose is modeled on,
// adapted from the teacher's NUMA buffer pool (core/buffer) down to a
// single-node, single-threaded growable slice since the owner-thread
// model makes per-NUMA slab pooling unnecessary (see DESIGN.md).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iobuf

// defaultGrow is the minimum number of bytes a grow step adds.
const defaultGrow = 2048

// Buffer is a growable byte region with a consumed/unconsumed split.
// Not safe for concurrent use; owned by a single Connection on the owner
// thread.
type Buffer struct {
	buf  []byte // backing array, len(buf) == capacity
	head int    // consumed prefix length
	size int    // unconsumed/pending length, starting at head
}

// New returns an empty Buffer with the given initial capacity.
func New(initialCap int) *Buffer {
	if initialCap < 0 {
		initialCap = 0
	}
	return &Buffer{buf: make([]byte, initialCap)}
}

// Len returns the number of unconsumed (recv) or pending (send) bytes.
func (b *Buffer) Len() int { return b.size }

// Cap returns the total backing capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Bytes returns a view of the unconsumed/pending region. The slice aliases
// the Buffer's storage and is only valid until the next mutating call.
func (b *Buffer) Bytes() []byte { return b.buf[b.head : b.head+b.size] }

// Peek returns up to n bytes from the unconsumed region without consuming
// them. n<0 means "all".
func (b *Buffer) Peek(n int) []byte {
	avail := b.Bytes()
	if n < 0 || n > len(avail) {
		n = len(avail)
	}
	return avail[:n]
}

// Append grows the buffer and copies data into the pending/unconsumed tail.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.reserve(len(data))
	copy(b.buf[b.head+b.size:], data)
	b.size += len(data)
}

// Reserve ensures at least n additional bytes are writable past the
// current unconsumed region without reallocating on the next Append,
// and returns that tail as a slice for direct (e.g. socket read) writes.
// The caller must follow up with Commit(n) to account for bytes written.
func (b *Buffer) Reserve(n int) []byte {
	b.reserve(n)
	return b.buf[b.head+b.size : b.head+b.size+n]
}

// Commit extends the pending region by n bytes after a direct write into
// the slice returned by Reserve.
func (b *Buffer) Commit(n int) {
	b.size += n
}

// reserve grows the backing array, compacting the consumed prefix away
// first, so that at least n more bytes are writable after head+size.
func (b *Buffer) reserve(n int) {
	if b.head+b.size+n <= len(b.buf) {
		return
	}
	// Compact: drop the consumed prefix before growing.
	if b.head > 0 {
		copy(b.buf, b.buf[b.head:b.head+b.size])
		b.head = 0
	}
	need := b.size + n
	if need <= len(b.buf) {
		return
	}
	newCap := len(b.buf)
	if newCap == 0 {
		newCap = defaultGrow
	}
	for newCap < need {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf[:b.size])
	b.buf = grown
}

// Consume drops n bytes from the front of the unconsumed region (a parser
// advancing past a decoded message, or a writer advancing past flushed
// send bytes). Truncating the buffer this way never leaves a dangling
// view: callers that hand out message views must invalidate them in the
// same step (see the handler invocation contract in package mgoose).
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > b.size {
		n = b.size
	}
	b.head += n
	b.size -= n
	if b.size == 0 {
		b.head = 0
	}
}

// Reset discards all buffered bytes without releasing the backing array.
func (b *Buffer) Reset() {
	b.head = 0
	b.size = 0
}

// Release frees the backing array. Safe zero values are returned by Len
// (0) and Bytes/Peek (nil) afterward.
func (b *Buffer) Release() {
	b.buf = nil
	b.head = 0
	b.size = 0
}
