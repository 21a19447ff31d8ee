// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"sync"

	"github.com/someonegg/commpump/internal/wire"
)

// cursor is the position state of a ring. wrapped is true exactly when
// writePos has cycled past the end while readPos has not yet followed.
type cursor struct {
	writePos int
	readPos  int
	wrapped  bool
}

// used returns the number of occupied bytes in a ring of capacity c.
func (k *cursor) used(c int) int {
	if !k.wrapped {
		return k.writePos - k.readPos
	}
	return c - k.readPos + k.writePos
}

// RingBuffer is a fixed-capacity Queue. Each entry is stored as a 4-byte
// little-endian length followed by the payload, and entries are committed and
// consumed whole.
//
// Put may be called from many goroutines, Take from exactly one.
type RingBuffer struct {
	mu     sync.Mutex
	buf    []byte
	k      cursor
	frames gate
}

// NewRingBuffer allocates a RingBuffer of the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < wire.HeaderSize {
		capacity = wire.HeaderSize
	}
	return &RingBuffer{
		buf:    make([]byte, capacity),
		frames: newGate(),
	}
}

// Cap returns the capacity in bytes, headers included.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Free returns the number of unused bytes.
func (r *RingBuffer) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.k.used(len(r.buf))
}

// Len returns the number of queued frames.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames.n
}

// Put stores b[:length] as one frame. It returns 0, leaving the ring
// untouched, when length+4 bytes are not free. Empty frames are refused.
func (r *RingBuffer) Put(b []byte, length int) int {
	if length <= 0 || length > len(b) || length > wire.MaxLen {
		return 0
	}

	var hdr [wire.HeaderSize]byte
	wire.PutLen(hdr[:], length)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf)-r.k.used(len(r.buf)) < length+wire.HeaderSize {
		return 0
	}
	r.write(hdr[:])
	r.write(b[:length])
	r.frames.release()
	return length
}

// write copies p at writePos, continuing at the start of the array when p
// straddles the physical end. Space must have been checked.
func (r *RingBuffer) write(p []byte) {
	n := copy(r.buf[r.k.writePos:], p)
	r.k.writePos += n
	if r.k.writePos == len(r.buf) {
		r.k.writePos = 0
		r.k.wrapped = true
	}
	if n < len(p) {
		r.k.writePos = copy(r.buf, p[n:])
	}
}

// peek copies len(p) bytes starting at readPos+skip without consuming them.
func (r *RingBuffer) peek(p []byte, skip int) {
	pos := (r.k.readPos + skip) % len(r.buf)
	n := copy(p, r.buf[pos:])
	if n < len(p) {
		copy(p[n:], r.buf)
	}
}

// discard advances readPos by n bytes.
func (r *RingBuffer) discard(n int) {
	r.k.readPos += n
	if r.k.readPos >= len(r.buf) {
		r.k.readPos -= len(r.buf)
		r.k.wrapped = false
	}
}

// Take blocks until a frame is available and copies its payload into
// dst[offset:]. When the payload does not fit, it returns
// ErrDestinationTooSmall and the frame stays queued.
func (r *RingBuffer) Take(dst []byte, offset int) (int, error) {
	return r.TakeContext(context.Background(), dst, offset)
}

// TakeContext is Take whose wait also ends when ctx is done.
func (r *RingBuffer) TakeContext(ctx context.Context, dst []byte, offset int) (int, error) {
	if err := acquire(ctx, &r.mu, &r.frames); err != nil {
		return 0, err
	}
	defer r.mu.Unlock()

	var hdr [wire.HeaderSize]byte
	r.peek(hdr[:], 0)
	n := wire.Len(hdr[:])

	if offset < 0 || n > len(dst)-offset {
		r.frames.restore()
		return 0, ErrDestinationTooSmall
	}

	r.peek(dst[offset:offset+n], wire.HeaderSize)
	r.discard(wire.HeaderSize + n)
	return n, nil
}

// Reset releases a parked Take with ErrCancelled, discards every frame and
// rewinds the cursor.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	r.frames.reset()
	r.k = cursor{}
	r.mu.Unlock()
}
