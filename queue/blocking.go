// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"sync"
)

// Blocking is an unbounded FIFO whose Pop parks until an item exists.
//
// Blocking supports concurrently access.
type Blocking[T any] struct {
	mu    sync.Mutex
	items []T
	g     gate
}

// NewBlocking allocates and returns a new Blocking queue.
func NewBlocking[T any]() *Blocking[T] {
	return &Blocking[T]{g: newGate()}
}

// Push appends v and wakes one waiter.
func (q *Blocking[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.g.release()
	q.mu.Unlock()
}

// Pop removes and returns the oldest item, blocking until one exists.
func (q *Blocking[T]) Pop() (T, error) {
	return q.PopContext(context.Background())
}

// PopContext is Pop whose wait also ends when ctx is done.
func (q *Blocking[T]) PopContext(ctx context.Context) (T, error) {
	if err := acquire(ctx, &q.mu, &q.g); err != nil {
		var zero T
		return zero, err
	}
	defer q.mu.Unlock()
	return q.shift(), nil
}

func (q *Blocking[T]) shift() T {
	var zero T
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v
}

// Len returns the number of queued items.
func (q *Blocking[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reset releases a parked Pop with ErrCancelled and drops every item.
// It is idempotent.
func (q *Blocking[T]) Reset() {
	q.mu.Lock()
	q.g.reset()
	q.items = nil
	q.mu.Unlock()
}

// BlockingQueue is the discrete-buffer Queue. Put hands the buffer over to
// the queue, it must not be modified afterwards.
type BlockingQueue struct {
	q *Blocking[[]byte]
}

// NewBlockingQueue allocates and returns a new BlockingQueue.
func NewBlockingQueue() *BlockingQueue {
	return &BlockingQueue{q: NewBlocking[[]byte]()}
}

// Put enqueues b. It returns 0 when b is empty or length does not match
// len(b).
func (bq *BlockingQueue) Put(b []byte, length int) int {
	if length <= 0 || len(b) != length {
		return 0
	}
	bq.q.Push(b)
	return length
}

// Take copies the oldest buffer into dst[offset:].
func (bq *BlockingQueue) Take(dst []byte, offset int) (int, error) {
	return bq.TakeContext(context.Background(), dst, offset)
}

// TakeContext is Take whose wait also ends when ctx is done.
func (bq *BlockingQueue) TakeContext(ctx context.Context, dst []byte, offset int) (int, error) {
	q := bq.q
	if err := acquire(ctx, &q.mu, &q.g); err != nil {
		return 0, err
	}
	defer q.mu.Unlock()

	b := q.items[0]
	if offset < 0 || len(b) > len(dst)-offset {
		q.g.restore()
		return 0, ErrDestinationTooSmall
	}
	q.shift()
	return copy(dst[offset:], b), nil
}

// TakeBuf returns the oldest buffer itself.
func (bq *BlockingQueue) TakeBuf() ([]byte, error) {
	return bq.q.Pop()
}

// Len returns the number of queued buffers.
func (bq *BlockingQueue) Len() int {
	return bq.q.Len()
}

// Reset releases a parked Take and drops every buffer.
func (bq *BlockingQueue) Reset() {
	bq.q.Reset()
}
