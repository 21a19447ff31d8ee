// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue provides the producer/consumer byte queues used between the
// application and a communicator's sender loop.
//
// Two implementations share the Queue contract:
//   BlockingQueue  a FIFO of discrete buffers
//   RingBuffer     a fixed-capacity arena storing [4-byte length][payload] entries
//
// Both park a single consumer in Take until a frame is available, and both
// release a parked consumer with ErrCancelled when Reset is called.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrCancelled is returned by a Take or Pop interrupted by Reset.
	ErrCancelled = errors.New("queue: wait cancelled")
	// ErrDestinationTooSmall is returned when the pending frame does not fit
	// the destination. The frame stays queued.
	ErrDestinationTooSmall = errors.New("queue: destination too small")
	// ErrCapacityExceeded describes a refused Put. Put reports it by
	// returning 0; the value exists for callers that log the condition.
	ErrCapacityExceeded = errors.New("queue: capacity exceeded")
)

// Queue is the contract between producers and the single consumer.
type Queue interface {
	// Put enqueues b[:length] and returns the accepted payload length, or 0
	// when the frame is refused. Empty frames are always refused. A refused
	// Put leaves the queue unchanged.
	Put(b []byte, length int) int
	// Take blocks until a frame is available, copies it into dst[offset:] and
	// returns its length.
	Take(dst []byte, offset int) (int, error)
	// TakeContext is Take whose wait also ends, with ErrCancelled, when ctx
	// is done.
	TakeContext(ctx context.Context, dst []byte, offset int) (int, error)
	// Reset releases a parked Take and discards every queued frame.
	Reset()
}

// gate counts committed frames and parks consumers until one is available.
// Every field is guarded by the owner's mutex.
type gate struct {
	n      int
	ready  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newGate() gate {
	ctx, cancel := context.WithCancel(context.Background())
	return gate{
		ready:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (g *gate) release() {
	g.n++
	g.notify()
}

func (g *gate) notify() {
	select {
	case g.ready <- struct{}{}:
	default:
	}
}

// reset cancels the current generation and starts an empty one.
func (g *gate) reset() {
	g.cancel()
	*g = newGate()
}

// acquire takes one permit from g. It must be called with mu unlocked and
// returns with mu locked on success.
func acquire(ctx context.Context, mu sync.Locker, g *gate) error {
	mu.Lock()
	gen := g.ctx
	for g.n == 0 {
		ready := g.ready
		mu.Unlock()

		select {
		case <-ready:
		case <-gen.Done():
			return ErrCancelled
		case <-ctx.Done():
			return ErrCancelled
		}

		mu.Lock()
		if gen.Err() != nil {
			mu.Unlock()
			return ErrCancelled
		}
	}
	g.n--
	if g.n > 0 {
		g.notify()
	}
	return nil
}

// restore gives back a permit taken by acquire. mu must be held.
func (g *gate) restore() {
	g.release()
}
