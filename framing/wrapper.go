// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package framing turns the raw byte stream received by a communicator into
// discrete application messages, and messages back into bytes.
//
// A Wrapper buffers whatever AddBytes is given, repeatedly asks its Codec for
// one message, and hands every decoded message to a Handler. A single receive
// may hold zero, one or several messages, or end in the middle of one.
package framing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"

	"github.com/someonegg/commpump/queue"
)

// Handler is the message processor.
//
// FrameAvailable runs on the receiving goroutine unless asynchronous delivery
// is enabled, it should return as soon as possible.
type Handler[T any] interface {
	FrameAvailable(id string, m T)
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as message handlers.
type HandlerFunc[T any] func(id string, m T)

// FrameAvailable calls f(id, m).
func (f HandlerFunc[T]) FrameAvailable(id string, m T) {
	f(id, m)
}

// DefaultMaxBuffered bounds the undecoded bytes a Wrapper keeps. A codec
// implementing Sizer raises it to its MaxFrameSize.
const DefaultMaxBuffered = 16 * 1024 * 1024

type options struct {
	logger        *zap.Logger
	asyncDelivery bool
	decodeCap     int
	maxBuffered   int
	panicLogF     func(interface{})
}

// Option configures a Wrapper.
type Option func(*options)

// WithLogger sets the logger, zap.NewNop by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAsyncDelivery routes decoded messages through a queue drained by one
// delivery goroutine, so a slow Handler never stalls the receiver.
func WithAsyncDelivery() Option {
	return func(o *options) { o.asyncDelivery = true }
}

// WithAsyncDecode makes AddBytes only copy the chunk into a ring buffer of
// the given capacity; one decode goroutine does the rest. Chunks that do not
// fit are dropped and logged.
func WithAsyncDecode(capacity int) Option {
	return func(o *options) { o.decodeCap = capacity }
}

// WithMaxBuffered bounds the bytes kept while waiting for a message to
// complete. Exceeding it discards the buffered stream, and with a Sizer
// codec the rest of the frame in progress too.
func WithMaxBuffered(n int) Option {
	return func(o *options) { o.maxBuffered = n }
}

// WithPanicLogFunc sets the function that logs a recovered Handler panic.
func WithPanicLogFunc(f func(panicV interface{})) Option {
	return func(o *options) { o.panicLogF = f }
}

// Wrapper is a FrameWrapper over Codec c.
//
// Wrapper supports concurrently access.
type Wrapper[T any] struct {
	c      Codec[T]
	h      Handler[T]
	opts   options
	logger *zap.Logger

	mu      sync.Mutex
	id      string
	pending []byte
	// bytes of an over-limit frame still to arrive and be dropped
	skip int

	runMu   sync.Mutex
	quitF   context.CancelFunc
	fireQ   *queue.Blocking[T]
	rawQ    *queue.RingBuffer
	fireD   syncx.DoneChan
	decodeD syncx.DoneChan
}

// New allocates and returns a new Wrapper.
func New[T any](c Codec[T], h Handler[T], opts ...Option) *Wrapper[T] {
	o := options{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxBuffered <= 0 {
		o.maxBuffered = DefaultMaxBuffered
		if s, ok := c.(Sizer); ok {
			o.maxBuffered = max(o.maxBuffered, s.MaxFrameSize())
		}
	}
	if o.panicLogF == nil {
		o.panicLogF = logPanic(o.logger)
	}

	w := &Wrapper[T]{
		c:      c,
		h:      h,
		opts:   o,
		logger: o.logger.With(zap.String("component", "framewrapper")),
	}
	if o.asyncDelivery {
		w.fireQ = queue.NewBlocking[T]()
	}
	if o.decodeCap > 0 {
		w.rawQ = queue.NewRingBuffer(o.decodeCap)
	}
	return w
}

func logPanic(l *zap.Logger) func(interface{}) {
	return func(v interface{}) {
		const size = 16 << 10
		buf := make([]byte, size)
		buf = buf[:runtime.Stack(buf, false)]
		if l.Core().Enabled(zap.ErrorLevel) {
			l.Error("framewrapper panic", zap.Any("panic", v), zap.ByteString("stack", buf))
			return
		}
		log.Print("framewrapper panic: ", v, fmt.Sprintf("\n%s", buf))
	}
}

// SetID sets the peer identity passed to the Handler.
func (w *Wrapper[T]) SetID(id string) {
	w.mu.Lock()
	w.id = id
	w.mu.Unlock()
}

// ID returns the peer identity.
func (w *Wrapper[T]) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// Start launches the delivery and decode goroutines that the options ask
// for. It is a no-op for a synchronous Wrapper and when already started.
func (w *Wrapper[T]) Start() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.quitF != nil {
		return
	}

	var ctx context.Context
	ctx, w.quitF = context.WithCancel(context.Background())

	if w.fireQ != nil {
		w.fireD = syncx.NewDoneChan()
		go w.delivering(ctx, w.fireD)
	}
	if w.rawQ != nil {
		w.decodeD = syncx.NewDoneChan()
		go w.decoding(ctx, w.decodeD)
	}
}

// Stop stops the goroutines launched by Start and waits for them. Messages
// still queued for delivery are dropped.
func (w *Wrapper[T]) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.quitF == nil {
		return
	}
	w.quitF()
	w.quitF = nil

	if w.rawQ != nil {
		w.rawQ.Reset()
		<-w.decodeD
	}
	if w.fireQ != nil {
		w.fireQ.Reset()
		<-w.fireD
	}
}

// AddBytes feeds bytes received from the peer. p is not retained.
func (w *Wrapper[T]) AddBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	if w.rawQ != nil {
		if w.rawQ.Put(p, len(p)) == 0 {
			w.logger.Warn("decode queue full, chunk dropped",
				zap.Int("bytes", len(p)), zap.Error(queue.ErrCapacityExceeded))
		}
		return
	}
	w.decode(p)
}

// Buffered returns the number of received bytes not yet decoded.
func (w *Wrapper[T]) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Reset drops the undecoded bytes, e.g. when the connection is replaced.
func (w *Wrapper[T]) Reset() {
	w.mu.Lock()
	w.pending = w.pending[:0]
	w.skip = 0
	w.mu.Unlock()
}

func (w *Wrapper[T]) decode(p []byte) {
	w.mu.Lock()
	id := w.id

	if w.skip > 0 {
		n := min(w.skip, len(p))
		w.skip -= n
		p = p[n:]
	}

	w.pending = append(w.pending, p...)
	var out []T
	off := 0
	for off < len(w.pending) {
		m, n, err := w.c.Decode(w.pending[off:])
		if err != nil {
			if errors.Is(err, ErrIncomplete) {
				break
			}
			if n <= 0 {
				n = len(w.pending) - off
			}
			w.logger.Warn("corrupt data discarded",
				zap.String("id", id), zap.Int("bytes", n), zap.Error(err))
			off += n
			continue
		}
		if n <= 0 {
			// A codec consuming nothing would spin forever.
			w.logger.Error("codec consumed no bytes", zap.String("id", id))
			off = len(w.pending)
			break
		}
		off += n
		out = append(out, m)
	}

	rest := copy(w.pending, w.pending[off:])
	w.pending = w.pending[:rest]
	if len(w.pending) > w.opts.maxBuffered {
		if s, ok := w.c.(Sizer); ok {
			if n, ok := s.FrameSize(w.pending); ok && n > len(w.pending) {
				w.skip = n - len(w.pending)
			}
		}
		w.logger.Warn("undecoded data over limit, discarded",
			zap.String("id", id), zap.Int("bytes", len(w.pending)), zap.Int("skip", w.skip))
		w.pending = w.pending[:0]
	}
	w.mu.Unlock()

	for _, m := range out {
		w.fire(id, m)
	}
}

func (w *Wrapper[T]) fire(id string, m T) {
	if w.fireQ != nil {
		w.fireQ.Push(m)
		return
	}
	w.deliver(id, m)
}

func (w *Wrapper[T]) deliver(id string, m T) {
	defer func() {
		if e := recover(); e != nil && w.opts.panicLogF != nil {
			w.opts.panicLogF(e)
		}
	}()
	w.h.FrameAvailable(id, m)
}

func (w *Wrapper[T]) delivering(ctx context.Context, done syncx.DoneChan) {
	defer done.SetDone()

	for {
		m, err := w.fireQ.PopContext(ctx)
		if err != nil {
			return
		}
		w.deliver(w.ID(), m)
	}
}

func (w *Wrapper[T]) decoding(ctx context.Context, done syncx.DoneChan) {
	defer done.SetDone()

	buf := make([]byte, w.rawQ.Cap())
	for {
		n, err := w.rawQ.TakeContext(ctx, buf, 0)
		if err != nil {
			return
		}
		w.decode(buf[:n])
	}
}

// Data2BytesSync serializes m into a new slice owned by the caller.
func (w *Wrapper[T]) Data2BytesSync(m T) ([]byte, error) {
	return w.c.Encode(nil, m)
}
