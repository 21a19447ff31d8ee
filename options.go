// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/someonegg/commpump/queue"
)

const (
	DefaultQueueCapacity     = 65536
	DefaultConnectTimeout    = 5 * time.Second
	DefaultDatagramRetry     = 2 * time.Second
	DefaultSendTimeout       = 2 * time.Second
	DefaultRateInterval      = time.Second
	DefaultReceiveBufferSize = 65536
	DefaultMaxFrameSize      = 16 * 1024 * 1024
)

type options struct {
	logger         *zap.Logger
	fw             FrameWrapper
	q              queue.Queue
	conn           net.Conn
	connectTimeout time.Duration
	retryInterval  time.Duration
	sendTimeout    time.Duration
	rateInterval   time.Duration
	rxBufferSize   int
	maxFrameSize   int
	multicastTTL   int
	panicLogF      func(interface{})
	observers      []Observer
}

// Option configures a Communicator.
type Option func(*options)

// WithLogger sets the logger, zap.NewNop by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFrameWrapper feeds every received chunk to fw, and drives its
// Start/Stop and identity.
func WithFrameWrapper(fw FrameWrapper) Option {
	return func(o *options) { o.fw = fw }
}

// WithQueue sets the outbound queue, a RingBuffer of DefaultQueueCapacity
// by default.
func WithQueue(q queue.Queue) Option {
	return func(o *options) { o.q = q }
}

// WithConn makes the Communicator serve an already accepted connection
// instead of dialing. The Communicator owns conn and never reconnects.
func WithConn(conn net.Conn) Option {
	return func(o *options) { o.conn = conn }
}

// WithConnectTimeout bounds one stream connect attempt. A failed attempt
// waits out the rest of it before the next one.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithRetryInterval sets the pause between datagram bind cycles.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryInterval = d }
}

// WithSendTimeout bounds one transmit, zero disables the write deadline.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) { o.sendTimeout = d }
}

// WithRateInterval sets the DataRate period.
func WithRateInterval(d time.Duration) Option {
	return func(o *options) { o.rateInterval = d }
}

// WithReceiveBufferSize sets the size of the receive buffer, which bounds
// one received chunk.
func WithReceiveBufferSize(n int) Option {
	return func(o *options) { o.rxBufferSize = n }
}

// WithMaxFrameSize bounds the frames SendAsync accepts.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithMulticastTTL sets the TTL of multicast datagrams.
func WithMulticastTTL(ttl int) Option {
	return func(o *options) { o.multicastTTL = ttl }
}

// WithPanicLogFunc sets the function that logs recovered panics.
func WithPanicLogFunc(f func(panicV interface{})) Option {
	return func(o *options) { o.panicLogF = f }
}

// WithObserver subscribes o for the Communicator's lifetime.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observers = append(opts.observers, o) }
}

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		connectTimeout: DefaultConnectTimeout,
		retryInterval:  DefaultDatagramRetry,
		sendTimeout:    DefaultSendTimeout,
		rateInterval:   DefaultRateInterval,
		rxBufferSize:   DefaultReceiveBufferSize,
		maxFrameSize:   DefaultMaxFrameSize,
		multicastTTL:   DefaultMulticastTTL,
	}
}
