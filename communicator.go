// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commpump

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/someonegg/gox/syncx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/someonegg/commpump/queue"
)

// FrameWrapper turns the received byte stream into application messages,
// framing.Wrapper implements it.
type FrameWrapper interface {
	SetID(id string)
	AddBytes(p []byte)
	Start()
	Stop()
}

// resetter is implemented by FrameWrappers that can drop a partial frame
// when the connection is replaced.
type resetter interface {
	Reset()
}

// State is the lifecycle state of a Communicator.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Statistics struct {
	// from the link
	ReceivedCount int64
	ReceivedBytes int64

	// to the link
	SentCount int64
	SentBytes int64

	// sends refused by the queue or failed on the link
	DroppedCount int64

	ConnectCount    int64
	DisconnectCount int64
}

// Communicator exchanges byte chunks with one peer over a tcp, udp or serial
// link. Once started it keeps a sender, a receiver, an inactivity monitor and
// a rate meter running, and reconnects as configured.
//
// Communicator supports concurrently access.
type Communicator struct {
	opts options
	base *zap.Logger
	q    queue.Queue
	fw   FrameWrapper
	obs  observers

	logger atomic.Pointer[zap.Logger]
	peer   atomic.Pointer[peer]
	state  atomic.Int32

	// lifecycle
	mu         sync.Mutex
	l          link
	inactivity time.Duration
	sendGap    time.Duration
	quitF      context.CancelFunc
	g          *errgroup.Group

	// outcome of the last run, never held across a wait
	doneMu sync.Mutex
	err    error
	stopD  syncx.DoneChan

	sendMu sync.Mutex
	lastTx atomic.Int64

	// rate window, zeroed on every connect and disconnect
	rxBytes atomic.Int64
	txBytes atomic.Int64

	stat Statistics
}

// New allocates and returns a new Communicator. It stays idle until Init
// is called with a valid address.
func New(opts ...Option) *Communicator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.q == nil {
		o.q = queue.NewRingBuffer(DefaultQueueCapacity)
	}
	if o.panicLogF == nil {
		o.panicLogF = logPanic(o.logger)
	}

	c := &Communicator{
		opts:  o,
		base:  o.logger.With(zap.String("component", "communicator")),
		q:     o.q,
		fw:    o.fw,
		stopD: syncx.NewDoneChan(),
	}
	c.stopD.SetDone()
	c.logger.Store(c.base)
	c.obs.panicLogF = o.panicLogF
	for _, ob := range o.observers {
		c.obs.add(ob)
	}
	return c
}

// logPanic returns the default panic log function.
func logPanic(l *zap.Logger) func(interface{}) {
	return func(v interface{}) {
		const size = 16 << 10
		buf := make([]byte, size)
		buf = buf[:runtime.Stack(buf, false)]
		if l.Core().Enabled(zap.ErrorLevel) {
			l.Error("communicator panic", zap.Any("panic", v), zap.ByteString("stack", buf))
			return
		}
		log.Print("communicator panic: ", v, fmt.Sprintf("\n%s", buf))
	}
}

func (c *Communicator) log() *zap.Logger {
	return c.logger.Load()
}

// Init configures the Communicator without any I/O. An empty id is replaced
// by a generated one. An address that cannot be parsed is logged and leaves
// the Communicator idle, Start is then a no-op.
//
// A positive inactivity forces a disconnect after that long without
// receiving; a positive sendGap is the minimum spacing of queued transmits.
// Init is ignored while running.
func (c *Communicator) Init(address string, persistent bool, id string, inactivity, sendGap time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) == Running {
		c.log().Warn("init ignored while running")
		return
	}

	if id == "" {
		id = uuid.NewString()
	}
	logger := c.base.With(zap.String("id", id))
	c.logger.Store(logger)
	c.peer.Store(nil)
	c.l = nil

	addr, l, err := c.resolve(address)
	if err != nil {
		logger.Error("invalid address, communicator stays idle",
			zap.String("address", address), zap.Error(err))
		return
	}

	c.l = l
	c.inactivity = max(inactivity, 0)
	c.sendGap = max(sendGap, 0)
	c.peer.Store(newPeer(id, addr, persistent))
	if c.fw != nil {
		c.fw.SetID(id)
	}
	logger.Debug("communicator initialized", zap.Stringer("address", addr),
		zap.Bool("persistent", persistent), zap.Duration("inactivity", c.inactivity),
		zap.Duration("send_gap", c.sendGap))
}

func (c *Communicator) resolve(address string) (Address, link, error) {
	if conn := c.opts.conn; conn != nil {
		if address == "" {
			return addressOf(conn.RemoteAddr()), &connLink{conn: conn}, nil
		}
		addr, err := ParseAddress(address)
		return addr, &connLink{conn: conn}, err
	}

	addr, err := ParseAddress(address)
	if err != nil {
		return Address{}, nil, err
	}
	l, err := newLink(addr, &c.opts)
	return addr, l, err
}

// Start launches the working goroutines. It is a no-op when running or idle.
func (c *Communicator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) == Running {
		return
	}
	p := c.peer.Load()
	if p == nil {
		c.log().Warn("start ignored, communicator is idle")
		return
	}

	var ctx context.Context
	ctx, c.quitF = context.WithCancel(context.Background())
	c.g, ctx = errgroup.WithContext(ctx)
	c.doneMu.Lock()
	c.stopD = syncx.NewDoneChan()
	c.err = nil
	c.doneMu.Unlock()
	c.lastTx.Store(0)
	c.resetCounters()

	if c.fw != nil {
		c.fw.Start()
	}

	c.g.Go(c.guard(ctx, c.sending))
	c.g.Go(c.guard(ctx, c.receiving))
	if c.inactivity > 0 {
		c.g.Go(c.guard(ctx, c.monitoring))
	}
	if c.opts.rateInterval > 0 {
		c.g.Go(c.guard(ctx, c.metering))
	}

	c.state.Store(int32(Running))
	c.log().Info("communicator started", zap.Stringer("address", p.addr))
}

// Stop stops the working goroutines and waits for them. Queued frames are
// dropped and the link is closed. Stop must not be called from an Observer
// callback of the same Communicator.
func (c *Communicator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) != Running {
		return
	}

	c.quitF()
	c.q.Reset()
	if h := c.peer.Load().current(); h != nil {
		h.Close()
	}
	err := c.g.Wait()

	if c.fw != nil {
		c.fw.Stop()
	}

	c.state.Store(int32(Stopped))
	c.doneMu.Lock()
	c.err = err
	c.stopD.SetDone()
	c.doneMu.Unlock()
	c.log().Info("communicator stopped", zap.Error(err))
}

// Close stops the Communicator and unsubscribes every Observer.
func (c *Communicator) Close() {
	c.Stop()
	c.obs.clear()
}

// guard runs f, turning a panic into the goroutine's error.
func (c *Communicator) guard(ctx context.Context, f func(context.Context)) func() error {
	return func() (err error) {
		defer func() {
			if e := recover(); e != nil {
				switch v := e.(type) {
				case error:
					err = v
				default:
					err = errUnknownPanic
				}
				if c.opts.panicLogF != nil {
					c.opts.panicLogF(e)
				}
			}
		}()
		f(ctx)
		return nil
	}
}

// Subscribe registers o until the Subscription is cancelled.
func (c *Communicator) Subscribe(o Observer) *Subscription {
	return c.obs.add(o)
}

// SendAsync queues p for the sender goroutine. It returns false when p is
// empty or the queue refuses it. The queue may retain p, the caller must
// not modify it afterwards.
func (c *Communicator) SendAsync(p []byte) bool {
	if len(p) == 0 || len(p) > c.opts.maxFrameSize || c.q.Put(p, len(p)) == 0 {
		atomic.AddInt64(&c.stat.DroppedCount, 1)
		return false
	}
	return true
}

// SendSync transmits p on the calling goroutine. A link fault disconnects
// the peer and returns false.
func (c *Communicator) SendSync(p []byte) bool {
	return c.transmit(p)
}

func (c *Communicator) transmit(b []byte) bool {
	p := c.peer.Load()
	if p == nil {
		return false
	}

	c.sendMu.Lock()
	h := p.current()
	if h == nil {
		c.sendMu.Unlock()
		atomic.AddInt64(&c.stat.DroppedCount, 1)
		return false
	}
	if c.opts.sendTimeout > 0 {
		h.SetWriteDeadline(time.Now().Add(c.opts.sendTimeout))
	}
	n, err := h.Write(b)
	c.lastTx.Store(time.Now().UnixNano())
	c.sendMu.Unlock()

	if err != nil {
		atomic.AddInt64(&c.stat.DroppedCount, 1)
		if errors.Is(err, errNoRemote) {
			return false
		}
		c.log().Warn("send failed", zap.Error(fmt.Errorf("%w: %v", ErrTransportFault, err)))
		c.clientDown(h)
		return false
	}

	c.txBytes.Add(int64(n))
	atomic.AddInt64(&c.stat.SentCount, 1)
	atomic.AddInt64(&c.stat.SentBytes, int64(n))
	return true
}

func (c *Communicator) sending(ctx context.Context) {
	size := DefaultReceiveBufferSize
	if r, ok := c.q.(interface{ Cap() int }); ok {
		size = r.Cap()
	}
	buf := make([]byte, size)

	for {
		if !c.pace(ctx) {
			return
		}

		n, err := c.q.TakeContext(ctx, buf, 0)
		switch {
		case err == nil:
			c.transmit(buf[:n])
		case ctx.Err() != nil:
			return
		case errors.Is(err, queue.ErrDestinationTooSmall):
			if len(buf) >= c.opts.maxFrameSize {
				c.log().Error("queued frame over max frame size, queue reset", zap.Error(err))
				c.q.Reset()
				continue
			}
			buf = make([]byte, min(2*len(buf), c.opts.maxFrameSize))
		}
		// queue.ErrCancelled: reset by a disconnect, keep going.
	}
}

// pace sleeps what is left of sendGap since the last transmit.
func (c *Communicator) pace(ctx context.Context) bool {
	if c.sendGap <= 0 {
		return ctx.Err() == nil
	}
	last := c.lastTx.Load()
	if last == 0 {
		return ctx.Err() == nil
	}
	return sleep(ctx, c.sendGap-time.Since(time.Unix(0, last)))
}

// sleep waits d, it returns false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Communicator) receiving(ctx context.Context) {
	p := c.peer.Load()
	buf := make([]byte, c.opts.rxBufferSize)

	for {
		start := time.Now()
		h, err := c.l.open(ctx)
		if err == nil {
			c.serve(ctx, p, h, buf)
		} else if ctx.Err() == nil {
			c.log().Warn("open failed", zap.Stringer("address", p.addr), zap.Error(err))
		}

		if ctx.Err() != nil || !c.l.reusable() {
			return
		}
		if !c.l.datagram() && !p.persistent {
			return
		}

		wait := c.opts.connectTimeout - time.Since(start)
		if c.l.datagram() {
			wait = c.opts.retryInterval
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

// serve runs one receive cycle on h until it fails or is detached.
func (c *Communicator) serve(ctx context.Context, p *peer, h handle, buf []byte) {
	p.setSource(nil)
	p.attach(h)
	stop := context.AfterFunc(ctx, func() { h.Close() })
	defer stop()
	defer c.clientDown(h)

	if ctx.Err() != nil {
		return
	}
	if !c.l.datagram() || c.inactivity == 0 {
		c.clientUp()
	}

	var ev DataEvent
	for {
		n, from, err := h.Receive(buf)
		if n > 0 || (err == nil && c.l.datagram()) {
			c.received(p, buf[:n], from, &ev)
		}
		if err != nil {
			if ctx.Err() == nil && p.current() == h {
				c.log().Info("receive ended", zap.Error(err))
			}
			return
		}
	}
}

func (c *Communicator) received(p *peer, data []byte, from net.Addr, ev *DataEvent) {
	now := time.Now()
	p.touch(now)
	if from != nil {
		p.setSource(from)
	}
	if c.l.datagram() {
		c.clientUp()
	}

	c.rxBytes.Add(int64(len(data)))
	atomic.AddInt64(&c.stat.ReceivedCount, 1)
	atomic.AddInt64(&c.stat.ReceivedBytes, int64(len(data)))

	ev.IP, ev.Port, ev.Octets = p.source()
	ev.Time, ev.Data, ev.PeerID = now, data, p.id
	c.obs.dataReady(ev)

	if c.fw != nil {
		c.fw.AddBytes(data)
	}
}

func (c *Communicator) clientUp() {
	p := c.peer.Load()
	if !p.up() {
		return
	}
	p.touch(time.Now())
	c.resetCounters()
	if r, ok := c.fw.(resetter); ok {
		r.Reset()
	}

	atomic.AddInt64(&c.stat.ConnectCount, 1)
	c.log().Info("client up", zap.Stringer("address", p.addr))
	c.obs.connectionState(p.id, p.addr, true)
}

// clientDown detaches and closes h. It does nothing when h was already
// detached, so each handle goes down once.
func (c *Communicator) clientDown(h handle) {
	p := c.peer.Load()
	wasUp, ok := p.detach(h)
	if !ok {
		return
	}
	h.Close()
	c.q.Reset()
	c.resetCounters()
	if !wasUp {
		return
	}

	atomic.AddInt64(&c.stat.DisconnectCount, 1)
	c.log().Info("client down", zap.Stringer("address", p.addr))
	c.obs.connectionState(p.id, p.addr, false)
}

func (c *Communicator) resetCounters() {
	c.rxBytes.Store(0)
	c.txBytes.Store(0)
}

func (c *Communicator) monitoring(ctx context.Context) {
	p := c.peer.Load()
	t := time.NewTicker(c.inactivity)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			idle := p.idle(now)
			if !p.isConnected() || idle <= c.inactivity {
				continue
			}
			if h := p.current(); h != nil {
				c.log().Info("inactivity timeout", zap.Duration("idle", idle))
				c.clientDown(h)
			}
		}
	}
}

func (c *Communicator) metering(ctx context.Context) {
	p := c.peer.Load()
	t := time.NewTicker(c.opts.rateInterval)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			secs := now.Sub(last).Seconds()
			last = now
			rx, tx := c.rxBytes.Swap(0), c.txBytes.Swap(0)
			c.obs.dataRate(p.id, mbps(rx, secs), mbps(tx, secs))
		}
	}
}

// mbps converts n bytes over secs seconds to Mbit/s (2^20 bits).
func mbps(n int64, secs float64) float64 {
	if secs <= 0 {
		return 0
	}
	return float64(n) * 8 / 1048576 / secs
}

// StopD returns a done channel, it is signaled while the Communicator is
// not running.
func (c *Communicator) StopD() syncx.DoneChanR {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	return c.stopD.R()
}

// Error returns the error that ended the last run, nil after a clean Stop.
func (c *Communicator) Error() error {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	return c.err
}

// State is Running from Start to Stop, also after a non-persistent link
// has ended.
func (c *Communicator) State() State {
	return State(c.state.Load())
}

// Connected reports whether the peer is connected.
func (c *Communicator) Connected() bool {
	p := c.peer.Load()
	return p != nil && p.isConnected()
}

// ID returns the peer id, "" while idle.
func (c *Communicator) ID() string {
	if p := c.peer.Load(); p != nil {
		return p.id
	}
	return ""
}

// Address returns the peer address, the zero Address while idle.
func (c *Communicator) Address() Address {
	if p := c.peer.Load(); p != nil {
		return p.addr
	}
	return Address{}
}

// Statistics returns a snapshot of the cumulative counters, kept across
// restarts.
func (c *Communicator) Statistics() Statistics {
	return Statistics{
		ReceivedCount:   atomic.LoadInt64(&c.stat.ReceivedCount),
		ReceivedBytes:   atomic.LoadInt64(&c.stat.ReceivedBytes),
		SentCount:       atomic.LoadInt64(&c.stat.SentCount),
		SentBytes:       atomic.LoadInt64(&c.stat.SentBytes),
		DroppedCount:    atomic.LoadInt64(&c.stat.DroppedCount),
		ConnectCount:    atomic.LoadInt64(&c.stat.ConnectCount),
		DisconnectCount: atomic.LoadInt64(&c.stat.DisconnectCount),
	}
}
