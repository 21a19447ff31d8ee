package commpump

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder is an Observer collecting every event.
type recorder struct {
	mu     sync.Mutex
	states []bool
	rates  [][2]float64

	stateC chan bool
	dataC  chan DataEvent
	rateC  chan [2]float64
}

func newRecorder() *recorder {
	return &recorder{
		stateC: make(chan bool, 64),
		dataC:  make(chan DataEvent, 1024),
		rateC:  make(chan [2]float64, 1024),
	}
}

func (r *recorder) DataReady(e *DataEvent) {
	ev := *e
	ev.Data = append([]byte(nil), e.Data...)
	r.dataC <- ev
}

func (r *recorder) ConnectionState(id string, addr Address, connected bool) {
	r.mu.Lock()
	r.states = append(r.states, connected)
	r.mu.Unlock()
	r.stateC <- connected
}

func (r *recorder) DataRate(id string, rx, tx float64) {
	select {
	case r.rateC <- [2]float64{rx, tx}:
	default:
	}
}

func (r *recorder) history() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func (r *recorder) waitState(t *testing.T, want bool) {
	t.Helper()
	select {
	case got := <-r.stateC:
		require.Equal(t, want, got, "connection state")
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection state %v", want)
	}
}

func (r *recorder) waitData(t *testing.T, d time.Duration) DataEvent {
	t.Helper()
	select {
	case e := <-r.dataC:
		return e
	case <-time.After(d):
		t.Fatal("no data")
	}
	return DataEvent{}
}

// fakeLink opens in-memory handles.
type fakeLink struct {
	dgram   bool
	handles chan *fakeHandle
}

func newFakeLink(dgram bool) *fakeLink {
	return &fakeLink{dgram: dgram, handles: make(chan *fakeHandle, 64)}
}

func (l *fakeLink) open(ctx context.Context) (handle, error) {
	h := &fakeHandle{in: make(chan []byte, 64), closed: make(chan struct{})}
	l.handles <- h
	return h, nil
}

func (l *fakeLink) datagram() bool { return l.dgram }
func (l *fakeLink) reusable() bool { return true }

func (l *fakeLink) next(t *testing.T) *fakeHandle {
	t.Helper()
	select {
	case h := <-l.handles:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("no handle opened")
	}
	return nil
}

type fakeHandle struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	writes   []time.Time
	written  [][]byte
	writeErr error
}

func (h *fakeHandle) Receive(p []byte) (int, net.Addr, error) {
	select {
	case b := <-h.in:
		return copy(p, b), nil, nil
	case <-h.closed:
		return 0, nil, io.EOF
	}
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return 0, h.writeErr
	}
	select {
	case <-h.closed:
		return 0, errors.New("closed")
	default:
	}
	h.writes = append(h.writes, now)
	h.written = append(h.written, append([]byte(nil), p...))
	return len(p), nil
}

func (h *fakeHandle) SetWriteDeadline(t time.Time) error { return nil }

func (h *fakeHandle) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *fakeHandle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *fakeHandle) sent() ([]time.Time, [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.writes...), append([][]byte(nil), h.written...)
}

// newFake returns an initialized Communicator running over l.
func newFake(t *testing.T, l link, persistent bool, inactivity, gap time.Duration, opts ...Option) *Communicator {
	t.Helper()
	c := New(opts...)
	c.Init("tcp://fake:1", persistent, "fake", inactivity, gap)
	require.NotEmpty(t, c.ID())
	c.l = l
	return c
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}
