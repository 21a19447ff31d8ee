package commpump

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rs := newRecorder()
	fws := make(chan *fakeWrapper, 4)
	s := &Server{
		Observer: rs,
		NewFrameWrapper: func(id string) FrameWrapper {
			fw := &fakeWrapper{}
			fws <- fw
			return fw
		},
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	rc := newRecorder()
	c := New(WithObserver(rc))
	c.Init("tcp://"+ln.Addr().String(), false, "client", 0, 0)
	c.Start()

	rc.waitState(t, true)
	rs.waitState(t, true)
	require.Len(t, s.Clients(), 1)
	id := s.Clients()[0]
	require.NotNil(t, s.Client(id))

	require.True(t, c.SendSync([]byte("hello")))
	e := rs.waitData(t, time.Second)
	assert.Equal(t, []byte("hello"), e.Data)
	assert.Equal(t, id, e.PeerID)

	assert.Equal(t, 1, s.Broadcast([]byte("hi")))
	assert.Equal(t, []byte("hi"), rc.waitData(t, time.Second).Data)

	fw := <-fws
	assert.Eventually(t, func() bool {
		fw.mu.Lock()
		defer fw.mu.Unlock()
		return fw.id == id && string(fw.data) == "hello"
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	rs.waitState(t, false)
	assert.Eventually(t, func() bool { return len(s.Clients()) == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, <-served, ErrServerClosed)
	assert.True(t, s.StopD().Done())
	assert.NoError(t, s.Close())
}

func TestServerCloseStopsClients(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rs := newRecorder()
	s := &Server{Observer: rs}
	go s.Serve(ln)

	rc := newRecorder()
	c := New(WithObserver(rc))
	c.Init("tcp://"+ln.Addr().String(), false, "client", 0, 0)
	c.Start()
	defer c.Stop()

	rs.waitState(t, true)
	rc.waitState(t, true)

	s.Close()
	rc.waitState(t, false)
	assert.Empty(t, s.Clients())
	assert.ErrorIs(t, s.Serve(ln), ErrServerClosed)
}
