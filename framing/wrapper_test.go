package framing

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"pgregory.net/rapid"
)

type collector struct {
	mu  sync.Mutex
	ids []string
	ms  [][]byte
	c   chan struct{}
}

func newCollector() *collector {
	return &collector{c: make(chan struct{}, 1024)}
}

func (c *collector) FrameAvailable(id string, m []byte) {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.ms = append(c.ms, m)
	c.mu.Unlock()
	c.c <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) [][]byte {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.c:
		case <-time.After(time.Second):
			t.Fatalf("got %d messages, want %d", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.ms...)
}

func encodeAll(t *testing.T, ms ...string) []byte {
	var b []byte
	for _, m := range ms {
		var err error
		b, err = LengthPrefixed{}.Encode(b, []byte(m))
		require.NoError(t, err)
	}
	return b
}

func TestWrapperManyPerChunk(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{}, h)
	w.SetID("peer-1")

	w.AddBytes(encodeAll(t, "a", "bb", "ccc"))

	ms := h.wait(t, 3)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}, ms)
	assert.Equal(t, []string{"peer-1", "peer-1", "peer-1"}, h.ids)
	assert.Equal(t, 0, w.Buffered())
}

func TestWrapperPartialFrames(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{}, h)

	b := encodeAll(t, "hello", "world")
	w.AddBytes(b[:2])
	w.AddBytes(b[2:7])
	assert.Empty(t, h.ms)
	assert.Equal(t, 7, w.Buffered())

	w.AddBytes(b[7:12])
	w.AddBytes(b[12:])

	ms := h.wait(t, 2)
	assert.Equal(t, "hello", string(ms[0]))
	assert.Equal(t, "world", string(ms[1]))
}

func TestWrapperCorruptDataDiscarded(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{MaxLength: 16}, h)

	w.AddBytes([]byte{0xff, 0xff, 0xff, 0x7f, 1, 2, 3})
	assert.Equal(t, 0, w.Buffered())

	// The stream recovers on the next well formed chunk.
	w.AddBytes(encodeAll(t, "ok"))
	ms := h.wait(t, 1)
	assert.Equal(t, "ok", string(ms[0]))
}

func TestWrapperMaxBuffered(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{}, h, WithMaxBuffered(8))

	w.AddBytes([]byte{100, 0, 0, 0, 1, 2, 3, 4, 5})
	assert.Equal(t, 0, w.Buffered())

	// The rest of the oversized frame is skipped, not parsed as headers.
	w.AddBytes(append(bytes.Repeat([]byte{7}, 95), encodeAll(t, "ok")...))
	ms := h.wait(t, 1)
	assert.Equal(t, [][]byte{[]byte("ok")}, ms)
	assert.Equal(t, 0, w.Buffered())
}

func feedChunks(w *Wrapper[[]byte], b []byte, chunk int) {
	for len(b) > 0 {
		n := min(chunk, len(b))
		w.AddBytes(b[:n])
		b = b[n:]
	}
}

func TestWrapperLargeFrameDefaultLimit(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{}, h)

	payload := make([]byte, 20<<20)
	b, err := LengthPrefixed{}.Encode(nil, payload)
	require.NoError(t, err)
	feedChunks(w, b, 1<<20)

	ms := h.wait(t, 1)
	require.Len(t, ms, 1)
	assert.Len(t, ms[0], len(payload))
	assert.Equal(t, 0, w.Buffered())
}

func TestWrapperFrameJustUnderMaxLength(t *testing.T) {
	c := LengthPrefixed{MaxLength: DefaultMaxBuffered + 1<<20}
	h := newCollector()
	w := New[[]byte](c, h)

	payload := bytes.Repeat([]byte{0xab}, c.MaxLength-1)
	b, err := c.Encode(nil, payload)
	require.NoError(t, err)
	b, err = c.Encode(b, []byte("next"))
	require.NoError(t, err)
	feedChunks(w, b, 1<<20)

	ms := h.wait(t, 2)
	require.Len(t, ms, 2)
	assert.Equal(t, payload, ms[0])
	assert.Equal(t, "next", string(ms[1]))
}

func TestWrapperOverLimitFrameSkipped(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{}, h, WithMaxBuffered(64<<10))

	b, err := LengthPrefixed{}.Encode(nil, make([]byte, 1<<20))
	require.NoError(t, err)
	b = append(b, encodeAll(t, "ok")...)
	feedChunks(w, b, 16<<10)

	ms := h.wait(t, 1)
	assert.Equal(t, [][]byte{[]byte("ok")}, ms)
	assert.Equal(t, 0, w.Buffered())
}

func TestWrapperHandlerPanic(t *testing.T) {
	var logged interface{}
	w := New[[]byte](LengthPrefixed{}, HandlerFunc[[]byte](func(id string, m []byte) {
		panic("boom")
	}), WithPanicLogFunc(func(v interface{}) { logged = v }))

	w.AddBytes(encodeAll(t, "x"))
	assert.Equal(t, "boom", logged)
}

func TestWrapperAsyncDelivery(t *testing.T) {
	release := make(chan struct{})
	got := make(chan string, 4)
	w := New[[]byte](LengthPrefixed{}, HandlerFunc[[]byte](func(id string, m []byte) {
		<-release
		got <- string(m)
	}), WithAsyncDelivery())
	w.Start()
	defer w.Stop()

	// A blocked handler must not stall AddBytes.
	done := make(chan struct{})
	go func() {
		w.AddBytes(encodeAll(t, "one", "two"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AddBytes blocked by the handler")
	}

	close(release)
	assert.Equal(t, "one", <-got)
	assert.Equal(t, "two", <-got)
}

func TestWrapperAsyncDecode(t *testing.T) {
	h := newCollector()
	w := New[[]byte](LengthPrefixed{}, h, WithAsyncDecode(1024))
	w.Start()

	b := encodeAll(t, "x", "yy", "zzz")
	for i := range b {
		w.AddBytes(b[i : i+1])
	}

	ms := h.wait(t, 3)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("yy"), []byte("zzz")}, ms)

	w.Stop()
	w.Stop()
}

func TestWrapperStartStopIdempotent(t *testing.T) {
	w := New[[]byte](LengthPrefixed{}, newCollector(), WithAsyncDelivery(), WithAsyncDecode(64))
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
	w.Start()
	w.Stop()
}

func TestWrapperProto(t *testing.T) {
	got := make(chan *wrapperspb.BytesValue, 2)
	c := NewProto(func() *wrapperspb.BytesValue { return &wrapperspb.BytesValue{} })
	w := New[*wrapperspb.BytesValue](c, HandlerFunc[*wrapperspb.BytesValue](func(id string, m *wrapperspb.BytesValue) {
		got <- m
	}))

	b1, err := w.Data2BytesSync(wrapperspb.Bytes([]byte{1, 2, 3}))
	require.NoError(t, err)
	b2, err := w.Data2BytesSync(wrapperspb.Bytes([]byte{4}))
	require.NoError(t, err)

	w.AddBytes(append(b1, b2...))
	assert.True(t, proto.Equal(wrapperspb.Bytes([]byte{1, 2, 3}), <-got))
	assert.True(t, proto.Equal(wrapperspb.Bytes([]byte{4}), <-got))
}

// However the stream is chunked, the same messages come out in order.
func TestWrapperChunkingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msgs := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 40), 0, 20).Draw(rt, "msgs")

		var stream []byte
		for _, m := range msgs {
			stream, _ = LengthPrefixed{}.Encode(stream, m)
		}

		var out [][]byte
		w := New[[]byte](LengthPrefixed{}, HandlerFunc[[]byte](func(id string, m []byte) {
			out = append(out, m)
		}))

		for len(stream) > 0 {
			n := rapid.IntRange(1, len(stream)).Draw(rt, "chunk")
			w.AddBytes(stream[:n])
			stream = stream[n:]
		}

		if len(out) != len(msgs) {
			rt.Fatalf("decoded %d messages, want %d", len(out), len(msgs))
		}
		for i := range msgs {
			if !bytes.Equal(out[i], msgs[i]) {
				rt.Fatalf("message %d = %v, want %v", i, out[i], msgs[i])
			}
		}
		if w.Buffered() != 0 {
			rt.Fatalf("%d bytes left", w.Buffered())
		}
	})
}
