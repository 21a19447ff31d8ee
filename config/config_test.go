package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/someonegg/commpump"
	"github.com/someonegg/commpump/framing"
	"github.com/someonegg/commpump/queue"
)

const sample = `
log:
  level: debug
  format: console
metrics:
  addr: ":9100"
endpoints:
  - id: plc-1
    address: tcp://10.0.0.5:502
    persistent: true
    inactivity: 5s
    send_gap: 50ms
    connect_timeout: 2s
  - id: radar
    address: udp://239.1.1.1:5000::5000
    queue:
      kind: blocking
    framing:
      codec: length
      max_length: 4096
      async_delivery: true
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commpump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "commpump", cfg.Metrics.Namespace)

	require.Len(t, cfg.Endpoints, 2)
	e := cfg.Endpoints[0]
	assert.Equal(t, "plc-1", e.ID)
	assert.True(t, e.Persistent)
	assert.Equal(t, 5*time.Second, e.Inactivity)
	assert.Equal(t, 50*time.Millisecond, e.SendGap)
	assert.Equal(t, 2*time.Second, e.ConnectTimeout)
	assert.Equal(t, QueueConfig{Kind: "ring", Capacity: commpump.DefaultQueueCapacity}, e.Queue)
	assert.Equal(t, "none", e.Framing.Codec)

	r := cfg.Endpoints[1]
	assert.Equal(t, "blocking", r.Queue.Kind)
	assert.Equal(t, FramingConfig{Codec: "length", MaxLength: 4096, AsyncDelivery: true}, r.Framing)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COMMPUMP_LOG_LEVEL", "warn")
	t.Setenv("COMMPUMP_METRICS_ADDR", "127.0.0.1:9200")

	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9200", cfg.Metrics.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "log:\n  colour: red\n"))
	assert.ErrorContains(t, err, "colour")

	_, err = Load(writeFile(t, "endpoints:\n  - id: a\n    inactivity: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Endpoints = []EndpointConfig{
		{ID: "a", Address: "tcp://h:1", Queue: QueueConfig{Kind: "ring", Capacity: 64}, Framing: FramingConfig{Codec: "none"}},
		{ID: "a", Address: "ftp://h:1", Queue: QueueConfig{Kind: "stack"}, Framing: FramingConfig{Codec: "json"}},
		{ID: "b", Address: "udp://h:1", SendGap: -time.Second, Queue: QueueConfig{Kind: "ring"}, Framing: FramingConfig{Codec: "length"}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"log.level",
		"log.format",
		`endpoints[1]: duplicate id "a"`,
		"endpoints[1]: commpump: invalid address",
		`unknown queue kind "stack"`,
		`unknown framing codec "json"`,
		"endpoints[2]: negative duration",
		"endpoints[2]: queue.capacity must be positive",
	} {
		assert.ErrorContains(t, err, want)
	}
	assert.ErrorIs(t, err, commpump.ErrInvalidAddress)
}

func TestLogBuild(t *testing.T) {
	l, err := LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stdout"}}.Build()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	_, err = LogConfig{Level: "nope"}.Build()
	assert.Error(t, err)
}

func TestEndpointWiring(t *testing.T) {
	e := EndpointConfig{Queue: QueueConfig{Kind: "ring", Capacity: 64}, Framing: FramingConfig{Codec: "none"}}
	assert.Len(t, e.Options(nil), 1)
	assert.Len(t, e.Options(queue.NewBlockingQueue()), 1)
	assert.Nil(t, e.NewFrameWrapper(nil, zap.NewNop()))

	e.ConnectTimeout = time.Second
	e.RetryInterval = time.Second
	e.SendTimeout = time.Second
	assert.Len(t, e.Options(nil), 4)

	e.Framing = FramingConfig{Codec: "length", MaxLength: 8}
	got := make(chan []byte, 1)
	w := e.NewFrameWrapper(framing.HandlerFunc[[]byte](func(id string, m []byte) { got <- m }), zap.NewNop())
	require.NotNil(t, w)

	b, err := w.Data2BytesSync([]byte("hi"))
	require.NoError(t, err)
	w.AddBytes(b)
	assert.Equal(t, []byte("hi"), <-got)

	_, err = w.Data2BytesSync(make([]byte, 9))
	assert.ErrorIs(t, err, framing.ErrMalformed)
}
