package commpump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in   string
		want Address
	}{
		{"tcp://10.0.0.1:502", Address{Scheme: TCP, Host: "10.0.0.1", Port: 502}},
		{"tcp://host:80:127.0.0.1:4000", Address{Scheme: TCP, Host: "host", Port: 80, BindHost: "127.0.0.1", BindPort: 4000}},
		{"udp://127.0.0.1:9002:127.0.0.1:9001", Address{Scheme: UDP, Host: "127.0.0.1", Port: 9002, BindHost: "127.0.0.1", BindPort: 9001}},
		{"udp://@239.1.1.1:5000::5000", Address{Scheme: UDP, Host: "239.1.1.1", Port: 5000, BindPort: 5000}},
		{"udp://1.2.3.4:7:0.0.0.0", Address{Scheme: UDP, Host: "1.2.3.4", Port: 7, BindHost: "0.0.0.0"}},
		{"UDP://:0::6000", Address{Scheme: UDP, BindPort: 6000}},
		{"serial:///dev/ttyUSB0:115200", Address{Scheme: Serial, Device: "/dev/ttyUSB0", Baud: 115200}},
		{"serial://COM1:9600", Address{Scheme: Serial, Device: "COM1", Baud: 9600}},
	}
	for _, c := range cases {
		got, err := ParseAddress(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseAddressInvalid(t *testing.T) {
	for _, s := range []string{
		"",
		"10.0.0.1:80",
		"http://x:80",
		"tcp://x",
		"tcp://:80",
		"tcp://x:0",
		"tcp://x:80:y",
		"tcp://x:99999",
		"udp://x:port",
		"udp://x:1:y:z",
		"udp://a:1:b:2:c",
		"serial://COM1",
		"serial://COM1:fast",
		"serial://:9600",
	} {
		_, err := ParseAddress(s)
		assert.ErrorIs(t, err, ErrInvalidAddress, s)
	}
}

func TestAddressHelpers(t *testing.T) {
	a, err := ParseAddress("udp://192.168.1.20:9002:0.0.0.0:9001")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20:9002", a.HostPort())
	assert.Equal(t, "0.0.0.0:9001", a.BindHostPort())
	assert.Equal(t, [4]byte{192, 168, 1, 20}, a.Octets())
	assert.Equal(t, "udp://192.168.1.20:9002:0.0.0.0:9001", a.String())

	b, _ := ParseAddress("tcp://example.org:80")
	assert.Equal(t, "", b.BindHostPort())
	assert.Equal(t, [4]byte{}, b.Octets())
	assert.Equal(t, "tcp://example.org:80", b.String())
}
