package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyClientSource(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1":   "loopback",
		"::1":         "loopback",
		"172.17.0.5":  "docker_bridge",
		"192.168.1.4": "private",
		"10.1.2.3":    "private",
		"8.8.8.8":     "public",
	}
	for in, want := range cases {
		assert.Equal(t, want, ClassifyClientSource(net.ParseIP(in)), in)
	}
	assert.Equal(t, "unknown", ClassifyClientSource(nil))
}
