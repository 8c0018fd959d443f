package redis

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)

	config := &RedisConfig{Host: s.Host(), Port: uint16(mustPort(t, s.Port()))}
	client := NewClient(config)
	defer client.Close()

	require.NoError(t, Ping(client))
	require.NoError(t, client.Set("k", "v", 0).Err())
	s.CheckGet(t, "k", "v")
}

func TestPingUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	config := &RedisConfig{Host: s.Host(), Port: uint16(mustPort(t, s.Port()))}
	s.Close()

	client := NewClient(config)
	defer client.Close()

	assert.Error(t, Ping(client))
}

func TestDefaults(t *testing.T) {
	config := &RedisConfig{}

	assert.False(t, config.Enabled())
	assert.Equal(t, uint16(6379), config.port())
	assert.Equal(t, "herald", config.Prefix())
}

func mustPort(t *testing.T, port string) int {
	t.Helper()
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}
