package configurator

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhubb22/herald/dhcp/v4"
)

func testLease() *v4.Lease {
	l := &v4.Lease{
		IPAddr:    net.IPv4(192, 168, 7, 20).To4(),
		IPMask:    net.IPv4Mask(255, 255, 255, 0),
		ServerID:  net.IPv4(192, 168, 7, 1).To4(),
		GrantedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	l.Timeouts.Lease = time.Hour
	l.Timeouts.T1RenewalTime = 30 * time.Minute
	l.Timeouts.T2RebindingTime = 52*time.Minute + 30*time.Second
	l.Options.Routers = []net.IP{net.IPv4(192, 168, 7, 1).To4()}
	l.Options.DomainNameServers = []net.IP{net.IPv4(9, 9, 9, 9).To4()}
	l.Options.DomainName = "home.arpa"
	return l
}

func TestNewLeasePayload(t *testing.T) {
	p := NewLeasePayload(EventBound, "eth0", testLease())

	assert.Equal(t, LeasePayload{
		Event:        EventBound,
		Interface:    "eth0",
		Address:      "192.168.7.20",
		PrefixLength: 24,
		ServerID:     "192.168.7.1",
		Routers:      []string{"192.168.7.1"},
		DNSServers:   []string{"9.9.9.9"},
		DomainName:   "home.arpa",
		LeaseSeconds: 3600,
		T1Seconds:    1800,
		T2Seconds:    3150,
		GrantedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC),
	}, p)
}

func TestRedis(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	r := Redis{Client: client, Prefix: "herald", Logger: zerolog.Nop()}

	payload, err := r.Lookup("eth0")
	require.NoError(t, err)
	assert.Nil(t, payload)

	require.NoError(t, r.Apply("eth0", testLease()))
	assert.True(t, s.Exists("herald;v4;eth0"))
	assert.Equal(t, time.Hour, s.TTL("herald;v4;eth0"))

	payload, err = r.Lookup("eth0")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "192.168.7.20", payload.Address)
	assert.Equal(t, EventBound, payload.Event)

	require.NoError(t, r.Revoke("eth0", testLease()))
	assert.False(t, s.Exists("herald;v4;eth0"))
}

func TestWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []LeasePayload
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var p LeasePayload
		assert.NoError(t, json.Unmarshal(body, &p))

		mu.Lock()
		auth = r.Header.Get("Authorization")
		received = append(received, p)
		mu.Unlock()

		if p.Interface == "broken0" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	w := NewWebhook(&WebhookConfig{URL: server.URL, Token: "s3cret"}, zerolog.Nop())

	require.NoError(t, w.Apply("eth0", testLease()))
	require.NoError(t, w.Revoke("eth0", testLease()))
	assert.Error(t, w.Apply("broken0", testLease()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
	assert.Equal(t, EventBound, received[0].Event)
	assert.Equal(t, EventRevoked, received[1].Event)
	assert.Equal(t, "Token s3cret", auth)
}

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATS(t *testing.T) {
	pub := &recordingPublisher{}
	n := newNATS(pub, "", zerolog.Nop())

	require.NoError(t, n.Apply("eth0", testLease()))
	require.NoError(t, n.Revoke("eth0", testLease()))

	assert.Equal(t, []string{"herald.leases.bound", "herald.leases.revoked"}, pub.subjects)

	var p LeasePayload
	require.NoError(t, json.Unmarshal(pub.payloads[0], &p))
	assert.Equal(t, "eth0", p.Interface)

	pub.err = errors.New("nats: connection closed")
	assert.ErrorContains(t, n.Apply("eth0", testLease()), "herald.leases.bound")
}

type failing struct {
	applied, revoked int
}

func (f *failing) Apply(string, *v4.Lease) error {
	f.applied++
	return errors.New("apply failed")
}

func (f *failing) Revoke(string, *v4.Lease) error {
	f.revoked++
	return errors.New("revoke failed")
}

func TestChainRunsEveryConfigurator(t *testing.T) {
	first, second := &failing{}, &failing{}
	chain := Chain{first, Log{Logger: zerolog.Nop()}, second}

	err := chain.Apply("eth0", testLease())
	assert.ErrorContains(t, err, "apply failed")
	err = chain.Revoke("eth0", testLease())
	assert.ErrorContains(t, err, "revoke failed")

	assert.Equal(t, 1, first.applied)
	assert.Equal(t, 1, second.applied)
	assert.Equal(t, 1, second.revoked)

	assert.NoError(t, Chain{Log{Logger: zerolog.Nop()}}.Apply("eth0", testLease()))
}
