package v4

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAck(t *testing.T, lease, t1, t2 uint32) *Message {
	t.Helper()
	m := testOffer(t, 1)
	m.Options = nil
	require.NoError(t, m.Options.Add(OptionDHCPMessageType, []byte{byte(MessageTypeAck)}))
	require.NoError(t, m.Options.Add(OptionServerIdentifier, []byte{192, 168, 1, 1}))
	require.NoError(t, m.Options.Add(OptionIPAddressLeaseTime, secondsOption(lease)))
	if t1 > 0 {
		opt := (&OptRenewalTime{RenewalTime: t1}).Option()
		require.NoError(t, m.Options.Add(opt.Code, opt.Data))
	}
	if t2 > 0 {
		opt := (&OptRebindingTime{RebindingTime: t2}).Option()
		require.NoError(t, m.Options.Add(opt.Code, opt.Data))
	}
	return m
}

func secondsOption(s uint32) []byte {
	return []byte{byte(s >> 24), byte(s >> 16), byte(s >> 8), byte(s)}
}

func TestNewLease(t *testing.T) {
	ack := testAck(t, 3600, 1000, 3000)
	require.NoError(t, ack.Options.Add(OptionSubnetMask, []byte{255, 255, 255, 0}))
	require.NoError(t, ack.Options.Add(OptionRouter, []byte{192, 168, 1, 1}))
	require.NoError(t, ack.Options.Add(OptionDomainNameServer, []byte{1, 1, 1, 1, 8, 8, 8, 8}))
	require.NoError(t, ack.Options.Add(OptionDomainName, []byte("example.net")))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := NewLease(ack, now)
	require.NoError(t, err)

	assert.Equal(t, net.IPv4(192, 168, 1, 100).To4(), l.IPAddr)
	assert.Equal(t, net.IPv4Mask(255, 255, 255, 0), l.IPMask)
	assert.Equal(t, net.IPv4(192, 168, 1, 1).To4(), l.ServerID)
	assert.Equal(t, time.Hour, l.Timeouts.Lease)
	assert.Equal(t, 1000*time.Second, l.Timeouts.T1RenewalTime)
	assert.Equal(t, 3000*time.Second, l.Timeouts.T2RebindingTime)
	assert.Equal(t, []net.IP{net.IPv4(192, 168, 1, 1).To4()}, l.Options.Routers)
	assert.Equal(t, []net.IP{net.IPv4(1, 1, 1, 1).To4(), net.IPv4(8, 8, 8, 8).To4()}, l.Options.DomainNameServers)
	assert.Equal(t, "example.net", l.Options.DomainName)
	assert.Equal(t, "192.168.1.100/24", l.Network().String())

	assert.Equal(t, 1000*time.Second, l.TimeUntilRenew(now))
	assert.Equal(t, 2000*time.Second, l.TimeUntilRebind(now.Add(1000*time.Second)))
	assert.Equal(t, -time.Second, l.TimeUntilExpiry(now.Add(3601*time.Second)))
	assert.True(t, l.Expired(now.Add(time.Hour)))
	assert.False(t, l.Expired(now.Add(time.Hour-time.Second)))
}

func TestNewLeaseDoesNotAliasAck(t *testing.T) {
	ack := testAck(t, 3600, 0, 0)
	require.NoError(t, ack.Options.Add(OptionSubnetMask, []byte{255, 255, 0, 0}))

	l, err := NewLease(ack, time.Now())
	require.NoError(t, err)

	for _, opt := range ack.Options {
		for i := range opt.Data {
			opt.Data[i] = 0
		}
	}
	assert.Equal(t, net.IPv4(192, 168, 1, 1).To4(), l.ServerID)
	assert.Equal(t, net.IPv4Mask(255, 255, 0, 0), l.IPMask)
	assert.Equal(t, time.Hour, l.Timeouts.Lease)
}

func TestTimerOptions(t *testing.T) {
	renew := (&OptRenewalTime{RenewalTime: 1800}).Option()
	assert.Equal(t, OptionRenewTimeValue, renew.Code)
	parsed, err := ParseOptRenewalTime(renew.Data)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, parsed.Duration())

	rebind := (&OptRebindingTime{RebindingTime: 3150}).Option()
	assert.Equal(t, OptionRebindingTimeValue, rebind.Code)
	parsedRebind, err := ParseOptRebindingTime(rebind.Data)
	require.NoError(t, err)
	assert.Equal(t, 3150*time.Second, parsedRebind.Duration())

	_, err = ParseOptRenewalTime([]byte{1, 2})
	assert.Error(t, err)
}

func TestNewLeaseDefaultsMask(t *testing.T) {
	l, err := NewLease(testAck(t, 60, 0, 0), time.Now())
	require.NoError(t, err)
	assert.Equal(t, net.IPv4Mask(255, 255, 255, 0), l.IPMask)
}

func TestNewLeaseRejects(t *testing.T) {
	noLeaseTime := testAck(t, 60, 0, 0)
	noLeaseTime.Options = noLeaseTime.Options[:2]

	noAddress := testAck(t, 60, 0, 0)
	noAddress.YourIP = net.IPv4zero.To4()

	tests := []struct {
		name string
		ack  *Message
		want error
	}{
		{name: "not an ack", ack: testOffer(t, 1), want: ErrNotAcknowledge},
		{name: "no lease time", ack: noLeaseTime, want: ErrNoLeaseTime},
		{name: "zero lease time", ack: testAck(t, 0, 0, 0), want: ErrZeroLeaseTime},
		{name: "no address", ack: noAddress, want: ErrNoAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLease(tt.ack, time.Now())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClampTimers(t *testing.T) {
	tests := []struct {
		name           string
		lease, t1, t2  time.Duration
		wantT1, wantT2 time.Duration
	}{
		{name: "server values", lease: 100 * time.Second, t1: 30 * time.Second, t2: 60 * time.Second, wantT1: 30 * time.Second, wantT2: 60 * time.Second},
		{name: "defaults", lease: 800 * time.Second, wantT1: 400 * time.Second, wantT2: 700 * time.Second},
		{name: "t1 beyond lease", lease: 100 * time.Second, t1: 200 * time.Second, t2: 90 * time.Second, wantT1: 50 * time.Second, wantT2: 90 * time.Second},
		{name: "t2 before t1", lease: 800 * time.Second, t1: 500 * time.Second, t2: 100 * time.Second, wantT1: 500 * time.Second, wantT2: 700 * time.Second},
		{name: "t1 past default t2", lease: 8 * time.Second, t1: 7 * time.Second, wantT1: 7 * time.Second, wantT2: 7500 * time.Millisecond},
		{name: "one second lease", lease: time.Second, wantT1: 500 * time.Millisecond, wantT2: 875 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t1, t2 := clampTimers(tt.lease, tt.t1, tt.t2)
			assert.Equal(t, tt.wantT1, t1)
			assert.Equal(t, tt.wantT2, t2)
		})
	}
}

func TestClampTimersOrdering(t *testing.T) {
	for lease := uint32(1); lease < 2000; lease += 7 {
		for _, t1 := range []uint32{0, 1, lease / 3, lease - 1, lease, lease + 5} {
			for _, t2 := range []uint32{0, 1, t1, lease / 2, lease - 1, lease, lease * 2} {
				l := time.Duration(lease) * time.Second
				gotT1, gotT2 := clampTimers(l, time.Duration(t1)*time.Second, time.Duration(t2)*time.Second)
				require.True(t, 0 < gotT1 && gotT1 < gotT2 && gotT2 < l,
					"lease=%d t1=%d t2=%d -> %v %v", lease, t1, t2, gotT1, gotT2)
			}
		}
	}
}
