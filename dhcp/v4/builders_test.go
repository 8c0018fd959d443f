package v4

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientIdentity(t *testing.T) {
	id, err := NewClientIdentity("eth0", testMAC)
	require.NoError(t, err)
	assert.Equal(t, append([]byte{1}, testMAC...), id.ClientID)
	assert.Equal(t, "eth0", id.Interface)

	_, err = NewClientIdentity("ib0", make(net.HardwareAddr, 20))
	assert.Error(t, err)
}

func TestNewDiscover(t *testing.T) {
	m, err := NewDiscover(testIdentity(t), 0x1234, WithHostname("node-1"), WithRequestedOptions(OptionNTPServers, OptionRouter))
	require.NoError(t, err)

	assert.Equal(t, OpCodeBootRequest, m.Op)
	assert.Equal(t, uint32(0x1234), m.XID)
	assert.True(t, m.IsBroadcast())
	assert.Equal(t, net.IPv4zero.To4(), m.ClientIP)
	assert.Equal(t, MessageTypeDiscover, m.MessageType())

	clientID, ok := m.Options.Get(OptionClientIdentifier)
	require.True(t, ok)
	assert.Equal(t, append([]byte{1}, testMAC...), clientID)

	hostname, ok := m.Options.Get(OptionHostName)
	require.True(t, ok)
	assert.Equal(t, "node-1", string(hostname))

	prl, ok := m.Options.Get(OptionParameterRequestList)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 3, 6, 15, 51, 58, 59, 42}, prl)

	assert.False(t, m.Options.Has(OptionRequestedIPAddress))
	assert.False(t, m.Options.Has(OptionServerIdentifier))
}

func TestNewRequest(t *testing.T) {
	offer := testOffer(t, 0x99)

	m, err := NewRequest(testIdentity(t), 0x99, offer)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x99), m.XID)
	assert.True(t, m.IsBroadcast())
	assert.Equal(t, MessageTypeRequest, m.MessageType())
	assert.Equal(t, net.IPv4zero.To4(), m.ClientIP)

	requested, ok := m.Options.RequestedIPAddress()
	require.True(t, ok)
	assert.Equal(t, offer.YourIP, requested)

	sid, ok := m.Options.ServerIdentifier()
	require.True(t, ok)
	assert.Equal(t, net.IPv4(192, 168, 1, 1).To4(), sid)
}

func TestNewRequestRejectsIncompleteOffer(t *testing.T) {
	noAddress := testOffer(t, 1)
	noAddress.YourIP = net.IPv4zero.To4()

	noServer := testOffer(t, 1)
	noServer.Options = noServer.Options[:1]

	for _, offer := range []*Message{noAddress, noServer} {
		_, err := NewRequest(testIdentity(t), 1, offer)
		assert.ErrorIs(t, err, ErrIncompleteOffer)
	}
}

func TestNewRenewal(t *testing.T) {
	lease := &Lease{IPAddr: net.IPv4(10, 0, 0, 5), ServerID: net.IPv4(10, 0, 0, 1)}

	m, err := NewRenewal(testIdentity(t), 7, lease)
	require.NoError(t, err)

	assert.False(t, m.IsBroadcast())
	assert.Equal(t, MessageTypeRequest, m.MessageType())
	assert.Equal(t, net.IPv4(10, 0, 0, 5).To4(), m.ClientIP)
	assert.False(t, m.Options.Has(OptionRequestedIPAddress))
	assert.False(t, m.Options.Has(OptionServerIdentifier))
	assert.True(t, m.Options.Has(OptionParameterRequestList))
}

func TestNewRelease(t *testing.T) {
	lease := &Lease{IPAddr: net.IPv4(10, 0, 0, 5), ServerID: net.IPv4(10, 0, 0, 1)}

	m, err := NewRelease(testIdentity(t), 8, lease)
	require.NoError(t, err)

	assert.Equal(t, MessageTypeRelease, m.MessageType())
	assert.Equal(t, net.IPv4(10, 0, 0, 5).To4(), m.ClientIP)
	sid, ok := m.Options.ServerIdentifier()
	require.True(t, ok)
	assert.Equal(t, net.IPv4(10, 0, 0, 1).To4(), sid)
	assert.False(t, m.Options.Has(OptionParameterRequestList))
}

func TestHostnameTooLong(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}

	_, err := NewDiscover(testIdentity(t), 1, WithHostname(string(long)))
	assert.ErrorIs(t, err, ErrOptionTooLong)
}
