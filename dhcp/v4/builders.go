package v4

import (
	"errors"
	"fmt"
	"net"
)

// DefaultParameterRequestList is the set of options every Discover and
// Request asks for.
var DefaultParameterRequestList = []OptionCode{
	OptionSubnetMask,
	OptionRouter,
	OptionDomainNameServer,
	OptionDomainName,
	OptionIPAddressLeaseTime,
	OptionRenewTimeValue,
	OptionRebindingTimeValue,
}

var ErrIncompleteOffer = errors.New("offer lacks your-address or server identifier")

// ClientIdentity is the per-interface identity placed into every outgoing
// message.
type ClientIdentity struct {
	Interface    string
	HardwareAddr net.HardwareAddr
	// ClientID is the value of option 61.
	ClientID []byte
}

// NewClientIdentity returns the identity of an Ethernet interface with the
// RFC 2132 default client identifier: hardware type 1 followed by the MAC.
func NewClientIdentity(iface string, mac net.HardwareAddr) (ClientIdentity, error) {
	if len(mac) != 6 {
		return ClientIdentity{}, fmt.Errorf("interface '%s': expected a 6 byte hardware address, got '%v'", iface, mac)
	}
	id := make([]byte, 0, 1+len(mac))
	id = append(id, hardwareTypeEthernet)
	id = append(id, mac...)
	return ClientIdentity{
		Interface:    iface,
		HardwareAddr: append(net.HardwareAddr(nil), mac...),
		ClientID:     id,
	}, nil
}

type buildConfig struct {
	hostname string
	extraPRL []OptionCode
}

// BuildOption customizes the outgoing messages of a client.
type BuildOption func(*buildConfig)

// WithHostname adds the Host Name option (12) to Discover and Request.
func WithHostname(hostname string) BuildOption {
	return func(c *buildConfig) {
		c.hostname = hostname
	}
}

// WithRequestedOptions appends codes to the parameter request list.
func WithRequestedOptions(codes ...OptionCode) BuildOption {
	return func(c *buildConfig) {
		c.extraPRL = append(c.extraPRL, codes...)
	}
}

func newBuildConfig(opts []BuildOption) *buildConfig {
	c := &buildConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *buildConfig) parameterRequestList() []byte {
	prl := make([]byte, 0, len(DefaultParameterRequestList)+len(c.extraPRL))
	seen := map[OptionCode]bool{}
	for _, code := range append(append([]OptionCode{}, DefaultParameterRequestList...), c.extraPRL...) {
		if seen[code] || code == OptionPad || code == OptionEnd {
			continue
		}
		seen[code] = true
		prl = append(prl, byte(code))
	}
	return prl
}

// newClientMessage returns a BootRequest carrying the identity and the
// message type option.
func newClientMessage(id ClientIdentity, xid uint32, mt MessageType) (*Message, error) {
	m := &Message{
		Op:           OpCodeBootRequest,
		HType:        hardwareTypeEthernet,
		HLen:         uint8(len(id.HardwareAddr)),
		XID:          xid,
		ClientIP:     net.IPv4zero.To4(),
		YourIP:       net.IPv4zero.To4(),
		ServerIP:     net.IPv4zero.To4(),
		GatewayIP:    net.IPv4zero.To4(),
		ClientHWAddr: append(net.HardwareAddr(nil), id.HardwareAddr...),
	}
	if err := m.Options.Add(OptionDHCPMessageType, []byte{byte(mt)}); err != nil {
		return nil, err
	}
	if err := m.Options.Add(OptionClientIdentifier, id.ClientID); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *buildConfig) addTrailer(m *Message) error {
	if c.hostname != "" {
		if err := m.Options.Add(OptionHostName, []byte(c.hostname)); err != nil {
			return err
		}
	}
	return m.Options.Add(OptionParameterRequestList, c.parameterRequestList())
}

// NewDiscover builds the broadcast DHCPDISCOVER that starts an acquisition.
func NewDiscover(id ClientIdentity, xid uint32, opts ...BuildOption) (*Message, error) {
	m, err := newClientMessage(id, xid, MessageTypeDiscover)
	if err != nil {
		return nil, err
	}
	m.SetBroadcast(true)
	if err := newBuildConfig(opts).addTrailer(m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewRequest builds the DHCPREQUEST selecting offer. It reuses the xid of
// the Discover and names the offering server and the offered address.
func NewRequest(id ClientIdentity, xid uint32, offer *Message, opts ...BuildOption) (*Message, error) {
	serverID, ok := offer.Options.ServerIdentifier()
	if !ok || offer.YourIP == nil || offer.YourIP.Equal(net.IPv4zero) {
		return nil, ErrIncompleteOffer
	}

	m, err := newClientMessage(id, xid, MessageTypeRequest)
	if err != nil {
		return nil, err
	}
	m.SetBroadcast(true)
	if err := m.Options.Add(OptionRequestedIPAddress, ipOption(offer.YourIP)); err != nil {
		return nil, err
	}
	if err := m.Options.Add(OptionServerIdentifier, ipOption(serverID)); err != nil {
		return nil, err
	}
	if err := newBuildConfig(opts).addTrailer(m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewRenewal builds the DHCPREQUEST sent while Renewing or Rebinding: the
// client address goes into ciaddr, and neither the requested address nor
// the server identifier is included (RFC 2131 4.3.2).
func NewRenewal(id ClientIdentity, xid uint32, lease *Lease, opts ...BuildOption) (*Message, error) {
	m, err := newClientMessage(id, xid, MessageTypeRequest)
	if err != nil {
		return nil, err
	}
	m.ClientIP = ipOption(lease.IPAddr)
	if err := newBuildConfig(opts).addTrailer(m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewRelease builds the DHCPRELEASE giving up lease.
func NewRelease(id ClientIdentity, xid uint32, lease *Lease) (*Message, error) {
	m, err := newClientMessage(id, xid, MessageTypeRelease)
	if err != nil {
		return nil, err
	}
	m.ClientIP = ipOption(lease.IPAddr)
	if lease.ServerID != nil {
		if err := m.Options.Add(OptionServerIdentifier, ipOption(lease.ServerID)); err != nil {
			return nil, err
		}
	}
	return m, nil
}
