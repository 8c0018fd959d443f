package v4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// OptionCode is the tag of a DHCP option as assigned by RFC 2132.
type OptionCode uint8

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionRouter               OptionCode = 3
	OptionDomainNameServer     OptionCode = 6
	OptionHostName             OptionCode = 12
	OptionDomainName           OptionCode = 15
	OptionBroadcastAddress     OptionCode = 28
	OptionNTPServers           OptionCode = 42
	OptionRequestedIPAddress   OptionCode = 50
	OptionIPAddressLeaseTime   OptionCode = 51
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionMessage              OptionCode = 56
	OptionRenewTimeValue       OptionCode = 58
	OptionRebindingTimeValue   OptionCode = 59
	OptionClientIdentifier     OptionCode = 61
	OptionEnd                  OptionCode = 255
)

var optionCodeNames = map[OptionCode]string{
	OptionPad:                  "Pad",
	OptionSubnetMask:           "Subnet Mask",
	OptionRouter:               "Router",
	OptionDomainNameServer:     "Domain Name Server",
	OptionHostName:             "Host Name",
	OptionDomainName:           "Domain Name",
	OptionBroadcastAddress:     "Broadcast Address",
	OptionNTPServers:           "NTP Servers",
	OptionRequestedIPAddress:   "Requested IP Address",
	OptionIPAddressLeaseTime:   "IP Addresses Lease Time",
	OptionDHCPMessageType:      "DHCP Message Type",
	OptionServerIdentifier:     "Server Identifier",
	OptionParameterRequestList: "Parameter Request List",
	OptionMessage:              "Message",
	OptionRenewTimeValue:       "Renew Time Value",
	OptionRebindingTimeValue:   "Rebinding Time Value",
	OptionClientIdentifier:     "Client identifier",
	OptionEnd:                  "End",
}

func (c OptionCode) String() string {
	if name, ok := optionCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown (%d)", uint8(c))
}

// MaxOptionLength is the largest value a single option can carry.
const MaxOptionLength = 255

var (
	ErrOptionTooLong  = errors.New("option value exceeds 255 bytes")
	ErrReservedOption = errors.New("pad and end cannot carry a value")
)

// Option is a single code/value pair. The value is kept verbatim.
type Option struct {
	Code OptionCode
	Data []byte
}

func (o Option) String() string {
	return fmt.Sprintf("%v -> %x", o.Code, o.Data)
}

// Options is the ordered option list of a message. Duplicate codes are
// allowed; lookups return the first occurrence.
type Options []Option

// Add appends an option after validating that it can be encoded.
func (o *Options) Add(code OptionCode, data []byte) error {
	if code == OptionPad || code == OptionEnd {
		return fmt.Errorf("option %v: %w", code, ErrReservedOption)
	}
	if len(data) > MaxOptionLength {
		return fmt.Errorf("option %v: %w", code, ErrOptionTooLong)
	}
	value := make([]byte, len(data))
	copy(value, data)
	*o = append(*o, Option{Code: code, Data: value})
	return nil
}

// Get returns the value of the first option with the given code.
func (o Options) Get(code OptionCode) ([]byte, bool) {
	for _, opt := range o {
		if opt.Code == code {
			return opt.Data, true
		}
	}
	return nil, false
}

// Has reports whether at least one option with the given code is present.
func (o Options) Has(code OptionCode) bool {
	_, ok := o.Get(code)
	return ok
}

func (o Options) MessageType() (MessageType, bool) {
	data, ok := o.Get(OptionDHCPMessageType)
	if !ok || len(data) != 1 {
		return 0, false
	}
	return MessageType(data[0]), true
}

func (o Options) ServerIdentifier() (net.IP, bool) {
	return o.ip(OptionServerIdentifier)
}

func (o Options) RequestedIPAddress() (net.IP, bool) {
	return o.ip(OptionRequestedIPAddress)
}

func (o Options) BroadcastAddress() (net.IP, bool) {
	return o.ip(OptionBroadcastAddress)
}

func (o Options) SubnetMask() (net.IPMask, bool) {
	ip, ok := o.ip(OptionSubnetMask)
	if !ok {
		return nil, false
	}
	return net.IPMask(ip), true
}

// LeaseTime returns the IP address lease time (option 51).
func (o Options) LeaseTime() (time.Duration, bool) {
	return o.seconds(OptionIPAddressLeaseTime)
}

// RenewalTime returns T1 (option 58) as an offset from the grant.
func (o Options) RenewalTime() (time.Duration, bool) {
	data, ok := o.Get(OptionRenewTimeValue)
	if !ok {
		return 0, false
	}
	opt, err := ParseOptRenewalTime(data)
	if err != nil {
		return 0, false
	}
	return opt.Duration(), true
}

// RebindingTime returns T2 (option 59) as an offset from the grant.
func (o Options) RebindingTime() (time.Duration, bool) {
	data, ok := o.Get(OptionRebindingTimeValue)
	if !ok {
		return 0, false
	}
	opt, err := ParseOptRebindingTime(data)
	if err != nil {
		return 0, false
	}
	return opt.Duration(), true
}

func (o Options) Routers() []net.IP {
	return o.ipList(OptionRouter)
}

func (o Options) DomainNameServers() []net.IP {
	return o.ipList(OptionDomainNameServer)
}

func (o Options) NTPServers() []net.IP {
	return o.ipList(OptionNTPServers)
}

func (o Options) DomainName() string {
	data, _ := o.Get(OptionDomainName)
	return string(data)
}

// ServerMessage returns the human readable text a server may attach to a
// DHCPNAK (option 56).
func (o Options) ServerMessage() string {
	data, _ := o.Get(OptionMessage)
	return string(data)
}

func (o Options) ip(code OptionCode) (net.IP, bool) {
	data, ok := o.Get(code)
	if !ok || len(data) != net.IPv4len {
		return nil, false
	}
	return copyIP(data), true
}

func (o Options) ipList(code OptionCode) []net.IP {
	data, ok := o.Get(code)
	if !ok || len(data) == 0 || len(data)%net.IPv4len != 0 {
		return nil
	}
	ips := make([]net.IP, 0, len(data)/net.IPv4len)
	for i := 0; i < len(data); i += net.IPv4len {
		ips = append(ips, net.IPv4(data[i], data[i+1], data[i+2], data[i+3]).To4())
	}
	return ips
}

func (o Options) seconds(code OptionCode) (time.Duration, bool) {
	data, ok := o.Get(code)
	if !ok || len(data) != 4 {
		return 0, false
	}
	return time.Duration(binary.BigEndian.Uint32(data)) * time.Second, true
}

func ipOption(ip net.IP) []byte {
	value := make([]byte, net.IPv4len)
	copy(value, ip.To4())
	return value
}
