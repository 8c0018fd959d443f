package v4

import (
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

const (
	ClientPort = dhcpv4.ClientPort
	ServerPort = dhcpv4.ServerPort

	// maxDatagramSize bounds a received frame or datagram. Replies are
	// usually 576 bytes at most, but jumbo frames exist.
	maxDatagramSize = 8192
)

// Conn is a datagram endpoint bound to the DHCP client port of one
// interface. Payloads are complete DHCP messages; addresses are IPv4.
type Conn interface {
	// ReadFrom blocks until a datagram arrives and returns its payload and
	// the sender's address. The payload is owned by the caller.
	ReadFrom() ([]byte, net.IP, error)
	// WriteTo sends p to dst on the server port. A limited broadcast dst
	// reaches every server on the link.
	WriteTo(p []byte, dst net.IP) error
	Close() error
}
