package v4

import (
	"net"

	"github.com/rs/zerolog"
)

// UDPConn is a kernel UDP socket bound to 0.0.0.0:68 and pinned to one
// interface. It needs the interface to be up, but not addressed.
type UDPConn struct {
	conn *net.UDPConn
	log  zerolog.Logger
}

var _ Conn = (*UDPConn)(nil)

func (c *UDPConn) ReadFrom() ([]byte, net.IP, error) {
	p := make([]byte, maxDatagramSize)
	n, addr, err := c.conn.ReadFromUDP(p)
	if err != nil {
		return nil, nil, err
	}
	return p[:n], addr.IP.To4(), nil
}

func (c *UDPConn) WriteTo(p []byte, dst net.IP) error {
	c.log.Debug().Int("bytes", len(p)).Stringer("dst", dst).Msg("sending datagram")
	_, err := c.conn.WriteToUDP(p, &net.UDPAddr{IP: dst, Port: ServerPort})
	return err
}

func (c *UDPConn) Close() error {
	return c.conn.Close()
}
