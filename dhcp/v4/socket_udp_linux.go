//go:build linux

package v4

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ListenUDP opens the client port with SO_BROADCAST and SO_REUSEADDR set
// and binds it to iface with SO_BINDTODEVICE.
func ListenUDP(iface string, logger zerolog.Logger) (*UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, rc syscall.RawConn) error {
			var sockErr error
			err := rc.Control(func(fd uintptr) {
				if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
					return
				}
				if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); sockErr != nil {
					return
				}
				sockErr = unix.BindToDevice(int(fd), iface)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", ClientPort))
	if err != nil {
		return nil, fmt.Errorf("listen on '%s': %w", iface, err)
	}

	return &UDPConn{
		conn: pc.(*net.UDPConn),
		log:  logger.With().Str("transport", "udp").Str("interface", iface).Logger(),
	}, nil
}
