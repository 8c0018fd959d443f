//go:build !linux

package v4

import (
	"errors"

	"github.com/rs/zerolog"
)

func ListenUDP(iface string, logger zerolog.Logger) (*UDPConn, error) {
	return nil, errors.New("binding a udp socket to an interface is only supported on linux, use the raw transport")
}
