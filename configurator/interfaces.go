// Package configurator hands granted leases to the parts of the system that
// act on them: the host's network stack, a cache, or remote listeners.
package configurator

import (
	"github.com/hhubb22/herald/dhcp/v4"
)

// An Applier is called whenever a lease is granted or renewed.
type Applier interface {
	Apply(iface string, lease *v4.Lease) error
}

// A Revoker is called when a lease is lost, expires or is released.
type Revoker interface {
	Revoke(iface string, lease *v4.Lease) error
}

// A Configurator is called from the DHCP client's goroutine. The client
// waits for every call, so implementations bound their own latency.
type Configurator interface {
	Applier
	Revoker
}
