package configurator

import (
	"github.com/rs/zerolog"

	"github.com/hhubb22/herald/dhcp/v4"
)

// Log only reports leases. It is the configurator used when nothing else
// is configured.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Apply(iface string, lease *v4.Lease) error {
	l.Logger.Info().
		Str("interface", iface).
		Stringer("address", lease.Network()).
		Stringer("server", lease.ServerID).
		Strs("routers", ipStrings(lease.Options.Routers)).
		Strs("dns", ipStrings(lease.Options.DomainNameServers)).
		Str("domain", lease.Options.DomainName).
		Dur("lease", lease.Timeouts.Lease).
		Time("renew_at", lease.RenewAt()).
		Time("expires_at", lease.ExpiresAt()).
		Msg("lease bound")
	return nil
}

func (l Log) Revoke(iface string, lease *v4.Lease) error {
	l.Logger.Warn().
		Str("interface", iface).
		Stringer("address", lease.Network()).
		Msg("lease revoked, address must no longer be used")
	return nil
}
