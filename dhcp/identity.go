package dhcp

import (
	"fmt"
	"net"

	"github.com/hhubb22/herald/dhcp/config"
	"github.com/hhubb22/herald/dhcp/v4"
)

// IdentityForInterface looks up iface and returns its client identity.
func IdentityForInterface(name string, dhcpConfig *config.DHCPConfig) (v4.ClientIdentity, *net.Interface, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return v4.ClientIdentity{}, nil, fmt.Errorf("can't find interface '%s': %w", name, err)
	}

	identity, err := identityFor(name, iface.HardwareAddr, dhcpConfig)
	if err != nil {
		return v4.ClientIdentity{}, nil, err
	}
	return identity, iface, nil
}

// identityFor builds the identity of an interface. A configured
// client_id_uuid replaces the hardware address based client identifier.
func identityFor(name string, mac net.HardwareAddr, dhcpConfig *config.DHCPConfig) (v4.ClientIdentity, error) {
	identity, err := v4.NewClientIdentity(name, mac)
	if err != nil {
		return v4.ClientIdentity{}, err
	}

	clientID, err := dhcpConfig.ClientIdentifier(mac)
	if err != nil {
		return v4.ClientIdentity{}, fmt.Errorf("interface '%s': %w", name, err)
	}
	if clientID != nil {
		identity.ClientID = clientID
	}
	return identity, nil
}
