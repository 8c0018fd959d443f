package configurator

import (
	"net"
	"time"

	"github.com/hhubb22/herald/dhcp/v4"
	"github.com/hhubb22/herald/util"
)

const (
	EventBound   = "bound"
	EventRevoked = "revoked"
)

// LeasePayload is the JSON document published for a lease.
type LeasePayload struct {
	Event        string    `json:"event"`
	Interface    string    `json:"interface"`
	Address      string    `json:"address"`
	PrefixLength int       `json:"prefix_length"`
	ServerID     string    `json:"server_id,omitempty"`
	Routers      []string  `json:"routers,omitempty"`
	DNSServers   []string  `json:"dns_servers,omitempty"`
	NTPServers   []string  `json:"ntp_servers,omitempty"`
	DomainName   string    `json:"domain_name,omitempty"`
	Broadcast    string    `json:"broadcast,omitempty"`
	LeaseSeconds uint32    `json:"lease_seconds"`
	T1Seconds    uint32    `json:"t1_seconds"`
	T2Seconds    uint32    `json:"t2_seconds"`
	GrantedAt    time.Time `json:"granted_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func NewLeasePayload(event, iface string, lease *v4.Lease) LeasePayload {
	prefix, _ := lease.IPMask.Size()

	p := LeasePayload{
		Event:        event,
		Interface:    iface,
		Address:      lease.IPAddr.String(),
		PrefixLength: prefix,
		Routers:      ipStrings(lease.Options.Routers),
		DNSServers:   ipStrings(lease.Options.DomainNameServers),
		NTPServers:   ipStrings(lease.Options.NTPServers),
		DomainName:   lease.Options.DomainName,
		LeaseSeconds: util.SafeConvertToUint32(lease.Timeouts.Lease.Seconds()),
		T1Seconds:    util.SafeConvertToUint32(lease.Timeouts.T1RenewalTime.Seconds()),
		T2Seconds:    util.SafeConvertToUint32(lease.Timeouts.T2RebindingTime.Seconds()),
		GrantedAt:    lease.GrantedAt.UTC(),
		ExpiresAt:    lease.ExpiresAt().UTC(),
	}
	if lease.ServerID != nil {
		p.ServerID = lease.ServerID.String()
	}
	if lease.Options.BroadcastAddress != nil {
		p.Broadcast = lease.Options.BroadcastAddress.String()
	}
	return p
}

func ipStrings(ips []net.IP) []string {
	if len(ips) == 0 {
		return nil
	}
	s := make([]string, 0, len(ips))
	for _, ip := range ips {
		s = append(s, ip.String())
	}
	return s
}
