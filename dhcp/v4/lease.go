package v4

import (
	"errors"
	"net"
	"time"
)

var (
	ErrNoAddress      = errors.New("ack carries no your-address")
	ErrNoLeaseTime    = errors.New("ack carries no usable lease time")
	ErrZeroLeaseTime  = errors.New("ack grants a zero lease time")
	ErrNotAcknowledge = errors.New("message is not a DHCPACK")
)

// Lease is the configuration granted by a DHCPACK. A Lease is never
// modified once NewLease returns it; a renewal yields a new Lease.
type Lease struct {
	IPAddr    net.IP
	IPMask    net.IPMask
	ServerID  net.IP
	GrantedAt time.Time
	Timeouts  struct {
		Lease           time.Duration
		T1RenewalTime   time.Duration
		T2RebindingTime time.Duration
	}
	Options struct {
		DomainName        string
		Routers           []net.IP
		DomainNameServers []net.IP
		NTPServers        []net.IP
		BroadcastAddress  net.IP
	}
}

// NewLease extracts a lease from ack. The renewal and rebinding times are
// clamped so that 0 < T1 < T2 < lease time.
func NewLease(ack *Message, grantedAt time.Time) (*Lease, error) {
	if mt, _ := ack.Options.MessageType(); mt != MessageTypeAck {
		return nil, ErrNotAcknowledge
	}
	if ack.YourIP == nil || ack.YourIP.Equal(net.IPv4zero) {
		return nil, ErrNoAddress
	}
	leaseTime, ok := ack.Options.LeaseTime()
	if !ok {
		return nil, ErrNoLeaseTime
	}
	if leaseTime <= 0 {
		return nil, ErrZeroLeaseTime
	}

	l := Lease{
		IPAddr:    ipOption(ack.YourIP),
		GrantedAt: grantedAt,
	}

	if mask, ok := ack.Options.SubnetMask(); ok {
		l.IPMask = mask
	} else {
		l.IPMask = l.IPAddr.DefaultMask()
	}

	if serverID, ok := ack.Options.ServerIdentifier(); ok {
		l.ServerID = serverID
	} else if ack.ServerIP != nil && !ack.ServerIP.Equal(net.IPv4zero) {
		l.ServerID = ipOption(ack.ServerIP)
	}

	t1, _ := ack.Options.RenewalTime()
	t2, _ := ack.Options.RebindingTime()
	l.Timeouts.Lease = leaseTime
	l.Timeouts.T1RenewalTime, l.Timeouts.T2RebindingTime = clampTimers(leaseTime, t1, t2)

	l.Options.DomainName = ack.Options.DomainName()
	l.Options.Routers = ack.Options.Routers()
	l.Options.DomainNameServers = ack.Options.DomainNameServers()
	l.Options.NTPServers = ack.Options.NTPServers()
	if bcast, ok := ack.Options.BroadcastAddress(); ok {
		l.Options.BroadcastAddress = bcast
	}

	return &l, nil
}

// clampTimers applies the RFC 2131 defaults (T1 = L/2, T2 = 7L/8) wherever
// the server supplied nothing usable. Zero means absent.
func clampTimers(lease, t1, t2 time.Duration) (time.Duration, time.Duration) {
	if t1 <= 0 || t1 >= lease {
		t1 = lease / 2
	}
	if t2 <= t1 || t2 >= lease {
		t2 = lease * 7 / 8
	}
	if t2 <= t1 {
		t2 = t1 + (lease-t1)/2
	}
	if t2 <= t1 || t2 >= lease {
		t1, t2 = lease/2, lease*7/8
	}
	return t1, t2
}

func (l *Lease) RenewAt() time.Time {
	return l.GrantedAt.Add(l.Timeouts.T1RenewalTime)
}

func (l *Lease) RebindAt() time.Time {
	return l.GrantedAt.Add(l.Timeouts.T2RebindingTime)
}

func (l *Lease) ExpiresAt() time.Time {
	return l.GrantedAt.Add(l.Timeouts.Lease)
}

// TimeUntilRenew returns the time left until T1. It is negative once T1
// has passed.
func (l *Lease) TimeUntilRenew(now time.Time) time.Duration {
	return l.RenewAt().Sub(now)
}

func (l *Lease) TimeUntilRebind(now time.Time) time.Duration {
	return l.RebindAt().Sub(now)
}

func (l *Lease) TimeUntilExpiry(now time.Time) time.Duration {
	return l.ExpiresAt().Sub(now)
}

// Expired reports whether the lease time has fully elapsed at now.
func (l *Lease) Expired(now time.Time) bool {
	return l.TimeUntilExpiry(now) <= 0
}

// Network returns the address and mask as a prefix.
func (l *Lease) Network() *net.IPNet {
	return &net.IPNet{IP: l.IPAddr, Mask: l.IPMask}
}
